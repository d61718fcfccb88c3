package models

import (
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

type Catalog string

const (
	CatalogPokemon  Catalog = "pokemon"
	CatalogScryfall Catalog = "scryfall"
	CatalogYugioh   Catalog = "yugioh"
)

type PackTier string

const (
	TierStarter PackTier = "starter"
	TierPremium PackTier = "premium"
	TierLegend  PackTier = "legend"
	TierGrail   PackTier = "grail"
)

// Pack is pure configuration, not persisted state. Pricing lives in this
// table only; there is no packs table in the database.
type Pack struct {
	ID          string   `json:"id"`
	Catalog     Catalog  `json:"catalog"`
	Tier        PackTier `json:"tier"`
	Name        string   `json:"name"`
	CardCount   int      `json:"card_count"`
	Price       int64    `json:"price"`
	Description string   `json:"description"`
}

type packConfig struct {
	CardCount   int
	Price       int64
	Name        string
	Description string
}

var packTiers = map[PackTier]packConfig{
	TierStarter: {CardCount: 3, Price: 50, Name: "Starter Pack", Description: "A great way to begin your collection"},
	TierPremium: {CardCount: 5, Price: 100, Name: "Premium Pack", Description: "Better odds for rare cards"},
	TierLegend:  {CardCount: 7, Price: 200, Name: "Legend Pack", Description: "High chance of legendary cards"},
	TierGrail:   {CardCount: 10, Price: 500, Name: "Grail Pack", Description: "The ultimate pack for serious collectors"},
}

var catalogNames = map[Catalog]string{
	CatalogPokemon:  "Pokemon",
	CatalogScryfall: "Magic: The Gathering",
	CatalogYugioh:   "Yu-Gi-Oh!",
}

func ParseCatalog(s string) (Catalog, error) {
	switch Catalog(s) {
	case CatalogPokemon, CatalogScryfall, CatalogYugioh:
		return Catalog(s), nil
	}
	return "", pkgerrors.ErrInvalidPack
}

// ResolvePack validates a (catalog, tier) pair and returns its fixed
// price and card count.
func ResolvePack(catalog, tier string) (*Pack, error) {
	c, err := ParseCatalog(catalog)
	if err != nil {
		return nil, err
	}
	cfg, ok := packTiers[PackTier(tier)]
	if !ok {
		return nil, pkgerrors.ErrInvalidPack
	}
	return &Pack{
		ID:          string(c) + "-" + tier,
		Catalog:     c,
		Tier:        PackTier(tier),
		Name:        catalogNames[c] + " " + cfg.Name,
		CardCount:   cfg.CardCount,
		Price:       cfg.Price,
		Description: cfg.Description,
	}, nil
}

// GeneratePacks returns the full catalog x tier grid for client display.
func GeneratePacks() []Pack {
	catalogs := []Catalog{CatalogPokemon, CatalogScryfall, CatalogYugioh}
	tiers := []PackTier{TierStarter, TierPremium, TierLegend, TierGrail}

	packs := make([]Pack, 0, len(catalogs)*len(tiers))
	for _, c := range catalogs {
		for _, t := range tiers {
			p, _ := ResolvePack(string(c), string(t))
			packs = append(packs, *p)
		}
	}
	return packs
}
