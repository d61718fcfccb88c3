package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/ripvault/backend/internal/models"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

const DefaultPokemonBaseURL = "https://api.pokemontcg.io"

type pokemonCard struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Rarity string   `json:"rarity"`
	Types  []string `json:"types"`
	Images struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
	Set struct {
		Name   string `json:"name"`
		Images struct {
			Symbol string `json:"symbol"`
			Logo   string `json:"logo"`
		} `json:"images"`
	} `json:"set"`
	Cardmarket *struct {
		Prices struct {
			AverageSellPrice float64 `json:"averageSellPrice"`
		} `json:"prices"`
	} `json:"cardmarket"`
	TCGPlayer *struct {
		Prices struct {
			Holofoil        *tcgMarketPrice `json:"holofoil"`
			ReverseHolofoil *tcgMarketPrice `json:"reverseHolofoil"`
			Normal          *tcgMarketPrice `json:"normal"`
		} `json:"prices"`
	} `json:"tcgplayer"`
}

type tcgMarketPrice struct {
	Market float64 `json:"market"`
}

type pokemonResponse struct {
	Data       []pokemonCard `json:"data"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalCount int           `json:"totalCount"`
}

type PokemonFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewPokemonFetcher(baseURL string) *PokemonFetcher {
	if baseURL == "" {
		baseURL = DefaultPokemonBaseURL
	}
	return &PokemonFetcher{baseURL: baseURL, httpClient: newHTTPClient()}
}

func (f *PokemonFetcher) Catalog() models.Catalog {
	return models.CatalogPokemon
}

func (f *PokemonFetcher) FetchCards(ctx context.Context, count int) ([]models.CardData, error) {
	randomPage := rand.Intn(100) + 1
	url := fmt.Sprintf("%s/v2/cards?pageSize=%d&page=%d", f.baseURL, count*2, randomPage)

	var resp pokemonResponse
	if err := getJSON(ctx, f.httpClient, url, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty pokemon card page", pkgerrors.ErrCatalogUnavailable)
	}

	cards := make([]models.CardData, 0, len(resp.Data))
	for _, card := range resp.Data {
		data := models.CardData{
			CardID:   card.ID,
			Name:     card.Name,
			ImageURL: card.Images.Small,
			Rarity:   card.Rarity,
			SetName:  card.Set.Name,
		}
		if len(card.Types) > 0 {
			data.CardType = card.Types[0]
		}
		if card.Cardmarket != nil {
			data.Price = card.Cardmarket.Prices.AverageSellPrice
		}
		cards = append(cards, data)
	}
	return sampleCards(cards, count), nil
}

func (f *PokemonFetcher) ListCards(ctx context.Context, page, pageSize int) (*Listing, error) {
	url := fmt.Sprintf("%s/v2/cards?page=%d&pageSize=%d", f.baseURL, page, pageSize)

	var resp pokemonResponse
	if err := getJSON(ctx, f.httpClient, url, nil, &resp); err != nil {
		return nil, err
	}

	cards := make([]models.CardData, 0, len(resp.Data))
	for _, card := range resp.Data {
		data := models.CardData{
			CardID:   card.ID,
			Name:     card.Name,
			ImageURL: card.Images.Large,
			Rarity:   card.Rarity,
			SetName:  card.Set.Name,
		}
		if data.Rarity == "" {
			data.Rarity = "Unknown"
		}
		if len(card.Types) > 0 {
			data.CardType = card.Types[0]
		}
		// Prefer the holofoil market price, like the storefront does.
		if card.TCGPlayer != nil {
			prices := card.TCGPlayer.Prices
			switch {
			case prices.Holofoil != nil:
				data.Price = prices.Holofoil.Market
			case prices.ReverseHolofoil != nil:
				data.Price = prices.ReverseHolofoil.Market
			case prices.Normal != nil:
				data.Price = prices.Normal.Market
			}
		}
		cards = append(cards, data)
	}

	return &Listing{
		Cards:      cards,
		Page:       resp.Page,
		PageSize:   resp.PageSize,
		TotalCount: resp.TotalCount,
		HasMore:    resp.Page*resp.PageSize < resp.TotalCount,
	}, nil
}
