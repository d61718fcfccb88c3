package models

import (
	"testing"

	pkgerrors "github.com/ripvault/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestResolvePack(t *testing.T) {
	t.Run("valid pack", func(t *testing.T) {
		pack, err := ResolvePack("pokemon", "starter")
		assert.NoError(t, err)
		assert.Equal(t, CatalogPokemon, pack.Catalog)
		assert.Equal(t, TierStarter, pack.Tier)
		assert.Equal(t, 3, pack.CardCount)
		assert.Equal(t, int64(50), pack.Price)
		assert.Equal(t, "pokemon-starter", pack.ID)
	})

	t.Run("grail is the biggest pack", func(t *testing.T) {
		pack, err := ResolvePack("scryfall", "grail")
		assert.NoError(t, err)
		assert.Equal(t, 10, pack.CardCount)
		assert.Equal(t, int64(500), pack.Price)
	})

	t.Run("unknown catalog", func(t *testing.T) {
		_, err := ResolvePack("digimon", "starter")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidPack)
	})

	t.Run("unknown tier", func(t *testing.T) {
		_, err := ResolvePack("pokemon", "mega")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidPack)
	})
}

func TestGeneratePacks(t *testing.T) {
	packs := GeneratePacks()
	assert.Len(t, packs, 12)

	seen := map[string]bool{}
	for _, pack := range packs {
		assert.False(t, seen[pack.ID], "duplicate pack id %s", pack.ID)
		seen[pack.ID] = true
		assert.Positive(t, pack.CardCount)
		assert.Positive(t, pack.Price)
		assert.NotEmpty(t, pack.Name)
	}
}

func TestParseCatalog(t *testing.T) {
	for _, name := range []string{"pokemon", "scryfall", "yugioh"} {
		c, err := ParseCatalog(name)
		assert.NoError(t, err)
		assert.Equal(t, Catalog(name), c)
	}

	_, err := ParseCatalog("")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPack)
}
