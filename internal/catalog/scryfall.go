package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ripvault/backend/internal/models"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

const DefaultScryfallBaseURL = "https://api.scryfall.com"

// Scryfall has no random endpoint suited to bulk draws, so packs sample
// from a random color search on a random page.
var scryfallQueries = []string{"c:white", "c:blue", "c:black", "c:red", "c:green"}

type scryfallImageURIs struct {
	Small  string `json:"small"`
	Normal string `json:"normal"`
	Large  string `json:"large"`
}

type scryfallCard struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	ImageURIs *scryfallImageURIs `json:"image_uris"`
	CardFaces []struct {
		ImageURIs *scryfallImageURIs `json:"image_uris"`
	} `json:"card_faces"`
	Rarity   string `json:"rarity"`
	TypeLine string `json:"type_line"`
	SetName  string `json:"set_name"`
	Prices   struct {
		USD *string `json:"usd"`
	} `json:"prices"`
}

type scryfallResponse struct {
	TotalCards int            `json:"total_cards"`
	HasMore    bool           `json:"has_more"`
	Data       []scryfallCard `json:"data"`
}

type ScryfallFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewScryfallFetcher(baseURL string) *ScryfallFetcher {
	if baseURL == "" {
		baseURL = DefaultScryfallBaseURL
	}
	return &ScryfallFetcher{baseURL: baseURL, httpClient: newHTTPClient()}
}

func (f *ScryfallFetcher) Catalog() models.Catalog {
	return models.CatalogScryfall
}

func (f *ScryfallFetcher) FetchCards(ctx context.Context, count int) ([]models.CardData, error) {
	query := scryfallQueries[rand.Intn(len(scryfallQueries))]
	randomPage := rand.Intn(5) + 1
	reqURL := fmt.Sprintf("%s/cards/search?q=%s&page=%d", f.baseURL, url.QueryEscape(query), randomPage)

	var resp scryfallResponse
	if err := getJSON(ctx, f.httpClient, reqURL, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty scryfall search page", pkgerrors.ErrCatalogUnavailable)
	}

	cards := make([]models.CardData, 0, len(resp.Data))
	for _, card := range resp.Data {
		cards = append(cards, mapScryfallCard(card, false))
	}
	return sampleCards(cards, count), nil
}

// ListCards browses a fixed low-cost search; Scryfall pages are a fixed
// 175 cards, so pageSize only trims the returned slice.
func (f *ScryfallFetcher) ListCards(ctx context.Context, page, pageSize int) (*Listing, error) {
	reqURL := fmt.Sprintf("%s/cards/search?q=%s&page=%d", f.baseURL, url.QueryEscape("c:white mv=1"), page)

	var resp scryfallResponse
	if err := getJSON(ctx, f.httpClient, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	data := resp.Data
	hasMore := resp.HasMore
	if pageSize > 0 && len(data) > pageSize {
		data = data[:pageSize]
		hasMore = true
	}

	cards := make([]models.CardData, 0, len(data))
	for _, card := range data {
		cards = append(cards, mapScryfallCard(card, true))
	}

	return &Listing{
		Cards:      cards,
		Page:       page,
		PageSize:   len(cards),
		TotalCount: resp.TotalCards,
		HasMore:    hasMore,
	}, nil
}

func mapScryfallCard(card scryfallCard, large bool) models.CardData {
	data := models.CardData{
		CardID:   card.ID,
		Name:     card.Name,
		Rarity:   card.Rarity,
		CardType: card.TypeLine,
		SetName:  card.SetName,
	}

	// Multi-face cards keep their images on the first face.
	uris := card.ImageURIs
	if uris == nil && len(card.CardFaces) > 0 {
		uris = card.CardFaces[0].ImageURIs
	}
	if uris != nil {
		if large {
			data.ImageURL = uris.Large
		} else {
			data.ImageURL = uris.Normal
		}
	}

	if card.Prices.USD != nil {
		if price, err := strconv.ParseFloat(*card.Prices.USD, 64); err == nil {
			data.Price = price
		}
	}
	return data
}
