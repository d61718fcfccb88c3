package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/ripvault/backend/internal/models"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

const DefaultYugiohBaseURL = "https://db.ygoprodeck.com"

type yugiohCard struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Race       string `json:"race"`
	CardImages []struct {
		ImageURL      string `json:"image_url"`
		ImageURLSmall string `json:"image_url_small"`
	} `json:"card_images"`
	CardPrices []struct {
		TCGPlayerPrice  string `json:"tcgplayer_price"`
		CardmarketPrice string `json:"cardmarket_price"`
	} `json:"card_prices"`
}

type yugiohResponse struct {
	Data []yugiohCard `json:"data"`
}

type YugiohFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewYugiohFetcher(baseURL string) *YugiohFetcher {
	if baseURL == "" {
		baseURL = DefaultYugiohBaseURL
	}
	return &YugiohFetcher{baseURL: baseURL, httpClient: newHTTPClient()}
}

func (f *YugiohFetcher) Catalog() models.Catalog {
	return models.CatalogYugioh
}

func (f *YugiohFetcher) FetchCards(ctx context.Context, count int) ([]models.CardData, error) {
	offset := rand.Intn(1000)
	url := fmt.Sprintf("%s/api/v7/cardinfo.php?num=%d&offset=%d", f.baseURL, count*2, offset)

	var resp yugiohResponse
	if err := getJSON(ctx, f.httpClient, url, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty yugioh card window", pkgerrors.ErrCatalogUnavailable)
	}

	cards := make([]models.CardData, 0, len(resp.Data))
	for _, card := range resp.Data {
		cards = append(cards, mapYugiohCard(card))
	}
	return sampleCards(cards, count), nil
}

func (f *YugiohFetcher) ListCards(ctx context.Context, page, pageSize int) (*Listing, error) {
	offset := (page - 1) * pageSize
	url := fmt.Sprintf("%s/api/v7/cardinfo.php?num=%d&offset=%d", f.baseURL, pageSize, offset)

	var resp yugiohResponse
	if err := getJSON(ctx, f.httpClient, url, nil, &resp); err != nil {
		return nil, err
	}

	cards := make([]models.CardData, 0, len(resp.Data))
	for _, card := range resp.Data {
		cards = append(cards, mapYugiohCard(card))
	}

	return &Listing{
		Cards:    cards,
		Page:     page,
		PageSize: pageSize,
		// YGOPRODeck does not report a total count on windowed queries.
		HasMore: len(cards) == pageSize,
	}, nil
}

func mapYugiohCard(card yugiohCard) models.CardData {
	data := models.CardData{
		CardID:   strconv.Itoa(card.ID),
		Name:     card.Name,
		Rarity:   card.Race,
		CardType: card.Type,
	}
	if len(card.CardImages) > 0 {
		data.ImageURL = card.CardImages[0].ImageURL
	}
	if len(card.CardPrices) > 0 {
		if price, err := strconv.ParseFloat(card.CardPrices[0].TCGPlayerPrice, 64); err == nil {
			data.Price = price
		}
	}
	return data
}
