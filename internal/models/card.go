package models

import "time"

// CardData is the normalized shape every card source adapter produces,
// regardless of how the upstream catalog structures its payload.
type CardData struct {
	CardID   string  `json:"card_id"`
	Name     string  `json:"name"`
	ImageURL string  `json:"image_url"`
	Rarity   string  `json:"rarity,omitempty"`
	CardType string  `json:"type,omitempty"`
	Price    float64 `json:"price,omitempty"`
	SetName  string  `json:"set_name,omitempty"`
}

// CardTemplate is the canonical description of a card as sourced from an
// external catalog. One row per (card_id, catalog), shared across all owners.
type CardTemplate struct {
	ID        int32     `json:"id"`
	CardID    string    `json:"card_id"`
	Catalog   Catalog   `json:"catalog"`
	Name      string    `json:"name"`
	ImageURL  string    `json:"image_url"`
	Rarity    string    `json:"rarity,omitempty"`
	CardType  string    `json:"card_type,omitempty"`
	Price     float64   `json:"price,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedCard records that a user possesses one unit of a card template.
// Owning the same template twice is two rows.
type OwnedCard struct {
	ID         int32        `json:"id"`
	UserID     int32        `json:"user_id"`
	Template   CardTemplate `json:"card"`
	AcquiredAt time.Time    `json:"acquired_at"`
}

type PackPurchase struct {
	ID        int32     `json:"id"`
	UserID    int32     `json:"user_id"`
	Catalog   Catalog   `json:"catalog"`
	Tier      PackTier  `json:"tier"`
	CardCount int       `json:"card_count"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}
