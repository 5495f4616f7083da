package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы услуг
const (
	// ListingTypeInstant — мгновенный цифровой товар: оплата списывается
	// сразу, заказ создаётся уже завершённым, средства не удерживаются.
	ListingTypeInstant = "instant"
	// ListingTypeCollaboration — совместная работа: средства авторизуются
	// и удерживаются до приёмки результата покупателем.
	ListingTypeCollaboration = "collaboration"
)

// Listing — карточка услуги. Каталогом управляет отдельная подсистема,
// здесь используется только узкий контракт: цена, тип, активность и
// окно доставки.
type Listing struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SellerID     uuid.UUID `db:"seller_id" json:"seller_id"`
	Title        string    `db:"title" json:"title"`
	Description  *string   `db:"description" json:"description,omitempty"`
	ListingType  string    `db:"listing_type" json:"listing_type"`
	PriceCents   int64     `db:"price_cents" json:"price_cents"`
	Currency     string    `db:"currency" json:"currency"`
	DeliveryDays int       `db:"delivery_days" json:"delivery_days"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	SalesCount   int       `db:"sales_count" json:"sales_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RequiresEscrow сообщает, требует ли услуга удержания средств.
func (l *Listing) RequiresEscrow() bool {
	return l.ListingType == ListingTypeCollaboration
}
