package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы транзакций
const (
	TransactionTypePurchase = "purchase"
	TransactionTypePayout   = "payout"
	TransactionTypeRefund   = "refund"
)

// Transaction — неизменяемая запись о движении денег. Создаётся один раз
// в той же транзакции базы, что и вызвавшая её мутация заказа, и никогда
// не обновляется.
type Transaction struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	Type        string     `db:"type" json:"type"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Currency    string     `db:"currency" json:"currency"`
	Description *string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
