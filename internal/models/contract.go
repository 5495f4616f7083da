package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract — договор по заказу формата совместной работы. Генерируется
// как побочный эффект создания заказа; после простановки отметок согласия
// обеих сторон документ неизменяем.
type Contract struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrderID        uuid.UUID  `db:"order_id" json:"order_id"`
	DocumentPath   string     `db:"document_path" json:"document_path"`
	BuyerAgreedAt  *time.Time `db:"buyer_agreed_at" json:"buyer_agreed_at,omitempty"`
	SellerAgreedAt *time.Time `db:"seller_agreed_at" json:"seller_agreed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsSigned сообщает, согласились ли обе стороны.
func (c *Contract) IsSigned() bool {
	return c.BuyerAgreedAt != nil && c.SellerAgreedAt != nil
}
