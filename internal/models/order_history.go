package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusHistory — строка журнала переходов статуса. Журнал только
// дописывается и пишется в той же транзакции, что и сам переход.
type OrderStatusHistory struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	OrderID    uuid.UUID    `db:"order_id" json:"order_id"`
	FromStatus *OrderStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   OrderStatus  `db:"to_status" json:"to_status"`
	ActorID    *uuid.UUID   `db:"actor_id" json:"actor_id,omitempty"`
	Note       *string      `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}
