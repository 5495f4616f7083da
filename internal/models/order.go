package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// OrderStatus — закрытое перечисление статусов заказа. Любое изменение
// статуса проходит через таблицу переходов, прямое присваивание поля
// за пределами хранилища заказов запрещено.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAwaitingUpload   OrderStatus = "awaiting_upload"
	OrderStatusInProgress       OrderStatus = "in_progress"
	OrderStatusAwaitingDelivery OrderStatus = "awaiting_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusRefunded         OrderStatus = "refunded"
	OrderStatusDisputed         OrderStatus = "disputed"
)

// EscrowStatus — состояние удержанных средств по заказу. Для мгновенных
// цифровых товаров всегда none, удержание используется только для услуг
// формата совместной работы.
type EscrowStatus string

const (
	EscrowStatusNone     EscrowStatus = "none"
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// orderTransitions описывает допустимые переходы статусов.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusAwaitingUpload, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusAwaitingUpload:   {OrderStatusInProgress, OrderStatusCancelled},
	OrderStatusInProgress:       {OrderStatusAwaitingDelivery, OrderStatusCancelled},
	OrderStatusAwaitingDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:        {OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusDisputed:         {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusCompleted:        {},
	OrderStatusCancelled:        {},
	OrderStatusRefunded:         {},
}

// CanTransitionTo проверяет, допустим ли переход в целевой статус.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	allowed, ok := orderTransitions[s]
	return ok && len(allowed) == 0
}

// IsValid проверяет, что значение входит в перечисление.
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IllegalTransitionError возвращается при попытке недопустимого перехода.
type IllegalTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса заказа: %s -> %s", e.From, e.To)
}

// Order описывает покупку одной услуги одним покупателем у одного продавца.
// Стороны и услуга неизменяемы после создания, заказ никогда не удаляется:
// терминальные состояния хранятся для аудита.
type Order struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	OrderNumber       string         `db:"order_number" json:"order_number"`
	BuyerID           uuid.UUID      `db:"buyer_id" json:"buyer_id"`
	SellerID          uuid.UUID      `db:"seller_id" json:"seller_id"`
	ListingID         uuid.UUID      `db:"listing_id" json:"listing_id"`
	AmountCents       int64          `db:"amount_cents" json:"amount_cents"`
	PlatformFeeCents  int64          `db:"platform_fee_cents" json:"platform_fee_cents"`
	SellerAmountCents int64          `db:"seller_amount_cents" json:"seller_amount_cents"`
	Currency          string         `db:"currency" json:"currency"`
	Status            OrderStatus    `db:"status" json:"status"`
	EscrowStatus      EscrowStatus   `db:"escrow_status" json:"escrow_status"`
	PaymentReference  string         `db:"payment_reference" json:"payment_reference"`
	BuyerFiles        pq.StringArray `db:"buyer_files" json:"buyer_files,omitempty"`
	BuyerFilesAt      *time.Time     `db:"buyer_files_at" json:"buyer_files_at,omitempty"`
	SellerFiles       pq.StringArray `db:"seller_files" json:"seller_files,omitempty"`
	SellerFilesAt     *time.Time     `db:"seller_files_at" json:"seller_files_at,omitempty"`
	DeliveryDeadline  *time.Time     `db:"delivery_deadline" json:"delivery_deadline,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt       *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// IsParticipant проверяет, что пользователь является стороной заказа.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}
