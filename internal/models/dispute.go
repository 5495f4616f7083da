package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы спора
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
	DisputeStatusClosed      = "closed"
)

// Решения администратора по спору
const (
	ResolutionRefundBuyer     = "refund_buyer"
	ResolutionReleaseToSeller = "release_to_seller"
	ResolutionPartialRefund   = "partial_refund"
)

// ValidResolutions — допустимые значения решения по спору.
var ValidResolutions = map[string]bool{
	ResolutionRefundBuyer:     true,
	ResolutionReleaseToSeller: true,
	ResolutionPartialRefund:   true,
}

// Dispute — спор по заказу. На заказ одновременно может существовать
// не более одного активного спора (open или under_review).
type Dispute struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrderID     uuid.UUID  `db:"order_id" json:"order_id"`
	RaisedBy    uuid.UUID  `db:"raised_by" json:"raised_by"`
	Reason      string     `db:"reason" json:"reason"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	Resolution  *string    `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	AdminNotes  *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsActive сообщает, открыт ли спор.
func (d *Dispute) IsActive() bool {
	return d.Status == DisputeStatusOpen || d.Status == DisputeStatusUnderReview
}
