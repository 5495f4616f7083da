package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicatePaymentReference возвращается, когда заказ по этому
	// платежу уже создан другим путём (гонка клиент/вебхук).
	ErrDuplicatePaymentReference = errors.New("order with this payment reference already exists")
	ErrInvalidEscrowState        = errors.New("invalid escrow state")
)

// pqUniqueViolation — код ошибки PostgreSQL для нарушения уникальности.
const pqUniqueViolation = "23505"

type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// TransitionParams описывает один переход статуса и всё, что обязано
// зафиксироваться в той же транзакции базы: смену escrow-статуса, строку
// журнала и запись о движении денег.
type TransitionParams struct {
	Target  models.OrderStatus
	ActorID *uuid.UUID
	Note    string
	// EscrowStatus, если задан, меняет escrow-статус заказа вместе с переходом.
	EscrowStatus *models.EscrowStatus
	// RequireEscrowStatus, если задан, проверяется под блокировкой строки:
	// несовпадение означает проигранную гонку (двойное списание/возврат).
	RequireEscrowStatus *models.EscrowStatus
	// Ledger — записи о движении денег, создаваемые атомарно с переходом.
	Ledger []models.Transaction
	// BuyerFiles/SellerFiles, если заданы, прикрепляются вместе с переходом.
	BuyerFiles  []string
	SellerFiles []string
	// ViaProviderRefund разрешает принудительный перевод завершённого
	// заказа в refunded, когда возврат инициировал сам провайдер.
	ViaProviderRefund bool
}

// CreateWithPurchase создаёт заказ, запись о покупке и первую строку журнала
// статусов в одной транзакции. Уникальность payment_reference на уровне базы
// закрывает гонку двух одновременных создателей: проигравший получает
// ErrDuplicatePaymentReference и должен вернуть уже созданный заказ.
func (r *OrderRepository) CreateWithPurchase(ctx context.Context, order *models.Order, purchase *models.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (order_number, buyer_id, seller_id, listing_id,
			amount_cents, platform_fee_cents, seller_amount_cents, currency,
			status, escrow_status, payment_reference, delivery_deadline, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING *
	`, order.OrderNumber, order.BuyerID, order.SellerID, order.ListingID,
		order.AmountCents, order.PlatformFeeCents, order.SellerAmountCents, order.Currency,
		order.Status, order.EscrowStatus, order.PaymentReference, order.DeliveryDeadline, order.CompletedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicatePaymentReference
		}
		return fmt.Errorf("order repository: create order %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, note)
		VALUES ($1, NULL, $2, $3, $4)
	`, order.ID, order.Status, order.BuyerID, "заказ создан"); err != nil {
		return fmt.Errorf("order repository: create history %w", err)
	}

	purchase.OrderID = &order.ID
	if err = insertTransaction(ctx, tx, purchase); err != nil {
		return err
	}

	// Счётчик продаж услуги инкрементируется в той же транзакции,
	// чтобы не расходиться с фактом создания заказа.
	if _, err = tx.ExecContext(ctx, `
		UPDATE listings SET sales_count = sales_count + 1, updated_at = NOW() WHERE id = $1
	`, order.ListingID); err != nil {
		return fmt.Errorf("order repository: increment sales %w", err)
	}

	return tx.Commit()
}

// Transition — единственная точка изменения статуса заказа. Читает заказ
// под блокировкой, проверяет допустимость перехода по таблице, пишет новый
// статус, строку журнала и связанные денежные записи в одной транзакции.
func (r *OrderRepository) Transition(ctx context.Context, orderID uuid.UUID, p TransitionParams) (*models.Order, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("order repository: lock order %w", err)
	}

	if !order.Status.CanTransitionTo(p.Target) {
		// Возврат, инициированный провайдером, допускается и для уже
		// завершённого заказа: деньги вернулись фактически, учёт обязан
		// это отразить.
		providerOverride := p.ViaProviderRefund &&
			order.Status == models.OrderStatusCompleted && p.Target == models.OrderStatusRefunded
		if !providerOverride {
			return nil, &models.IllegalTransitionError{From: order.Status, To: p.Target}
		}
	}

	if p.RequireEscrowStatus != nil && order.EscrowStatus != *p.RequireEscrowStatus {
		return nil, ErrInvalidEscrowState
	}

	fromStatus := order.Status
	now := time.Now()

	escrow := order.EscrowStatus
	if p.EscrowStatus != nil {
		escrow = *p.EscrowStatus
	}

	var completedAt, cancelledAt *time.Time
	completedAt = order.CompletedAt
	cancelledAt = order.CancelledAt
	switch p.Target {
	case models.OrderStatusCompleted:
		completedAt = &now
	case models.OrderStatusCancelled:
		cancelledAt = &now
	}

	query := `
		UPDATE orders SET status = $2, escrow_status = $3, completed_at = $4,
			cancelled_at = $5, updated_at = NOW()
	`
	args := []interface{}{orderID, p.Target, escrow, completedAt, cancelledAt}
	if p.BuyerFiles != nil {
		query += fmt.Sprintf(", buyer_files = $%d, buyer_files_at = NOW()", len(args)+1)
		args = append(args, pq.Array(p.BuyerFiles))
	}
	if p.SellerFiles != nil {
		query += fmt.Sprintf(", seller_files = $%d, seller_files_at = NOW()", len(args)+1)
		args = append(args, pq.Array(p.SellerFiles))
	}
	query += " WHERE id = $1"

	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("order repository: update status %w", err)
	}

	var note *string
	if p.Note != "" {
		note = &p.Note
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, fromStatus, p.Target, p.ActorID, note); err != nil {
		return nil, fmt.Errorf("order repository: append history %w", err)
	}

	for i := range p.Ledger {
		entry := p.Ledger[i]
		entry.OrderID = &orderID
		if err = insertTransaction(ctx, tx, &entry); err != nil {
			return nil, err
		}
	}

	err = tx.GetContext(ctx, &order, `SELECT * FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order repository: reload order %w", err)
	}

	return &order, tx.Commit()
}

// GetByID возвращает заказ по внутреннему идентификатору.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.GetContext(ctx, &order, `SELECT * FROM orders WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByPaymentReference возвращает заказ по внешнему идентификатору платежа.
func (r *OrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := r.db.GetContext(ctx, &order, `SELECT * FROM orders WHERE payment_reference = $1`, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ListByUser возвращает заказы, где пользователь выступает покупателем
// или продавцом.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return orders, err
}

// History возвращает журнал переходов статуса заказа в порядке записи.
func (r *OrderRepository) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := r.db.SelectContext(ctx, &history, `
		SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	return history, err
}

// ListTransactions возвращает денежные записи по заказу.
func (r *OrderRepository) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions WHERE order_id = $1 ORDER BY created_at ASC
	`, orderID)
	return transactions, err
}

// insertTransaction создаёт запись о движении денег внутри транзакции базы.
func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *models.Transaction) error {
	err := tx.GetContext(ctx, t, `
		INSERT INTO transactions (order_id, user_id, type, amount_cents, currency, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, t.OrderID, t.UserID, t.Type, t.AmountCents, t.Currency, t.Description)
	if err != nil {
		return fmt.Errorf("order repository: create transaction %w", err)
	}
	return nil
}
