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
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeAlreadyOpen возвращается при попытке открыть второй
	// активный спор по тому же заказу: частичный уникальный индекс
	// в базе закрывает и гонку двух одновременных создателей.
	ErrDisputeAlreadyOpen = errors.New("active dispute already exists for this order")
	// ErrDisputeAlreadyResolved возвращается при повторном решении спора.
	ErrDisputeAlreadyResolved = errors.New("dispute is already resolved")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create создаёт спор. Уникальность активного спора на заказ гарантирует
// частичный индекс idx_disputes_active_order.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	err := r.db.GetContext(ctx, d, `
		INSERT INTO disputes (order_id, raised_by, reason, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, d.OrderID, d.RaisedBy, d.Reason, d.Description, d.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDisputeAlreadyOpen
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// GetActiveByOrderID возвращает активный спор по заказу, если он есть.
func (r *DisputeRepository) GetActiveByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE order_id = $1 AND status IN ('open', 'under_review')
	`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// ClaimResolution атомарно помечает спор решённым. Повторный вызов по тому
// же спору не находит активной строки и возвращает ErrDisputeAlreadyResolved,
// поэтому денежное движение по решению выполняется не более одного раза.
func (r *DisputeRepository) ClaimResolution(ctx context.Context, id uuid.UUID, resolution string, adminID uuid.UUID, adminNotes string) (*models.Dispute, error) {
	var notes *string
	if adminNotes != "" {
		notes = &adminNotes
	}
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_by = $4, admin_notes = $5, resolved_at = $6
		WHERE id = $1 AND status IN ('open', 'under_review')
		RETURNING *
	`, id, models.DisputeStatusResolved, resolution, adminID, notes, time.Now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Либо спора нет, либо он уже решён — различаем отдельным чтением.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrDisputeAlreadyResolved
		}
		return nil, fmt.Errorf("dispute repository: claim resolution %w", err)
	}
	return &d, nil
}

// ReopenAfterFailedResolution возвращает спор в рассмотрение, если денежное
// движение по решению не удалось выполнить.
func (r *DisputeRepository) ReopenAfterFailedResolution(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolution = NULL, resolved_by = NULL, resolved_at = NULL
		WHERE id = $1
	`, id, models.DisputeStatusUnderReview)
	return err
}

// MarkUnderReview переводит спор в рассмотрение администратором.
func (r *DisputeRepository) MarkUnderReview(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $2 WHERE id = $1 AND status = $3
	`, id, models.DisputeStatusUnderReview, models.DisputeStatusOpen)
	return err
}

// Close закрывает спор без решения (например, при отзыве инициатором).
func (r *DisputeRepository) Close(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $2 WHERE id = $1 AND status IN ('open', 'under_review')
	`, id, models.DisputeStatusClosed)
	return err
}

// ListByUser возвращает споры по заказам, где пользователь является стороной.
func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN orders o ON d.order_id = o.id
		WHERE o.buyer_id = $1 OR o.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// ListActive возвращает все активные споры для админ-панели.
func (r *DisputeRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status IN ('open', 'under_review')
		ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`, limit, offset)
	return disputes, err
}
