package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/gigmarket-backend/internal/models"
)

var (
	ErrContractNotFound = errors.New("contract not found")
	// ErrContractImmutable возвращается при попытке изменить договор,
	// под которым уже стоят отметки согласия обеих сторон.
	ErrContractImmutable = errors.New("contract is signed and immutable")
)

type ContractRepository struct {
	db *sqlx.DB
}

func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create сохраняет сгенерированный договор.
func (r *ContractRepository) Create(ctx context.Context, c *models.Contract) error {
	return r.db.GetContext(ctx, c, `
		INSERT INTO contracts (order_id, document_path)
		VALUES ($1, $2)
		RETURNING *
	`, c.OrderID, c.DocumentPath)
}

// GetByOrderID возвращает договор по заказу.
func (r *ContractRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := r.db.GetContext(ctx, &c, `SELECT * FROM contracts WHERE order_id = $1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContractNotFound
	}
	return &c, err
}

// SetAgreement проставляет отметку согласия стороны. Подписанный обеими
// сторонами договор менять нельзя.
func (r *ContractRepository) SetAgreement(ctx context.Context, orderID uuid.UUID, asBuyer bool) (*models.Contract, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var c models.Contract
	err = tx.GetContext(ctx, &c, `SELECT * FROM contracts WHERE order_id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}

	if c.IsSigned() {
		return nil, ErrContractImmutable
	}

	now := time.Now()
	column := "seller_agreed_at"
	if asBuyer {
		column = "buyer_agreed_at"
	}
	err = tx.GetContext(ctx, &c, `
		UPDATE contracts SET `+column+` = $2 WHERE order_id = $1 RETURNING *
	`, orderID, now)
	if err != nil {
		return nil, err
	}

	return &c, tx.Commit()
}
