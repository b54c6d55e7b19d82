package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) Create(item domain.StockItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_items (id, product_id, quantity_on_hand, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		item.ID, item.ProductID, item.QuantityOnHand, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert stock item: %w", err)
	}

	if err = insertReservations(ctx, tx, item.ID, item.Reservations); err != nil {
		return err
	}
	if err = insertAdjustments(ctx, tx, item.ID, item.Adjustments); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create stock item: %w", err)
	}

	return nil
}

func (r *stockRepository) GetByProduct(productID string) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var item domain.StockItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity_on_hand, version, created_at, updated_at
		FROM stock_items
		WHERE product_id = $1
	`, productID).Scan(
		&item.ID, &item.ProductID, &item.QuantityOnHand, &item.Version,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockItem{}, domain.ErrStockItemNotFound
		}
		return domain.StockItem{}, fmt.Errorf("select stock item: %w", err)
	}

	if item.Reservations, err = r.loadReservations(ctx, item.ID); err != nil {
		return domain.StockItem{}, err
	}
	if item.Adjustments, err = r.loadAdjustments(ctx, item.ID); err != nil {
		return domain.StockItem{}, err
	}

	return item, nil
}

// Save применяет агрегат целиком: строка склада обновляется с проверкой
// версии, резервы пересобираются под текущее состояние агрегата, а записи
// аудита только добавляются.
func (r *stockRepository) Save(item domain.StockItem) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE stock_items
		SET quantity_on_hand = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`,
		item.QuantityOnHand, item.UpdatedAt, item.ID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update stock item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		exists, err = r.stockItemExistsTx(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if !exists {
			err = domain.ErrStockItemNotFound
			return err
		}
		err = domain.ErrVersionConflict
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM stock_reservations WHERE stock_item_id = $1
	`, item.ID); err != nil {
		return fmt.Errorf("clear stock reservations: %w", err)
	}
	if err = insertReservations(ctx, tx, item.ID, item.Reservations); err != nil {
		return err
	}
	if err = insertAdjustments(ctx, tx, item.ID, item.Adjustments); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save stock item: %w", err)
	}

	return nil
}

func insertReservations(ctx context.Context, tx *sql.Tx, stockItemID string, reservations []domain.StockReservation) error {
	for _, res := range reservations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_reservations (id, stock_item_id, quantity, created_at, expires_at)
			VALUES ($1,$2,$3,$4,$5)
		`,
			res.ID, stockItemID, res.Quantity, res.CreatedAt, res.ExpiresAt,
		); err != nil {
			return fmt.Errorf("insert stock reservation: %w", err)
		}
	}
	return nil
}

func insertAdjustments(ctx context.Context, tx *sql.Tx, stockItemID string, adjustments []domain.StockAdjustment) error {
	for _, adj := range adjustments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, stock_item_id, delta, reason, actor, quantity_after, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING
		`,
			adj.ID, stockItemID, adj.Delta, adj.Reason, adj.Actor, adj.QuantityAfter, adj.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert stock adjustment: %w", err)
		}
	}
	return nil
}

func (r *stockRepository) loadReservations(ctx context.Context, stockItemID string) ([]domain.StockReservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, quantity, created_at, expires_at
		FROM stock_reservations
		WHERE stock_item_id = $1
		ORDER BY created_at ASC, id ASC
	`, stockItemID)
	if err != nil {
		return nil, fmt.Errorf("load stock reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]domain.StockReservation, 0)
	for rows.Next() {
		var res domain.StockReservation
		if err := rows.Scan(&res.ID, &res.Quantity, &res.CreatedAt, &res.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan stock reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock reservations: %w", err)
	}

	return reservations, nil
}

func (r *stockRepository) loadAdjustments(ctx context.Context, stockItemID string) ([]domain.StockAdjustment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, delta, reason, actor, quantity_after, created_at
		FROM stock_adjustments
		WHERE stock_item_id = $1
		ORDER BY created_at ASC, id ASC
	`, stockItemID)
	if err != nil {
		return nil, fmt.Errorf("load stock adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := make([]domain.StockAdjustment, 0)
	for rows.Next() {
		var adj domain.StockAdjustment
		if err := rows.Scan(&adj.ID, &adj.Delta, &adj.Reason, &adj.Actor, &adj.QuantityAfter, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock adjustment: %w", err)
		}
		adjustments = append(adjustments, adj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock adjustments: %w", err)
	}

	return adjustments, nil
}

func (r *stockRepository) stockItemExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, `SELECT id FROM stock_items WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check stock item exists: %w", err)
}

var _ domain.StockRepository = (*stockRepository)(nil)
