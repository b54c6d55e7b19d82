package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/microcommerce/internal/domain"
)

type checkoutRepository struct {
	db *sql.DB
}

// NewCheckoutRepository создаёт PostgreSQL-реализацию CheckoutRepository.
func NewCheckoutRepository(store *Store) domain.CheckoutRepository {
	return &checkoutRepository{db: store.DB()}
}

func (r *checkoutRepository) Create(state domain.CheckoutState) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkout_states (
			order_id, buyer_id, buyer_email, step, reservation_ids,
			failure_reason, submitted_at, updated_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		state.OrderID, state.BuyerID, state.BuyerEmail, string(state.Step),
		state.ReservationIDsJSON, state.FailureReason,
		state.SubmittedAt, state.UpdatedAt, state.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert checkout state: %w", err)
	}

	return nil
}

func (r *checkoutRepository) Get(orderID string) (domain.CheckoutState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		state domain.CheckoutState
		step  string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, buyer_id, buyer_email, step, reservation_ids,
		       failure_reason, submitted_at, updated_at, version
		FROM checkout_states
		WHERE order_id = $1
	`, orderID).Scan(
		&state.OrderID, &state.BuyerID, &state.BuyerEmail, &step,
		&state.ReservationIDsJSON, &state.FailureReason,
		&state.SubmittedAt, &state.UpdatedAt, &state.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CheckoutState{}, domain.ErrCheckoutNotFound
		}
		return domain.CheckoutState{}, fmt.Errorf("select checkout state: %w", err)
	}
	state.Step = domain.CheckoutStep(step)

	return state, nil
}

func (r *checkoutRepository) Save(state domain.CheckoutState) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE checkout_states
		SET step = $1,
		    reservation_ids = $2,
		    failure_reason = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE order_id = $5
		  AND version = $6
	`,
		string(state.Step), state.ReservationIDsJSON, state.FailureReason,
		state.UpdatedAt, state.OrderID, state.Version,
	)
	if err != nil {
		return fmt.Errorf("update checkout state: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.checkoutExists(ctx, state.OrderID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCheckoutNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *checkoutRepository) Delete(orderID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM checkout_states WHERE order_id = $1
	`, orderID); err != nil {
		return fmt.Errorf("delete checkout state: %w", err)
	}

	return nil
}

func (r *checkoutRepository) checkoutExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT order_id FROM checkout_states WHERE order_id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check checkout state exists: %w", err)
}

var _ domain.CheckoutRepository = (*checkoutRepository)(nil)
