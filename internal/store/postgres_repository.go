/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All SQL queries
 * for offers, payments, payouts, admin actions and rate cards live here.
 *
 * Schema notes:
 * - `offers.items` is a jsonb column holding the ordered line items.
 * - `payments` carries a partial unique index on (offer_id) WHERE status IN
 *   ('unpaid','paid','refund_required'), the database-level backstop for the
 *   single live payment invariant.
 * - `payouts.offer_id` is unique, the backstop for one payout per offer.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/collabry/offer-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const offerColumns = `id, campaign_id, brand_id, creator_id, counter_offer_id, items, currency,
	platform_fee_pct, subtotal_cents, platform_fee_cents, total_cents, status,
	deadline, expires_at, notes, created_at, updated_at`

func scanOffer(row pgx.Row) (*domain.Offer, error) {
	var offer domain.Offer
	var itemsJSON []byte
	err := row.Scan(
		&offer.ID, &offer.CampaignID, &offer.BrandID, &offer.CreatorID, &offer.CounterOfferID,
		&itemsJSON, &offer.Currency, &offer.PlatformFeePct, &offer.SubtotalCents,
		&offer.PlatformFeeCents, &offer.TotalCents, &offer.Status,
		&offer.Deadline, &offer.ExpiresAt, &offer.Notes, &offer.CreatedAt, &offer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &offer.Items); err != nil {
		return nil, fmt.Errorf("failed to decode offer items: %w", err)
	}
	return &offer, nil
}

// CreateOffer inserts a new offer row with its derived totals.
func (r *PostgresRepository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	itemsJSON, err := json.Marshal(offer.Items)
	if err != nil {
		return fmt.Errorf("failed to encode offer items: %w", err)
	}

	query := `
		INSERT INTO offers (
			id, campaign_id, brand_id, creator_id, counter_offer_id, items, currency,
			platform_fee_pct, subtotal_cents, platform_fee_cents, total_cents, status,
			deadline, expires_at, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query,
		offer.ID, offer.CampaignID, offer.BrandID, offer.CreatorID, offer.CounterOfferID,
		itemsJSON, offer.Currency, offer.PlatformFeePct, offer.SubtotalCents,
		offer.PlatformFeeCents, offer.TotalCents, offer.Status,
		offer.Deadline, offer.ExpiresAt, offer.Notes,
	)
	return err
}

// GetOfferByID retrieves one offer by primary key.
func (r *PostgresRepository) GetOfferByID(ctx context.Context, offerID uuid.UUID) (*domain.Offer, error) {
	query := fmt.Sprintf("SELECT %s FROM offers WHERE id = $1", offerColumns)
	return scanOffer(r.db.QueryRow(ctx, query, offerID))
}

func (r *PostgresRepository) listOffers(ctx context.Context, column string, ownerID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s FROM offers WHERE %s = $1", offerColumns, column)
	args := []interface{}{ownerID}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, opts.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, rows.Err()
}

// ListOffersByBrand returns offers created by a brand, newest first.
func (r *PostgresRepository) ListOffersByBrand(ctx context.Context, brandID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error) {
	return r.listOffers(ctx, "brand_id", brandID, opts)
}

// ListOffersByCreator returns offers addressed to a creator, newest first.
func (r *PostgresRepository) ListOffersByCreator(ctx context.Context, creatorID uuid.UUID, opts domain.OfferListOptions) ([]domain.Offer, error) {
	return r.listOffers(ctx, "creator_id", creatorID, opts)
}

// SwapOfferStatus performs the compare-and-swap on offers.status. A false
// return with a nil error means the row exists but its status moved on; the
// caller decides whether that is a conflict or an idempotent no-op.
func (r *PostgresRepository) SwapOfferStatus(ctx context.Context, offerID uuid.UUID, from, to domain.OfferStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE offers SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		offerID, from, to,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "lost the race" from "no such offer".
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM offers WHERE id = $1)`, offerID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrOfferNotFound
	}
	return false, nil
}

// UpdateOfferPricing writes new line items together with their recomputed
// totals, so a reader can never observe items without matching derived
// amounts. The write is conditioned on the offer still being a draft, closing
// the window between the service's status check and this update.
func (r *PostgresRepository) UpdateOfferPricing(ctx context.Context, offerID uuid.UUID, items []domain.LineItem, platformFeePct int, totals PricingTotals) error {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode offer items: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE offers
		SET items = $2, platform_fee_pct = $3, subtotal_cents = $4,
			platform_fee_cents = $5, total_cents = $6, updated_at = NOW()
		WHERE id = $1 AND status = $7
	`, offerID, itemsJSON, platformFeePct, totals.SubtotalCents, totals.PlatformFeeCents, totals.TotalCents, domain.OfferDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM offers WHERE id = $1)`, offerID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrOfferNotFound
		}
		return domain.PreconditionFailed("pricing can only change while the offer is a draft")
	}
	return nil
}

// ListExpiredSentOffers returns sent offers whose expires_at has passed,
// oldest first, for the expiry sweep.
func (r *PostgresRepository) ListExpiredSentOffers(ctx context.Context, now time.Time, limit int) ([]domain.Offer, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM offers
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, offerColumns)

	rows, err := r.db.Query(ctx, query, domain.OfferSent, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, rows.Err()
}

const paymentColumns = `id, offer_id, amount_cents, currency, processor_session_id, checkout_url,
	status, failure_reason, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.OfferID, &p.AmountCents, &p.Currency, &p.ProcessorSessionID,
		&p.CheckoutURL, &p.Status, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts a payment row. The partial unique index on live
// payments turns a duplicate checkout race into a constraint violation,
// surfaced as ErrPaymentNotFound-adjacent conflict for the service to map.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, offer_id, amount_cents, currency, processor_session_id, checkout_url,
			status, failure_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		payment.ID, payment.OfferID, payment.AmountCents, payment.Currency,
		payment.ProcessorSessionID, payment.CheckoutURL, payment.Status, payment.FailureReason,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.PreconditionFailed("a live payment already exists for this offer")
		}
		return err
	}
	return nil
}

// GetPaymentByID retrieves one payment by primary key.
func (r *PostgresRepository) GetPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}

// FindLivePaymentByOffer returns the payment still holding money against an
// offer (unpaid, paid or refund_required), if any.
func (r *PostgresRepository) FindLivePaymentByOffer(ctx context.Context, offerID uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE offer_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, offerID, domain.PaymentUnpaid, domain.PaymentPaid, domain.PaymentRefundRequired))
}

// FindPaymentBySessionID resolves a payment from a processor session id,
// used by webhook intake and the reconciliation sweep.
func (r *PostgresRepository) FindPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE processor_session_id = $1", paymentColumns)
	return scanPayment(r.db.QueryRow(ctx, query, sessionID))
}

// SwapPaymentStatus performs the compare-and-swap on payments.status.
func (r *PostgresRepository) SwapPaymentStatus(ctx context.Context, paymentID uuid.UUID, from, to domain.PaymentStatus, failureReason *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $3, failure_reason = COALESCE($4, failure_reason), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, paymentID, from, to, failureReason)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, paymentID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrPaymentNotFound
	}
	return false, nil
}

// ListStaleUnpaidPayments returns unpaid payments created before the cutoff,
// oldest first, for the reconciliation sweep.
func (r *PostgresRepository) ListStaleUnpaidPayments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`, paymentColumns)

	rows, err := r.db.Query(ctx, query, domain.PaymentUnpaid, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

const payoutColumns = `id, creator_id, offer_id, amount_cents, currency, method, status,
	reference_number, created_at, updated_at`

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var p domain.Payout
	err := row.Scan(
		&p.ID, &p.CreatorID, &p.OfferID, &p.AmountCents, &p.Currency,
		&p.Method, &p.Status, &p.ReferenceNumber, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePayout inserts a payout row. The unique constraint on offer_id maps
// to ErrPayoutExists so a retried release can detect the earlier success.
func (r *PostgresRepository) CreatePayout(ctx context.Context, payout *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, creator_id, offer_id, amount_cents, currency, method, status,
			reference_number, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		payout.ID, payout.CreatorID, payout.OfferID, payout.AmountCents,
		payout.Currency, payout.Method, payout.Status, payout.ReferenceNumber,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrPayoutExists
		}
		return err
	}
	return nil
}

// GetPayoutByID retrieves one payout by primary key.
func (r *PostgresRepository) GetPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.Payout, error) {
	query := fmt.Sprintf("SELECT %s FROM payouts WHERE id = $1", payoutColumns)
	return scanPayout(r.db.QueryRow(ctx, query, payoutID))
}

// FindPayoutByOffer returns the payout for an offer, if one exists.
func (r *PostgresRepository) FindPayoutByOffer(ctx context.Context, offerID uuid.UUID) (*domain.Payout, error) {
	query := fmt.Sprintf("SELECT %s FROM payouts WHERE offer_id = $1", payoutColumns)
	return scanPayout(r.db.QueryRow(ctx, query, offerID))
}

// SwapPayoutStatus performs the compare-and-swap on payouts.status.
func (r *PostgresRepository) SwapPayoutStatus(ctx context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, referenceNumber *string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payouts
		SET status = $3, reference_number = COALESCE($4, reference_number), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, payoutID, from, to, referenceNumber)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payouts WHERE id = $1)`, payoutID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrPayoutNotFound
	}
	return false, nil
}

// CreateAdminAction appends a row to the admin audit trail.
func (r *PostgresRepository) CreateAdminAction(ctx context.Context, action *domain.AdminAction) error {
	query := `
		INSERT INTO admin_actions (id, offer_id, actor_id, action, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		action.ID, action.OfferID, action.ActorID, action.Action, action.Reason,
	)
	return err
}

// ListAdminActionsByOffer returns the audit trail for an offer, newest first.
func (r *PostgresRepository) ListAdminActionsByOffer(ctx context.Context, offerID uuid.UUID) ([]domain.AdminAction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, offer_id, actor_id, action, reason, created_at
		FROM admin_actions
		WHERE offer_id = $1
		ORDER BY created_at DESC
	`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []domain.AdminAction
	for rows.Next() {
		var a domain.AdminAction
		if err := rows.Scan(&a.ID, &a.OfferID, &a.ActorID, &a.Action, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// FindRateCardItem returns a creator's published rate for one deliverable type.
func (r *PostgresRepository) FindRateCardItem(ctx context.Context, creatorID uuid.UUID, deliverable domain.DeliverableType) (*domain.RateCardItem, error) {
	var item domain.RateCardItem
	err := r.db.QueryRow(ctx, `
		SELECT creator_id, deliverable_type, base_price_cents, currency
		FROM rate_card_items
		WHERE creator_id = $1 AND deliverable_type = $2
	`, creatorID, deliverable).Scan(&item.CreatorID, &item.DeliverableType, &item.BasePriceCents, &item.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRateCardNotFound
		}
		return nil, err
	}
	return &item, nil
}
