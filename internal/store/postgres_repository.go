/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. Scalar donation fields live in their own columns; the contact,
 * bank-detail and sponsor-detail value objects are stored as JSONB documents
 * since the service always reads and writes them whole.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lanedigital/donation-service/internal/domain"
)

// PostgresRepository is the pgx-backed implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const donationColumns = `
	id, donation_type, single_donation_type, status, amount_minor_units,
	contact, crm_contact_id, appeal_code, description, fundraising_source,
	bank_details, sponsor_details, payment_reference, complete, paid,
	admin_entered, failure_reason, created_at, updated_at`

// CreateDonation inserts a provisional record and assigns its id.
func (r *PostgresRepository) CreateDonation(ctx context.Context, d *domain.Donation) error {
	contact, bank, sponsor, err := marshalValueObjects(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO donations (
			donation_type, single_donation_type, status, amount_minor_units,
			contact, crm_contact_id, appeal_code, description,
			fundraising_source, bank_details, sponsor_details,
			payment_reference, complete, paid, admin_entered
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		d.DonationType, d.SingleDonationType, d.Status, d.AmountMinorUnits,
		contact, d.CRMContactID, d.AppealCode, d.Description,
		d.FundraisingSource, bank, sponsor,
		d.PaymentReference, d.Complete, d.Paid, d.AdminEntered,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert donation: %w", err)
	}
	return nil
}

// FindDonationByID retrieves one donation.
func (r *PostgresRepository) FindDonationByID(ctx context.Context, id int64) (*domain.Donation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	d, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return d, nil
}

// SetCRMContactID records the external contact id, only if none is set yet.
func (r *PostgresRepository) SetCRMContactID(ctx context.Context, id int64, contactID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET crm_contact_id = $2, updated_at = now()
		 WHERE id = $1 AND crm_contact_id IS NULL`, id, contactID)
	if err != nil {
		return fmt.Errorf("failed to set crm contact id on donation %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, id, nil)
	}
	return nil
}

// MarkAwaitingPayment moves a draft into the awaiting_payment state.
func (r *PostgresRepository) MarkAwaitingPayment(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET status = $2, failure_reason = NULL, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, domain.StatusAwaitingPayment, domain.StatusDraft)
	if err != nil {
		return fmt.Errorf("failed to mark donation %d awaiting payment: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, id, ErrNotAwaitingPayment)
	}
	return nil
}

// MarkPaid records the payment reference for a donation awaiting payment.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id int64, paymentReference string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET status = $2, paid = TRUE, payment_reference = $3, updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id, domain.StatusPaid, paymentReference, domain.StatusAwaitingPayment)
	if err != nil {
		return fmt.Errorf("failed to mark donation %d paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, id, ErrNotAwaitingPayment)
	}
	return nil
}

// MarkPaymentFailed returns an awaiting_payment donation to draft.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, id int64, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET status = $2, failure_reason = $3, updated_at = now()
		 WHERE id = $1 AND status = $4`,
		id, domain.StatusDraft, reason, domain.StatusAwaitingPayment)
	if err != nil {
		return fmt.Errorf("failed to mark donation %d payment failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.existsOr(ctx, id, ErrNotAwaitingPayment)
	}
	return nil
}

// MarkCompleted flips the completion flag exactly once and reports whether
// this call won the flip.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id int64, status domain.DonationStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET complete = TRUE, status = $2, updated_at = now()
		 WHERE id = $1 AND complete = FALSE`,
		id, status)
	if err != nil {
		return false, fmt.Errorf("failed to mark donation %d completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either already complete (benign) or missing.
		if err := r.existsOr(ctx, id, nil); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ListDonations returns recent donations, newest first.
func (r *PostgresRepository) ListDonations(ctx context.Context, limit, offset int) ([]domain.Donation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+donationColumns+` FROM donations ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	var donations []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

// Close releases the underlying connection pool.
func (r *PostgresRepository) Close() {
	r.db.Close()
}

// existsOr distinguishes "row missing" from a benign zero-row update. When
// the row exists, stateErr (possibly nil) is returned.
func (r *PostgresRepository) existsOr(ctx context.Context, id int64, stateErr error) error {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM donations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrDonationNotFound
	}
	return stateErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDonation(row rowScanner) (*domain.Donation, error) {
	var (
		d                     domain.Donation
		contactJSON           []byte
		bankJSON, sponsorJSON []byte
	)

	err := row.Scan(
		&d.ID, &d.DonationType, &d.SingleDonationType, &d.Status, &d.AmountMinorUnits,
		&contactJSON, &d.CRMContactID, &d.AppealCode, &d.Description, &d.FundraisingSource,
		&bankJSON, &sponsorJSON, &d.PaymentReference, &d.Complete, &d.Paid,
		&d.AdminEntered, &d.FailureReason, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &d.Contact); err != nil {
			return nil, fmt.Errorf("failed to decode contact for donation %d: %w", d.ID, err)
		}
	}
	if len(bankJSON) > 0 {
		d.BankDetails = &domain.BankDetails{}
		if err := json.Unmarshal(bankJSON, d.BankDetails); err != nil {
			return nil, fmt.Errorf("failed to decode bank details for donation %d: %w", d.ID, err)
		}
	}
	if len(sponsorJSON) > 0 {
		d.SponsorDetails = &domain.SponsorDetails{}
		if err := json.Unmarshal(sponsorJSON, d.SponsorDetails); err != nil {
			return nil, fmt.Errorf("failed to decode sponsor details for donation %d: %w", d.ID, err)
		}
	}

	return &d, nil
}

func marshalValueObjects(d *domain.Donation) (contact, bank, sponsor []byte, err error) {
	contact, err = json.Marshal(d.Contact)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode contact: %w", err)
	}
	if d.BankDetails != nil {
		bank, err = json.Marshal(d.BankDetails)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode bank details: %w", err)
		}
	}
	if d.SponsorDetails != nil {
		sponsor, err = json.Marshal(d.SponsorDetails)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode sponsor details: %w", err)
		}
	}
	return contact, bank, sponsor, nil
}
