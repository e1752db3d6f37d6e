/**
 * @description
 * This file defines the `Repository` interface: the contract for all data
 * access operations the donation-service requires. Defining an interface
 * decouples the business logic from the PostgreSQL implementation and lets
 * the orchestrator tests run against hand-rolled stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/lanedigital/donation-service/internal/domain"
)

var (
	ErrDonationNotFound = errors.New("donation not found")
	// ErrNotAwaitingPayment is returned when a payment confirmation arrives
	// for a donation that is not waiting for one (already paid, cancelled, or
	// never submitted for payment).
	ErrNotAwaitingPayment = errors.New("donation is not awaiting payment")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// CreateDonation inserts a provisional record and assigns its id and
	// creation timestamp.
	CreateDonation(ctx context.Context, d *domain.Donation) error

	FindDonationByID(ctx context.Context, id int64) (*domain.Donation, error)

	// SetCRMContactID records the external contact id. Set at most once; a
	// second call with a different id is an error left to the database
	// constraint, not silently overwritten.
	SetCRMContactID(ctx context.Context, id int64, contactID string) error

	// MarkAwaitingPayment moves a draft into the awaiting_payment state.
	MarkAwaitingPayment(ctx context.Context, id int64) error

	// MarkPaid records the payment reference and flips the paid flag, but
	// only for a donation currently awaiting payment. Returns
	// ErrNotAwaitingPayment otherwise so replayed confirmations are inert.
	MarkPaid(ctx context.Context, id int64, paymentReference string) error

	// MarkPaymentFailed returns an awaiting_payment donation to draft and
	// records the gateway's reason. The donor may retry.
	MarkPaymentFailed(ctx context.Context, id int64, reason string) error

	// MarkCompleted is the check-and-set completion guard: it flips the
	// complete flag and final status exactly once, reporting whether this
	// call won the flip. Losing callers must skip all completion side
	// effects (CRM sync, emails).
	MarkCompleted(ctx context.Context, id int64, status domain.DonationStatus) (bool, error)

	// ListDonations returns recent donations for the staff listing.
	ListDonations(ctx context.Context, limit, offset int) ([]domain.Donation, error)

	Close()
}
