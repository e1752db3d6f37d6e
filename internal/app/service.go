/**
 * @description
 * This file contains the core business logic for the donation-service. The
 * `Service` struct drives a donation through its lifecycle, coordinating
 * between the database repository, the CRM API client, the Stripe client and
 * the email dispatcher.
 *
 * Key features:
 * - Implements the main use cases: form submissions, payment confirmation
 *   callbacks and shop checkout orders.
 * - Enforces single finalization per donation via the repository's
 *   check-and-set completion guard, so replayed callbacks cannot produce
 *   duplicate CRM rows or duplicate emails.
 * - Treats CRM and email failures as non-fatal: the local record is the
 *   source of truth and the donor always reaches a terminal page.
 *
 * @dependencies
 * - context, errors, fmt, log: Standard Go libraries.
 * - internal/collector, internal/domain, internal/notify, internal/store: Core packages.
 * - pkg/stripeclient: Payment intent creation.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/lanedigital/donation-service/internal/collector"
	"github.com/lanedigital/donation-service/internal/domain"
	"github.com/lanedigital/donation-service/internal/notify"
	"github.com/lanedigital/donation-service/internal/store"
	"github.com/lanedigital/donation-service/pkg/stripeclient"
)

const paymentCurrency = "gbp"

// Donor-facing terminal routes returned to the frontend once a donation
// completes. The recurring flow lands on the membership page.
const (
	RouteDonorThanks      = "/donate/thank-you"
	RouteMembershipThanks = "/donate/thank-you/membership"
	RouteAdminSuccess     = "/admin/donations/success"
)

// CRMGateway is the subset of the CRM client the service depends on.
type CRMGateway interface {
	CreateContact(ctx context.Context, d *domain.Donation) (string, error)
	AddDonation(ctx context.Context, d *domain.Donation) error
}

// PaymentGateway creates payment intents for donation amounts.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency, receiptEmail, description string) (*stripeclient.PaymentIntent, error)
}

// ErrPaymentIntentNotSucceeded is returned when a payment return callback
// reports anything other than a succeeded intent.
var ErrPaymentIntentNotSucceeded = errors.New("payment intent has not succeeded")

// SubmissionResult is what a donor submission produces. Payment types carry
// the Stripe client secret for in-browser confirmation; recurring donations
// complete immediately and carry the terminal route instead.
type SubmissionResult struct {
	DonationID      int64               `json:"donation_id"`
	Reference       string              `json:"reference"`
	DonationType    domain.DonationType `json:"donation_type"`
	Amount          float64             `json:"amount"`
	RequiresPayment bool                `json:"requires_payment"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	ClientSecret    string              `json:"client_secret,omitempty"`
	Completed       bool                `json:"completed"`
	Route           string              `json:"route,omitempty"`
}

// CompletionResult reports where a finished donation should send the donor,
// plus the id, type and major-unit amount the thank-you page renders.
type CompletionResult struct {
	DonationID   int64               `json:"donation_id"`
	Reference    string              `json:"reference"`
	DonationType domain.DonationType `json:"donation_type"`
	Amount       float64             `json:"amount"`
	Route        string              `json:"route"`
}

// Service provides the core business logic for donations.
type Service struct {
	repo       store.Repository
	collector  *collector.Collector
	crm        CRMGateway
	payments   PaymentGateway
	dispatcher notify.Dispatcher
}

// NewService creates a new donation service instance.
func NewService(repo store.Repository, c *collector.Collector, crm CRMGateway, payments PaymentGateway, dispatcher notify.Dispatcher) *Service {
	return &Service{
		repo:       repo,
		collector:  c,
		crm:        crm,
		payments:   payments,
		dispatcher: dispatcher,
	}
}

// Submit runs a donor submission through collection, persistence and, for
// payment types, intent creation. Recurring donations skip payment capture
// and finalize immediately.
func (s *Service) Submit(ctx context.Context, raw collector.RawSubmission) (*SubmissionResult, error) {
	d, err := s.collector.Normalize(raw)
	if err != nil {
		return nil, err
	}

	d.Status = domain.StatusDraft
	if err := s.repo.CreateDonation(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to persist donation: %w", err)
	}
	log.Printf("Submit: Created donation %d (%s) for %d minor units", d.ID, d.DonationType, d.AmountMinorUnits)

	s.createCRMContact(ctx, d)

	if !d.DonationType.RequiresPayment() {
		completion := s.finalize(ctx, d, domain.StatusCompletedNoPayment)
		return &SubmissionResult{
			DonationID:   d.ID,
			Reference:    d.Reference(),
			DonationType: d.DonationType,
			Amount:       d.AmountMajorUnits(),
			Completed:    true,
			Route:        completion.Route,
		}, nil
	}

	intent, err := s.payments.CreateIntent(ctx, d.AmountMinorUnits, paymentCurrency, d.Contact.Email,
		"Donation reference: "+d.Reference())
	if err != nil {
		log.Printf("Submit: Payment intent creation failed for donation %d: %v", d.ID, err)
		return nil, err
	}

	if err := s.repo.MarkAwaitingPayment(ctx, d.ID); err != nil {
		return nil, fmt.Errorf("failed to mark donation %d awaiting payment: %w", d.ID, err)
	}
	log.Printf("Submit: Donation %d awaiting payment, intent %s", d.ID, intent.ID)

	return &SubmissionResult{
		DonationID:      d.ID,
		Reference:       d.Reference(),
		DonationType:    d.DonationType,
		Amount:          d.AmountMajorUnits(),
		RequiresPayment: true,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

// ConfirmPayment handles the donor's return from Stripe. Only a succeeded
// intent is trusted; its id becomes the payment reference. Replays on an
// already-completed donation are answered idempotently.
func (s *Service) ConfirmPayment(ctx context.Context, donationID int64, paymentIntentID, intentStatus string) (*CompletionResult, error) {
	if intentStatus != "succeeded" {
		return nil, ErrPaymentIntentNotSucceeded
	}
	if paymentIntentID == "" {
		return nil, ErrPaymentIntentNotSucceeded
	}

	err := s.repo.MarkPaid(ctx, donationID, paymentIntentID)
	if err != nil && !errors.Is(err, store.ErrNotAwaitingPayment) {
		return nil, err
	}

	d, err := s.repo.FindDonationByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if !d.Paid {
		// Zero-row MarkPaid with an unpaid record means the state machine
		// never reached awaiting_payment.
		return nil, store.ErrNotAwaitingPayment
	}

	completion := s.finalize(ctx, d, domain.StatusCompleted)
	return completion, nil
}

// FailPayment records a gateway failure and returns the donation to draft so
// the donor can retry.
func (s *Service) FailPayment(ctx context.Context, donationID int64, reason string) error {
	if reason == "" {
		reason = "payment failed"
	}
	log.Printf("FailPayment: Donation %d payment failed: %s", donationID, reason)
	return s.repo.MarkPaymentFailed(ctx, donationID, reason)
}

// CancelPayment records a donor-initiated cancellation.
func (s *Service) CancelPayment(ctx context.Context, donationID int64) error {
	log.Printf("CancelPayment: Donation %d cancelled by donor", donationID)
	return s.repo.MarkPaymentFailed(ctx, donationID, "cancelled by donor")
}

// GetDonation loads a single donation for the staff views.
func (s *Service) GetDonation(ctx context.Context, donationID int64) (*domain.Donation, error) {
	return s.repo.FindDonationByID(ctx, donationID)
}

// ListDonations returns recent donations for the staff views.
func (s *Service) ListDonations(ctx context.Context, limit, offset int) ([]domain.Donation, error) {
	return s.repo.ListDonations(ctx, limit, offset)
}

// ProcessCheckoutOrder turns each line item of a shop order into a completed
// donation. The order arrives after the shop has already captured payment, so
// every donation is created paid with the order's charge id.
func (s *Service) ProcessCheckoutOrder(ctx context.Context, order domain.CheckoutOrder) ([]CompletionResult, error) {
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("checkout order %s has no items", order.OrderID)
	}
	if order.StripeChargeID == "" {
		return nil, fmt.Errorf("checkout order %s has no charge id", order.OrderID)
	}

	var (
		results   []CompletionResult
		contactID *string
	)

	for _, item := range order.Items {
		d, err := donationFromLineItem(order, item)
		if err != nil {
			return nil, err
		}

		if err := s.repo.CreateDonation(ctx, d); err != nil {
			return nil, fmt.Errorf("failed to persist checkout donation for item %s: %w", item.ItemID, err)
		}
		log.Printf("ProcessCheckoutOrder: Created donation %d from order %s item %s", d.ID, order.OrderID, item.ItemID)

		// One CRM contact per order, shared by all its donations.
		if contactID == nil {
			s.createCRMContact(ctx, d)
			contactID = d.CRMContactID
		} else {
			d.CRMContactID = contactID
			if err := s.repo.SetCRMContactID(ctx, d.ID, *contactID); err != nil {
				log.Printf("ProcessCheckoutOrder: Failed to store contact id on donation %d: %v", d.ID, err)
			}
		}

		results = append(results, *s.finalize(ctx, d, domain.StatusCompleted))
	}

	return results, nil
}

// createCRMContact registers the donor with the CRM. Failure leaves the
// contact id null and never blocks the donation.
func (s *Service) createCRMContact(ctx context.Context, d *domain.Donation) {
	contactID, err := s.crm.CreateContact(ctx, d)
	if err != nil {
		log.Printf("createCRMContact: CRM contact creation failed for donation %d: %v", d.ID, err)
		return
	}

	d.CRMContactID = &contactID
	if err := s.repo.SetCRMContactID(ctx, d.ID, contactID); err != nil {
		log.Printf("createCRMContact: Failed to store contact id on donation %d: %v", d.ID, err)
	}
}

// finalize moves a donation into its terminal state exactly once. The loser
// of a finalization race gets the routing result without re-running the CRM
// sync or the emails.
func (s *Service) finalize(ctx context.Context, d *domain.Donation, status domain.DonationStatus) *CompletionResult {
	result := &CompletionResult{
		DonationID:   d.ID,
		Reference:    d.Reference(),
		DonationType: d.DonationType,
		Amount:       d.AmountMajorUnits(),
		Route:        successRoute(d),
	}

	won, err := s.repo.MarkCompleted(ctx, d.ID, status)
	if err != nil {
		log.Printf("finalize: Completion guard failed for donation %d: %v", d.ID, err)
		return result
	}
	if !won {
		log.Printf("finalize: Donation %d already completed, skipping side effects", d.ID)
		return result
	}

	d.Complete = true
	d.Status = status

	if d.CRMContactID != nil {
		if err := s.crm.AddDonation(ctx, d); err != nil {
			log.Printf("finalize: CRM donation sync failed for donation %d: %v", d.ID, err)
		}
	} else {
		log.Printf("finalize: Donation %d has no CRM contact, skipping CRM sync", d.ID)
	}

	if err := s.dispatcher.Send(ctx, domain.EmailKindConfirmation, d); err != nil {
		log.Printf("finalize: Confirmation email failed for donation %d: %v", d.ID, err)
	}
	if err := s.dispatcher.Send(ctx, domain.EmailKindNotification, d); err != nil {
		log.Printf("finalize: Notification email failed for donation %d: %v", d.ID, err)
	}

	return result
}

func successRoute(d *domain.Donation) string {
	if d.AdminEntered {
		return RouteAdminSuccess
	}
	if d.DonationType == domain.DonationTypeRecurring {
		return RouteMembershipThanks
	}
	return RouteDonorThanks
}

func donationFromLineItem(order domain.CheckoutOrder, item domain.CheckoutLineItem) (*domain.Donation, error) {
	if item.AmountMinor <= 0 {
		return nil, fmt.Errorf("checkout item %s has non-positive amount %d", item.ItemID, item.AmountMinor)
	}

	chargeID := order.StripeChargeID
	d := &domain.Donation{
		Status:           domain.StatusPaid,
		AmountMinorUnits: item.AmountMinor,
		Contact:          order.Contact,
		AppealCode:       item.AppealCode,
		Description:      item.Title,
		PaymentReference: &chargeID,
		Paid:             true,
	}
	d.Contact.Email = order.Email

	if item.SponsorDetails != nil {
		d.DonationType = domain.DonationTypeSponsor
		d.SponsorDetails = item.SponsorDetails
	} else {
		d.DonationType = domain.DonationTypeSingle
		d.SingleDonationType = domain.SingleDonationShop
		if d.AppealCode == "" {
			d.AppealCode = collector.AppealCodeSingle
		}
	}

	return d, nil
}
