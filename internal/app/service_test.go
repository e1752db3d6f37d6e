package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lanedigital/donation-service/internal/collector"
	"github.com/lanedigital/donation-service/internal/domain"
	"github.com/lanedigital/donation-service/internal/store"
	"github.com/lanedigital/donation-service/pkg/stripeclient"
)

// stubRepository is an in-memory Repository for service tests.
type stubRepository struct {
	store.Repository

	donations map[int64]*domain.Donation
	nextID    int64
}

func newStubRepository() *stubRepository {
	return &stubRepository{donations: map[int64]*domain.Donation{}, nextID: 1}
}

func (r *stubRepository) CreateDonation(ctx context.Context, d *domain.Donation) error {
	d.ID = r.nextID
	r.nextID++
	d.CreatedAt = time.Now()
	copied := *d
	r.donations[d.ID] = &copied
	return nil
}

func (r *stubRepository) FindDonationByID(ctx context.Context, id int64) (*domain.Donation, error) {
	d, ok := r.donations[id]
	if !ok {
		return nil, store.ErrDonationNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *stubRepository) SetCRMContactID(ctx context.Context, id int64, contactID string) error {
	d, ok := r.donations[id]
	if !ok {
		return store.ErrDonationNotFound
	}
	if d.CRMContactID == nil {
		d.CRMContactID = &contactID
	}
	return nil
}

func (r *stubRepository) MarkAwaitingPayment(ctx context.Context, id int64) error {
	d, ok := r.donations[id]
	if !ok {
		return store.ErrDonationNotFound
	}
	if d.Status != domain.StatusDraft {
		return store.ErrNotAwaitingPayment
	}
	d.Status = domain.StatusAwaitingPayment
	return nil
}

func (r *stubRepository) MarkPaid(ctx context.Context, id int64, paymentReference string) error {
	d, ok := r.donations[id]
	if !ok {
		return store.ErrDonationNotFound
	}
	if d.Status != domain.StatusAwaitingPayment {
		return store.ErrNotAwaitingPayment
	}
	d.Status = domain.StatusPaid
	d.Paid = true
	d.PaymentReference = &paymentReference
	return nil
}

func (r *stubRepository) MarkPaymentFailed(ctx context.Context, id int64, reason string) error {
	d, ok := r.donations[id]
	if !ok {
		return store.ErrDonationNotFound
	}
	if d.Status != domain.StatusAwaitingPayment {
		return store.ErrNotAwaitingPayment
	}
	d.Status = domain.StatusDraft
	d.FailureReason = &reason
	return nil
}

func (r *stubRepository) MarkCompleted(ctx context.Context, id int64, status domain.DonationStatus) (bool, error) {
	d, ok := r.donations[id]
	if !ok {
		return false, store.ErrDonationNotFound
	}
	if d.Complete {
		return false, nil
	}
	d.Complete = true
	d.Status = status
	return true, nil
}

// stubCRM counts calls and can fail contact creation.
type stubCRM struct {
	contactID       string
	contactErr      error
	contactCalls    int
	donationCalls   int
	lastDonation    *domain.Donation
	addDonationErr  error
}

func (c *stubCRM) CreateContact(ctx context.Context, d *domain.Donation) (string, error) {
	c.contactCalls++
	if c.contactErr != nil {
		return "", c.contactErr
	}
	return c.contactID, nil
}

func (c *stubCRM) AddDonation(ctx context.Context, d *domain.Donation) error {
	c.donationCalls++
	copied := *d
	c.lastDonation = &copied
	return c.addDonationErr
}

// stubPayments records intent requests.
type stubPayments struct {
	calls      int
	lastAmount int64
	err        error
}

func (p *stubPayments) CreateIntent(ctx context.Context, amountMinorUnits int64, currency, receiptEmail, description string) (*stripeclient.PaymentIntent, error) {
	p.calls++
	p.lastAmount = amountMinorUnits
	if p.err != nil {
		return nil, p.err
	}
	return &stripeclient.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret",
		Status:       "requires_payment_method",
	}, nil
}

// stubDispatcher counts sends per kind.
type stubDispatcher struct {
	confirmations int
	notifications int
}

func (d *stubDispatcher) Send(ctx context.Context, kind domain.EmailKind, donation *domain.Donation) error {
	switch kind {
	case domain.EmailKindConfirmation:
		d.confirmations++
	case domain.EmailKindNotification:
		d.notifications++
	}
	return nil
}

func newTestService() (*Service, *stubRepository, *stubCRM, *stubPayments, *stubDispatcher) {
	repo := newStubRepository()
	crm := &stubCRM{contactID: "C-1"}
	payments := &stubPayments{}
	dispatcher := &stubDispatcher{}
	svc := NewService(repo, collector.New(nil), crm, payments, dispatcher)
	return svc, repo, crm, payments, dispatcher
}

func singleSubmission(amount string) collector.RawSubmission {
	return collector.RawSubmission{
		DonationType: "single",
		Amount:       amount,
		FirstName:    "Jane",
		Surname:      "Doe",
		AddressLine1: "1 High Street",
		Town:         "Edinburgh",
		Postcode:     "EH1 1AA",
		Country:      "GB",
		Email:        "jane@example.com",
	}
}

func recurringSubmission() collector.RawSubmission {
	raw := singleSubmission("5")
	raw.DonationType = "recurring"
	raw.AccountName = "J Doe"
	raw.AccountNumber = "12-34 56 78"
	raw.SortCode = "12-34-56"
	raw.DayOfMonth = 15
	return raw
}

func TestSubmitSingleDonationFullLifecycle(t *testing.T) {
	svc, repo, crm, payments, dispatcher := newTestService()

	result, err := svc.Submit(context.Background(), singleSubmission("10"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !result.RequiresPayment {
		t.Error("single donation should require payment")
	}
	if result.ClientSecret != "pi_123_secret" {
		t.Errorf("client secret = %q", result.ClientSecret)
	}
	if result.DonationType != domain.DonationTypeSingle || result.Amount != 10.0 {
		t.Errorf("result metadata = %s/%v, want single/10.00", result.DonationType, result.Amount)
	}
	if payments.lastAmount != 1000 {
		t.Errorf("intent amount = %d, want 1000 minor units", payments.lastAmount)
	}

	stored, _ := repo.FindDonationByID(context.Background(), result.DonationID)
	if stored.Status != domain.StatusAwaitingPayment {
		t.Errorf("status = %s, want awaiting_payment", stored.Status)
	}
	if stored.AmountMinorUnits != 1000 {
		t.Errorf("amount = %d, want 1000", stored.AmountMinorUnits)
	}

	completion, err := svc.ConfirmPayment(context.Background(), result.DonationID, "pi_123", "succeeded")
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if completion.Route != RouteDonorThanks {
		t.Errorf("route = %q, want %q", completion.Route, RouteDonorThanks)
	}
	if completion.DonationType != domain.DonationTypeSingle || completion.Amount != 10.0 {
		t.Errorf("completion metadata = %s/%v, want single/10.00", completion.DonationType, completion.Amount)
	}

	stored, _ = repo.FindDonationByID(context.Background(), result.DonationID)
	if !stored.Paid || stored.PaymentReference == nil || *stored.PaymentReference != "pi_123" {
		t.Errorf("payment not recorded: paid=%v ref=%v", stored.Paid, stored.PaymentReference)
	}
	if !stored.Complete || stored.Status != domain.StatusCompleted {
		t.Errorf("donation not completed: complete=%v status=%s", stored.Complete, stored.Status)
	}

	if crm.donationCalls != 1 {
		t.Errorf("AddDonation calls = %d, want 1", crm.donationCalls)
	}
	if crm.lastDonation.AmountMajorUnits() != 10.0 {
		t.Errorf("CRM amount = %v, want 10.00", crm.lastDonation.AmountMajorUnits())
	}
	if dispatcher.confirmations != 1 || dispatcher.notifications != 1 {
		t.Errorf("emails = %d/%d, want 1/1", dispatcher.confirmations, dispatcher.notifications)
	}
}

func TestSubmitRecurringCompletesWithoutPayment(t *testing.T) {
	svc, repo, crm, payments, dispatcher := newTestService()

	result, err := svc.Submit(context.Background(), recurringSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if result.RequiresPayment {
		t.Error("recurring donation should not require payment")
	}
	if !result.Completed {
		t.Error("recurring donation should complete immediately")
	}
	if result.Route != RouteMembershipThanks {
		t.Errorf("route = %q, want %q", result.Route, RouteMembershipThanks)
	}
	if result.DonationType != domain.DonationTypeRecurring || result.Amount != 5.0 {
		t.Errorf("result metadata = %s/%v, want recurring/5.00", result.DonationType, result.Amount)
	}
	if payments.calls != 0 {
		t.Errorf("payment intent calls = %d, want 0", payments.calls)
	}

	stored, _ := repo.FindDonationByID(context.Background(), result.DonationID)
	if stored.Status != domain.StatusCompletedNoPayment {
		t.Errorf("status = %s, want completed_no_payment", stored.Status)
	}
	if stored.BankDetails.AccountNumber != "12345678" {
		t.Errorf("account number = %q, want 12345678", stored.BankDetails.AccountNumber)
	}
	if stored.BankDetails.SortCode != "123456" {
		t.Errorf("sort code = %q, want 123456", stored.BankDetails.SortCode)
	}

	if crm.donationCalls != 1 || dispatcher.confirmations != 1 || dispatcher.notifications != 1 {
		t.Errorf("side effects = %d/%d/%d, want 1/1/1", crm.donationCalls, dispatcher.confirmations, dispatcher.notifications)
	}
}

func TestSubmitProceedsWhenCRMContactFails(t *testing.T) {
	svc, repo, crm, _, dispatcher := newTestService()
	crm.contactErr = errors.New("connection refused")

	result, err := svc.Submit(context.Background(), recurringSubmission())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Completed {
		t.Error("donation should still complete without a CRM contact")
	}

	stored, _ := repo.FindDonationByID(context.Background(), result.DonationID)
	if stored.CRMContactID != nil {
		t.Errorf("contact id should stay null, got %v", *stored.CRMContactID)
	}
	if !stored.Complete {
		t.Error("donation should be complete")
	}
	if crm.donationCalls != 0 {
		t.Errorf("AddDonation should be skipped without a contact id, got %d calls", crm.donationCalls)
	}
	if dispatcher.confirmations != 1 {
		t.Errorf("confirmation emails = %d, want 1", dispatcher.confirmations)
	}
}

func TestConfirmPaymentReplayIsIdempotent(t *testing.T) {
	svc, _, crm, _, dispatcher := newTestService()

	result, err := svc.Submit(context.Background(), singleSubmission("10"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	first, err := svc.ConfirmPayment(context.Background(), result.DonationID, "pi_123", "succeeded")
	if err != nil {
		t.Fatalf("first ConfirmPayment failed: %v", err)
	}
	second, err := svc.ConfirmPayment(context.Background(), result.DonationID, "pi_123", "succeeded")
	if err != nil {
		t.Fatalf("replayed ConfirmPayment failed: %v", err)
	}
	if first.Route != second.Route || first.Reference != second.Reference {
		t.Errorf("replay result differs: %+v vs %+v", first, second)
	}

	if crm.donationCalls != 1 {
		t.Errorf("AddDonation calls = %d, want exactly 1", crm.donationCalls)
	}
	if dispatcher.confirmations != 1 || dispatcher.notifications != 1 {
		t.Errorf("emails = %d/%d, want exactly 1/1", dispatcher.confirmations, dispatcher.notifications)
	}
}

func TestConfirmPaymentRejectsUnsucceededIntent(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	result, err := svc.Submit(context.Background(), singleSubmission("10"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := svc.ConfirmPayment(context.Background(), result.DonationID, "pi_123", "requires_action"); !errors.Is(err, ErrPaymentIntentNotSucceeded) {
		t.Errorf("err = %v, want ErrPaymentIntentNotSucceeded", err)
	}
	if _, err := svc.ConfirmPayment(context.Background(), result.DonationID, "", "succeeded"); !errors.Is(err, ErrPaymentIntentNotSucceeded) {
		t.Errorf("err = %v, want ErrPaymentIntentNotSucceeded", err)
	}
}

func TestFailPaymentReturnsDonationToDraft(t *testing.T) {
	svc, repo, crm, _, dispatcher := newTestService()

	result, err := svc.Submit(context.Background(), singleSubmission("10"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := svc.FailPayment(context.Background(), result.DonationID, "card declined"); err != nil {
		t.Fatalf("FailPayment failed: %v", err)
	}

	stored, _ := repo.FindDonationByID(context.Background(), result.DonationID)
	if stored.Status != domain.StatusDraft {
		t.Errorf("status = %s, want draft", stored.Status)
	}
	if stored.FailureReason == nil || *stored.FailureReason != "card declined" {
		t.Errorf("failure reason = %v", stored.FailureReason)
	}
	if crm.donationCalls != 0 || dispatcher.confirmations != 0 {
		t.Error("failed payment must not trigger CRM sync or emails")
	}
}

func TestSubmitRejectsInvalidAmount(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	_, err := svc.Submit(context.Background(), singleSubmission("0"))
	var vErr *collector.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(repo.donations) != 0 {
		t.Errorf("no donation should be persisted, got %d", len(repo.donations))
	}
}

func TestProcessCheckoutOrder(t *testing.T) {
	svc, repo, crm, _, dispatcher := newTestService()

	order := domain.CheckoutOrder{
		OrderID:        uuid.New(),
		Email:          "jane@example.com",
		StripeChargeID: "ch_987",
		Contact: domain.Contact{
			FirstName:    "Jane",
			Surname:      "Doe",
			AddressLine1: "1 High Street",
			Town:         "Edinburgh",
			Postcode:     "EH1 1AA",
			Country:      "GB",
		},
		Items: []domain.CheckoutLineItem{
			{ItemID: uuid.New(), Title: "£10 donation", AmountMinor: 1000},
			{
				ItemID:         uuid.New(),
				Title:          "Sponsor a kennel",
				AmountMinor:    2500,
				AppealCode:     "63010",
				SponsorDetails: &domain.SponsorDetails{ARRCID: "ARRC1", SpaceType: "kennel"},
			},
		},
	}

	results, err := svc.ProcessCheckoutOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("ProcessCheckoutOrder failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	if crm.contactCalls != 1 {
		t.Errorf("CreateContact calls = %d, want 1 per order", crm.contactCalls)
	}
	if crm.donationCalls != 2 {
		t.Errorf("AddDonation calls = %d, want 2", crm.donationCalls)
	}
	if dispatcher.confirmations != 2 || dispatcher.notifications != 2 {
		t.Errorf("emails = %d/%d, want 2/2", dispatcher.confirmations, dispatcher.notifications)
	}

	first, _ := repo.FindDonationByID(context.Background(), results[0].DonationID)
	if first.DonationType != domain.DonationTypeSingle || first.SingleDonationType != domain.SingleDonationShop {
		t.Errorf("first item type = %s/%s, want single/shop", first.DonationType, first.SingleDonationType)
	}
	if first.PaymentReference == nil || *first.PaymentReference != "ch_987" {
		t.Errorf("payment reference = %v, want ch_987", first.PaymentReference)
	}
	if !first.Complete {
		t.Error("checkout donation should be complete")
	}

	second, _ := repo.FindDonationByID(context.Background(), results[1].DonationID)
	if second.DonationType != domain.DonationTypeSponsor {
		t.Errorf("second item type = %s, want sponsor", second.DonationType)
	}
	if second.AppealCode != "63010" {
		t.Errorf("second item appeal = %q, want 63010", second.AppealCode)
	}
	if second.CRMContactID == nil || *second.CRMContactID != "C-1" {
		t.Errorf("second item should share the order contact, got %v", second.CRMContactID)
	}
}

func TestProcessCheckoutOrderRejectsMissingCharge(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	order := domain.CheckoutOrder{
		OrderID: uuid.New(),
		Items:   []domain.CheckoutLineItem{{ItemID: uuid.New(), Title: "£10 donation", AmountMinor: 1000}},
	}
	if _, err := svc.ProcessCheckoutOrder(context.Background(), order); err == nil {
		t.Fatal("expected error for missing charge id")
	}
}

func TestSubmitAdminEnteredRoutesToAdminSuccess(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	raw := recurringSubmission()
	raw.AdminEntered = true

	result, err := svc.Submit(context.Background(), raw)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Route != RouteAdminSuccess {
		t.Errorf("route = %q, want %q", result.Route, RouteAdminSuccess)
	}
}
