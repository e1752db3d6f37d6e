/**
 * @description
 * This package builds and publishes the outbound email events raised when a
 * donation completes. Confirmations go to the donor; notifications go to the
 * staff address configured for the donation type, with a separate address for
 * staff-entered donations. Rendering happens in the mailer service, so the
 * dispatcher only selects a template key and assembles the interpolation data.
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: Event identifiers.
 * - internal/domain: Donation and EmailEvent models.
 * - pkg/rabbitmq: The event publisher.
 */
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lanedigital/donation-service/internal/domain"
	"github.com/lanedigital/donation-service/pkg/rabbitmq"
)

// Dispatcher sends donation emails.
type Dispatcher interface {
	Send(ctx context.Context, kind domain.EmailKind, d *domain.Donation) error
}

// Recipients holds the staff notification addresses per donation type.
type Recipients struct {
	Single     string
	Recurring  string
	Sponsor    string
	Fundraiser string
	Admin      string
}

func (r Recipients) forDonation(d *domain.Donation) string {
	if d.AdminEntered && r.Admin != "" {
		return r.Admin
	}
	switch d.DonationType {
	case domain.DonationTypeRecurring:
		return r.Recurring
	case domain.DonationTypeSponsor:
		return r.Sponsor
	case domain.DonationTypeFundraiser:
		return r.Fundraiser
	default:
		return r.Single
	}
}

// EmailDispatcher publishes EmailEvent messages for the mailer to render.
type EmailDispatcher struct {
	producer   rabbitmq.Publisher
	exchange   string
	recipients Recipients
}

// NewEmailDispatcher creates a new EmailDispatcher.
func NewEmailDispatcher(producer rabbitmq.Publisher, exchange string, recipients Recipients) *EmailDispatcher {
	return &EmailDispatcher{
		producer:   producer,
		exchange:   exchange,
		recipients: recipients,
	}
}

// Send publishes one email event for the donation. Confirmation events with
// no donor email address are skipped rather than failed, since the address is
// optional on staff-entered donations.
func (n *EmailDispatcher) Send(ctx context.Context, kind domain.EmailKind, d *domain.Donation) error {
	var to string
	switch kind {
	case domain.EmailKindConfirmation:
		to = d.Contact.Email
		if to == "" {
			return nil
		}
	case domain.EmailKindNotification:
		to = n.recipients.forDonation(d)
		if to == "" {
			return fmt.Errorf("no notification recipient configured for donation type %q", d.DonationType)
		}
	default:
		return fmt.Errorf("unknown email kind %q", kind)
	}

	event := domain.EmailEvent{
		ID:          uuid.New(),
		Kind:        kind,
		TemplateKey: templateKey(kind, d),
		To:          to,
		Data:        eventData(d),
		Timestamp:   time.Now().UTC(),
	}

	return n.producer.PublishEmailEvent(ctx, n.exchange, event)
}

func templateKey(kind domain.EmailKind, d *domain.Donation) string {
	return fmt.Sprintf("donation_%s_%s", kind, d.DonationType)
}

func eventData(d *domain.Donation) map[string]string {
	data := map[string]string{
		"reference":     d.Reference(),
		"donation_type": string(d.DonationType),
		"amount":        fmt.Sprintf("%.2f", d.AmountMajorUnits()),
		"name":          d.Contact.FullName(),
		"email":         d.Contact.Email,
		"description":   d.Description,
	}
	if d.AdminEntered {
		data["admin_entered"] = "1"
	}
	if d.BankDetails != nil {
		data["day_of_month"] = fmt.Sprintf("%d", d.BankDetails.DayOfMonth)
	}
	if d.SponsorDetails != nil {
		data["space_type"] = d.SponsorDetails.SpaceType
		if d.SponsorDetails.IsGift {
			data["gift_recipient"] = d.SponsorDetails.RecipientFirstName + " " + d.SponsorDetails.RecipientSurname
		}
	}
	return data
}
