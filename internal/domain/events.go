/**
 * @description
 * This file defines the event payloads the donation-service publishes to
 * RabbitMQ and the checkout payloads it accepts from the shop. The mailer
 * service consumes EmailEvent messages; the shop posts a CheckoutOrder when a
 * commerce order containing donation line items is placed.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailKind distinguishes the two outbound message types.
type EmailKind string

const (
	// EmailKindConfirmation is the donor-facing thank-you message.
	EmailKindConfirmation EmailKind = "confirmation"
	// EmailKindNotification is the internal staff alert about a new donation.
	EmailKindNotification EmailKind = "notification"
)

// EmailEvent is the message payload published for the mailer service. The
// template key selects the rendered body; Data carries the donation summary
// the templates interpolate.
type EmailEvent struct {
	ID          uuid.UUID         `json:"id"`
	Kind        EmailKind         `json:"kind"`
	TemplateKey string            `json:"template_key"`
	To          string            `json:"to"`
	BCC         string            `json:"bcc,omitempty"`
	Data        map[string]string `json:"data"`
	Timestamp   time.Time         `json:"timestamp"`
}

// CheckoutOrder is the payload posted by the shop when a commerce order is
// placed. Each line item becomes one donation.
type CheckoutOrder struct {
	OrderID        uuid.UUID          `json:"order_id"`
	Email          string             `json:"email"`
	Contact        Contact            `json:"contact"`
	StripeChargeID string             `json:"stripe_charge_id"`
	Items          []CheckoutLineItem `json:"items"`
}

// CheckoutLineItem is one purchased line within a checkout order. Sponsor
// items carry the space attribute data resolved by the shop (appeal code,
// ARRC identifiers) and the optional gift block.
type CheckoutLineItem struct {
	ItemID         uuid.UUID       `json:"item_id"`
	Title          string          `json:"title"`
	AmountMinor    int64           `json:"amount_minor_units"`
	AppealCode     string          `json:"appeal_code,omitempty"`
	SponsorDetails *SponsorDetails `json:"sponsor_details,omitempty"`
}
