/**
 * @description
 * This file defines the core domain models for the donation-service. These
 * structs represent the canonical donation record and its value objects, used
 * throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in currency minor units (pence), which avoids
 *   floating-point inaccuracies with financial data. Conversion to pounds only
 *   happens at external boundaries (CRM payloads, display).
 * - Bank and sponsor details are pointers: they are only present for the
 *   donation types that carry them.
 */

package domain

import (
	"fmt"
	"time"
)

// DonationType categorises a contribution.
type DonationType string

const (
	DonationTypeSingle     DonationType = "single"
	DonationTypeRecurring  DonationType = "recurring"
	DonationTypeSponsor    DonationType = "sponsor"
	DonationTypeFundraiser DonationType = "fundraiser"
)

// Valid reports whether t is one of the known donation types.
func (t DonationType) Valid() bool {
	switch t {
	case DonationTypeSingle, DonationTypeRecurring, DonationTypeSponsor, DonationTypeFundraiser:
		return true
	}
	return false
}

// RequiresPayment reports whether a donation of this type must pass through
// card capture before it can complete. Recurring donations are collected by
// direct debit and bypass the payment step entirely.
func (t DonationType) RequiresPayment() bool {
	return t != DonationTypeRecurring
}

// SingleDonationType is the sub-kind for single donations.
type SingleDonationType string

const (
	SingleDonationOneOff      SingleDonationType = "oneoff"
	SingleDonationRaisedFunds SingleDonationType = "raisedfunds"
	SingleDonationShop        SingleDonationType = "shop"
)

// DonationStatus tracks a donation through its fulfillment lifecycle.
type DonationStatus string

const (
	StatusDraft              DonationStatus = "draft"
	StatusAwaitingPayment    DonationStatus = "awaiting_payment"
	StatusPaid               DonationStatus = "paid"
	StatusCompleted          DonationStatus = "completed"
	StatusCompletedNoPayment DonationStatus = "completed_no_payment"
)

// Consent is a tri-state contact permission: unset until the donor answers.
type Consent int

const (
	ConsentUnset Consent = 0
	ConsentYes   Consent = 1
	ConsentNo    Consent = 2
)

// Granted reports whether the donor affirmatively opted in.
func (c Consent) Granted() bool { return c == ConsentYes }

// Contact holds the donor's personal details and contact permissions.
type Contact struct {
	Title            string     `json:"title,omitempty"`
	FirstName        string     `json:"first_name"`
	Surname          string     `json:"surname"`
	Organisation     string     `json:"organisation,omitempty"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	AddressLine1     string     `json:"address_line1"`
	AddressLine2     string     `json:"address_line2,omitempty"`
	Town             string     `json:"town"`
	County           string     `json:"county,omitempty"`
	Postcode         string     `json:"postcode"`
	Country          string     `json:"country"`
	Email            string     `json:"email"`
	HomePhone        string     `json:"home_phone,omitempty"`
	MobilePhone      string     `json:"mobile_phone,omitempty"`
	ConsentPost      Consent    `json:"consent_post"`
	ConsentEmail     Consent    `json:"consent_email"`
	ConsentSMS       Consent    `json:"consent_sms"`
	ConsentPhone     Consent    `json:"consent_phone"`
	GiftAidEligible  bool       `json:"gift_aid_eligible"`
	WhereDidYouHear  string     `json:"where_did_you_hear,omitempty"`
	MediaCode        string     `json:"media_code,omitempty"`
}

// FullName joins the title and name parts, skipping empty ones.
func (c Contact) FullName() string {
	name := ""
	for _, part := range []string{c.Title, c.FirstName, c.Surname} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// BankDetails carries the direct-debit instruction for recurring donations.
// AccountNumber and SortCode are stored without separators (8 and 6 digits).
type BankDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	SortCode      string `json:"sort_code"`
	DayOfMonth    int    `json:"day_of_month"` // 1 or 15
}

// SponsorDetails carries the sponsor-a-space metadata. The recipient address
// block is only populated when the sponsorship is a gift.
type SponsorDetails struct {
	ARRCID                string `json:"arrc_id"`
	SpaceType             string `json:"space_type"`
	IsGift                bool   `json:"is_gift"`
	Message               string `json:"message,omitempty"`
	RecipientFirstName    string `json:"recipient_first_name,omitempty"`
	RecipientSurname      string `json:"recipient_surname,omitempty"`
	RecipientAddressLine1 string `json:"recipient_address_line1,omitempty"`
	RecipientAddressLine2 string `json:"recipient_address_line2,omitempty"`
	RecipientTown         string `json:"recipient_town,omitempty"`
	RecipientCounty       string `json:"recipient_county,omitempty"`
	RecipientPostcode     string `json:"recipient_postcode,omitempty"`
	RecipientCountry      string `json:"recipient_country,omitempty"`
}

// Donation is the canonical record for one contribution. It maps directly to
// the `donations` table in the database.
type Donation struct {
	ID                 int64              `json:"id" db:"id"`
	DonationType       DonationType       `json:"donation_type" db:"donation_type"`
	SingleDonationType SingleDonationType `json:"single_donation_type,omitempty" db:"single_donation_type"`
	Status             DonationStatus     `json:"status" db:"status"`
	AmountMinorUnits   int64              `json:"amount_minor_units" db:"amount_minor_units"` // pence
	Contact            Contact            `json:"contact" db:"contact"`
	CRMContactID       *string            `json:"crm_contact_id,omitempty" db:"crm_contact_id"`
	AppealCode         string             `json:"appeal_code" db:"appeal_code"`
	Description        string             `json:"description" db:"description"`
	FundraisingSource  string             `json:"fundraising_source,omitempty" db:"fundraising_source"`
	BankDetails        *BankDetails       `json:"bank_details,omitempty" db:"bank_details"`
	SponsorDetails     *SponsorDetails    `json:"sponsor_details,omitempty" db:"sponsor_details"`
	PaymentReference   *string            `json:"payment_reference,omitempty" db:"payment_reference"`
	Complete           bool               `json:"complete" db:"complete"`
	Paid               bool               `json:"paid" db:"paid"`
	AdminEntered       bool               `json:"admin_entered" db:"admin_entered"`
	FailureReason      *string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// Reference derives the display code shown to donors and staff, and quoted in
// payment descriptions: a type-dependent prefix plus the id zero-padded to
// five digits.
func (d *Donation) Reference() string {
	prefix := "REF-"
	switch d.DonationType {
	case DonationTypeSingle:
		prefix = "REFWEBDON-"
	case DonationTypeRecurring:
		prefix = "REFWEBMEM-"
	}
	return fmt.Sprintf("%s%05d", prefix, d.ID)
}

// AmountMajorUnits returns the donation value in pounds for external payloads
// and display.
func (d *Donation) AmountMajorUnits() float64 {
	return float64(d.AmountMinorUnits) / 100
}
