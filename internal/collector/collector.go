/**
 * @description
 * This file contains the DonationCollector: the component that validates and
 * normalizes a raw web-form or checkout submission into a canonical
 * domain.Donation draft. All field-level validation lives here so the
 * orchestrator only ever sees well-formed records.
 *
 * Key responsibilities:
 * - Amount normalization from free-text input to integer minor units.
 * - Direct-debit bank detail normalization (separators stripped, digit counts
 *   enforced) for recurring donations.
 * - Required-field and sponsor gift-address checks.
 * - The fixed appeal-code table per donation type.
 */

package collector

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lanedigital/donation-service/internal/domain"
)

// Appeal codes attributed in the CRM. Single and fundraiser donations share
// the general appeal; recurring donations book against the membership appeal.
// Sponsor donations carry the code of the sponsored space's location attribute.
const (
	AppealCodeSingle    = "62000"
	AppealCodeRecurring = "61000"
)

// ValidationError reports a malformed donor input. It is recovered at the API
// boundary and shown inline; it never mutates the record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RawSubmission is the unvalidated payload posted by a donation form. Amounts
// and bank fields arrive as the donor typed them; consent flags use the form's
// "1" (yes) / "2" (no) radio values.
type RawSubmission struct {
	DonationType string `json:"donation_type"`
	Amount       string `json:"amount"`

	Title        string `json:"title"`
	FirstName    string `json:"first_name"`
	Surname      string `json:"surname"`
	Organisation string `json:"organisation"`
	DateOfBirth  string `json:"dob"` // dd/mm/yyyy, optional
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	Town         string `json:"town"`
	County       string `json:"county"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
	Email        string `json:"email"`
	HomePhone    string `json:"home_phone"`
	MobilePhone  string `json:"mobile_phone"`

	ConsentPost  string `json:"consent_post"`
	ConsentEmail string `json:"consent_email"`
	ConsentSMS   string `json:"consent_sms"`
	ConsentPhone string `json:"consent_phone"`

	GiftAid         bool   `json:"gift_aid"`
	WhereDidYouHear string `json:"where_did_you_hear"`
	MediaCode       string `json:"media_code"`

	// Recurring only.
	DayOfMonth    int    `json:"day_of_month"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	SortCode      string `json:"sort_code"`

	// Fundraiser only.
	FundraisingSource string `json:"fundraising_source"`

	// Sponsor only. The appeal code and space identifiers come from the
	// sponsored product's location attribute, resolved upstream.
	AppealCode     string                 `json:"appeal_code"`
	SponsorDetails *domain.SponsorDetails `json:"sponsor_details"`

	// Set for staff-captured donations.
	AdminEntered bool `json:"-"`
}

// Collector normalizes raw submissions into donation drafts.
type Collector struct {
	hearOptions map[string]string
}

// New creates a Collector. hearOptions maps "where did you hear about us"
// codes to their labels; an empty map disables validation of that field.
func New(hearOptions map[string]string) *Collector {
	return &Collector{hearOptions: hearOptions}
}

// Normalize validates raw and builds a donation draft plus its contact
// payload. The returned donation has no id yet; persistence assigns one.
func (c *Collector) Normalize(raw RawSubmission) (*domain.Donation, error) {
	donationType := domain.DonationType(strings.TrimSpace(raw.DonationType))
	if !donationType.Valid() {
		return nil, invalid("donation_type", "unknown donation type")
	}

	amount, err := NormalizeAmount(raw.Amount)
	if err != nil {
		return nil, err
	}

	contact, err := c.normalizeContact(raw)
	if err != nil {
		return nil, err
	}

	d := &domain.Donation{
		DonationType:     donationType,
		Status:           domain.StatusDraft,
		AmountMinorUnits: amount,
		Contact:          contact,
		AdminEntered:     raw.AdminEntered,
	}

	switch donationType {
	case domain.DonationTypeSingle:
		d.SingleDonationType = domain.SingleDonationOneOff
		d.AppealCode = AppealCodeSingle
		d.Description = "Single Donation"

	case domain.DonationTypeFundraiser:
		d.SingleDonationType = domain.SingleDonationRaisedFunds
		d.AppealCode = AppealCodeSingle
		source := strings.TrimSpace(raw.FundraisingSource)
		if source == "" {
			return nil, invalid("fundraising_source", "required")
		}
		d.FundraisingSource = source
		d.Description = source

	case domain.DonationTypeRecurring:
		bank, err := normalizeBankDetails(raw)
		if err != nil {
			return nil, err
		}
		d.BankDetails = bank
		d.AppealCode = AppealCodeRecurring
		d.Description = "Recurring Donation"

	case domain.DonationTypeSponsor:
		sponsor, err := normalizeSponsorDetails(raw.SponsorDetails)
		if err != nil {
			return nil, err
		}
		d.SponsorDetails = sponsor
		appeal := strings.TrimSpace(raw.AppealCode)
		if appeal == "" {
			return nil, invalid("appeal_code", "required for sponsor donations")
		}
		d.AppealCode = appeal
		d.Description = "Sponsor a Space"
	}

	return d, nil
}

// NormalizeAmount converts a raw amount string into currency minor units.
// Non-numeric characters are stripped, the input is truncated at a second
// decimal point, the decimal part is clamped to two places, and the result
// is rounded to the nearest penny.
func NormalizeAmount(raw string) (int64, error) {
	var cleaned strings.Builder
	seenDot := false
scan:
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			cleaned.WriteRune(r)
		case r == '.':
			if seenDot {
				break scan
			}
			seenDot = true
			cleaned.WriteRune(r)
		}
	}

	s := cleaned.String()
	if s == "" || s == "." {
		return 0, invalid("amount", "please enter a valid amount")
	}

	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 > 2 {
		s = s[:dot+3]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, invalid("amount", "please enter a valid amount")
	}

	minor := int64(math.Round(value * 100))
	if minor <= 0 {
		return 0, invalid("amount", "must be greater than zero")
	}
	return minor, nil
}

func (c *Collector) normalizeContact(raw RawSubmission) (domain.Contact, error) {
	contact := domain.Contact{
		Title:           strings.TrimSpace(raw.Title),
		FirstName:       strings.TrimSpace(raw.FirstName),
		Surname:         strings.TrimSpace(raw.Surname),
		Organisation:    strings.TrimSpace(raw.Organisation),
		AddressLine1:    strings.TrimSpace(raw.AddressLine1),
		AddressLine2:    strings.TrimSpace(raw.AddressLine2),
		Town:            strings.TrimSpace(raw.Town),
		County:          strings.TrimSpace(raw.County),
		Postcode:        strings.TrimSpace(raw.Postcode),
		Country:         strings.TrimSpace(raw.Country),
		Email:           strings.TrimSpace(raw.Email),
		HomePhone:       strings.TrimSpace(raw.HomePhone),
		MobilePhone:     strings.TrimSpace(raw.MobilePhone),
		ConsentPost:     parseConsent(raw.ConsentPost),
		ConsentEmail:    parseConsent(raw.ConsentEmail),
		ConsentSMS:      parseConsent(raw.ConsentSMS),
		ConsentPhone:    parseConsent(raw.ConsentPhone),
		GiftAidEligible: raw.GiftAid,
		WhereDidYouHear: strings.TrimSpace(raw.WhereDidYouHear),
		MediaCode:       strings.TrimSpace(raw.MediaCode),
	}

	required := []struct{ field, value string }{
		{"first_name", contact.FirstName},
		{"surname", contact.Surname},
		{"address_line1", contact.AddressLine1},
		{"town", contact.Town},
		{"postcode", contact.Postcode},
		{"country", contact.Country},
		{"email", contact.Email},
	}
	for _, req := range required {
		if req.value == "" {
			return domain.Contact{}, invalid(req.field, "required")
		}
	}

	if len(contact.Postcode) > 10 {
		return domain.Contact{}, invalid("postcode", "please provide a valid postcode")
	}
	if !strings.Contains(contact.Email, "@") {
		return domain.Contact{}, invalid("email", "please provide a valid email address")
	}

	if raw.DateOfBirth != "" {
		dob, err := parseDateOfBirth(raw.DateOfBirth)
		if err != nil {
			return domain.Contact{}, err
		}
		contact.DateOfBirth = dob
	}

	if len(c.hearOptions) > 0 && contact.WhereDidYouHear != "" {
		if _, ok := c.hearOptions[contact.WhereDidYouHear]; !ok {
			return domain.Contact{}, invalid("where_did_you_hear", "unknown option")
		}
	}

	return contact, nil
}

func normalizeBankDetails(raw RawSubmission) (*domain.BankDetails, error) {
	accountName := strings.TrimSpace(raw.AccountName)
	if accountName == "" {
		return nil, invalid("account_name", "required")
	}

	accountNumber := stripNonDigits(raw.AccountNumber)
	if len(accountNumber) != 8 {
		return nil, invalid("account_number", "must contain exactly 8 digits")
	}

	sortCode := stripNonDigits(raw.SortCode)
	if len(sortCode) != 6 {
		return nil, invalid("sort_code", "must contain exactly 6 digits")
	}

	dayOfMonth := raw.DayOfMonth
	if dayOfMonth == 0 {
		dayOfMonth = 1
	}
	if dayOfMonth != 1 && dayOfMonth != 15 {
		return nil, invalid("day_of_month", "must be the 1st or the 15th")
	}

	return &domain.BankDetails{
		AccountName:   accountName,
		AccountNumber: accountNumber,
		SortCode:      sortCode,
		DayOfMonth:    dayOfMonth,
	}, nil
}

func normalizeSponsorDetails(details *domain.SponsorDetails) (*domain.SponsorDetails, error) {
	if details == nil {
		return nil, invalid("sponsor_details", "required for sponsor donations")
	}
	sponsor := *details
	if strings.TrimSpace(sponsor.ARRCID) == "" {
		return nil, invalid("arrc_id", "required")
	}
	if sponsor.IsGift {
		giftRequired := []struct{ field, value string }{
			{"recipient_first_name", sponsor.RecipientFirstName},
			{"recipient_surname", sponsor.RecipientSurname},
			{"recipient_address_line1", sponsor.RecipientAddressLine1},
			{"recipient_town", sponsor.RecipientTown},
			{"recipient_postcode", sponsor.RecipientPostcode},
		}
		for _, req := range giftRequired {
			if strings.TrimSpace(req.value) == "" {
				return nil, invalid(req.field, "required when the sponsorship is a gift")
			}
		}
	}
	return &sponsor, nil
}

func parseDateOfBirth(value string) (*time.Time, error) {
	dob, err := time.Parse("02/01/2006", strings.TrimSpace(value))
	if err != nil {
		return nil, invalid("dob", "must be in dd/mm/yyyy format")
	}
	return &dob, nil
}

func parseConsent(value string) domain.Consent {
	switch strings.TrimSpace(value) {
	case "1":
		return domain.ConsentYes
	case "2":
		return domain.ConsentNo
	}
	return domain.ConsentUnset
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
