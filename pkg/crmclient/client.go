/**
 * @description
 * This package provides a client for the charity's CRM HTTP API. It
 * encapsulates contact creation, the per-type donation submission endpoints
 * and the rehoming passthrough, handling Basic authentication, request body
 * construction and response parsing.
 *
 * The CRM treats amounts in major currency units and dates as dd/mm/yyyy
 * strings, so conversion from the service's minor-unit integers happens here
 * at the wire boundary.
 *
 * @dependencies
 * - bytes, context, crypto/tls, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: Donation and contact models mapped onto CRM payloads.
 */
package crmclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/lanedigital/donation-service/internal/domain"
)

const crmDateLayout = "02/01/2006"

// Client is a client for the CRM API.
type Client struct {
	EndpointPrefix string
	Username       string
	Password       string
	HTTPClient     *http.Client
}

// NewClient creates a new CRM API client. The endpoint prefix must include a
// trailing slash. Skipping TLS verification is supported for legacy CRM
// installs with self-signed certificates and should stay off elsewhere.
func NewClient(endpointPrefix, username, password string, insecureSkipVerify bool) *Client {
	transport := http.DefaultTransport
	if insecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		log.Printf("level=warn component=crm_client msg=\"TLS certificate verification disabled\"")
	}

	return &Client{
		EndpointPrefix: endpointPrefix,
		Username:       username,
		Password:       password,
		HTTPClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

// ContactPayload is the body posted to the CRM contact endpoint.
type ContactPayload struct {
	DonationType         string `json:"donation_type"`
	SingleDonationType   string `json:"single_donation_type,omitempty"`
	Date                 string `json:"date"`
	Title                string `json:"title"`
	FirstName            string `json:"first_name"`
	Surname              string `json:"surname"`
	Organisation         string `json:"organisation"`
	AddressLine1         string `json:"address_line1"`
	AddressLine2         string `json:"address_line2"`
	Town                 string `json:"town"`
	County               string `json:"county"`
	Postcode             string `json:"postcode"`
	Country              string `json:"country"`
	Email                string `json:"email"`
	HomePhone            string `json:"home_phone"`
	MobilePhone          string `json:"mobile_phone"`
	DateOfBirth          string `json:"dob,omitempty"`
	OKToContactViaPost   int    `json:"ok_to_contact_via_post"`
	OKToContactViaEmail  int    `json:"ok_to_contact_via_email"`
	OKToContactViaSMS    int    `json:"ok_to_contact_via_sms"`
	OKToContactViaPhone  int    `json:"ok_to_contact_via_phone"`
	GiftAidEligible      int    `json:"gift_aid_eligible"`
	WhereDidYouHear      string `json:"where_did_you_hear_about_us"`
	MediaCode            string `json:"media_code,omitempty"`
}

// ContactResponse is the expected response from the CRM contact endpoint.
type ContactResponse struct {
	Data struct {
		ContactID string `json:"CONTACTID"`
	} `json:"data"`
}

// singleDonationPayload covers the single and fundraiser donation endpoints.
type singleDonationPayload struct {
	ContactID    string  `json:"contact_id"`
	DonationDate string  `json:"donation_date"`
	DonationType string  `json:"donation_type"`
	Appeal       string  `json:"appeal"`
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
}

type recurringDonationPayload struct {
	ContactID     string  `json:"contact_id"`
	DonationDate  string  `json:"donation_date"`
	Appeal        string  `json:"appeal"`
	Amount        float64 `json:"amount"`
	DayOfMonth    int     `json:"day_of_month"`
	AccountName   string  `json:"account_name"`
	AccountNumber string  `json:"account_number"`
	SortCode      string  `json:"sort_code"`
	Description   string  `json:"description"`
}

type sponsorDonationPayload struct {
	ContactID             string  `json:"contact_id"`
	DonationDate          string  `json:"donation_date"`
	Appeal                string  `json:"appeal"`
	Amount                float64 `json:"amount"`
	ARRCID                string  `json:"arrc_id"`
	SpaceType             string  `json:"space_type"`
	IsGift                string  `json:"is_gift"`
	Message               string  `json:"message"`
	RecipientFirstName    string  `json:"recipient_first_name"`
	RecipientSurname      string  `json:"recipient_surname"`
	RecipientAddressLine1 string  `json:"recipient_address_line1"`
	RecipientAddressLine2 string  `json:"recipient_address_line2"`
	RecipientTown         string  `json:"recipient_town"`
	RecipientPostcode     string  `json:"recipient_postcode"`
	RecipientCounty       string  `json:"recipient_county"`
	RecipientCountry      string  `json:"recipient_country"`
}

// CreateContact registers the donor with the CRM and returns the contact id.
// Success requires a non-empty CONTACTID in the response body.
func (c *Client) CreateContact(ctx context.Context, d *domain.Donation) (string, error) {
	payload := buildContactPayload(d)

	body, err := c.call(ctx, "contact", payload)
	if err != nil {
		return "", err
	}

	var resp ContactResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode contact response: %w", err)
	}
	if resp.Data.ContactID == "" {
		return "", fmt.Errorf("crm contact response missing CONTACTID")
	}

	return resp.Data.ContactID, nil
}

// AddDonation submits the donation to the endpoint matching its type.
func (c *Client) AddDonation(ctx context.Context, d *domain.Donation) error {
	var (
		action  string
		payload any
	)

	switch d.DonationType {
	case domain.DonationTypeSingle, domain.DonationTypeFundraiser:
		action = "donation"
		payload = buildSinglePayload(d)
	case domain.DonationTypeRecurring:
		action = "donation/recurring"
		payload = buildRecurringPayload(d)
	case domain.DonationTypeSponsor:
		action = "sponsor"
		payload = buildSponsorPayload(d)
	default:
		return fmt.Errorf("unsupported donation type %q", d.DonationType)
	}

	_, err := c.call(ctx, action, payload)
	return err
}

// Rehome forwards a rehoming application to the CRM unchanged.
func (c *Client) Rehome(ctx context.Context, data map[string]any) (json.RawMessage, error) {
	return c.call(ctx, "rehome", data)
}

// call executes a POST against the CRM and returns the raw response body.
func (c *Client) call(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.EndpointPrefix+action, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("level=warn component=crm_client op=%s msg=\"request failed\" error=%q", action, err)
		return nil, fmt.Errorf("failed to execute %s request: %w", action, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=crm_client op=%s status=%d msg=\"non-2xx response\"", action, resp.StatusCode)
		return nil, fmt.Errorf("crm %s request failed with status %d", action, resp.StatusCode)
	}

	log.Printf("level=info component=crm_client op=%s status=%d msg=\"request ok\"", action, resp.StatusCode)
	return bodyBytes, nil
}

func buildContactPayload(d *domain.Donation) ContactPayload {
	contact := d.Contact
	p := ContactPayload{
		DonationType:        string(d.DonationType),
		SingleDonationType:  string(d.SingleDonationType),
		Date:                d.CreatedAt.Format(crmDateLayout),
		Title:               contact.Title,
		FirstName:           contact.FirstName,
		Surname:             contact.Surname,
		Organisation:        contact.Organisation,
		AddressLine1:        contact.AddressLine1,
		AddressLine2:        contact.AddressLine2,
		Town:                contact.Town,
		County:              contact.County,
		Postcode:            contact.Postcode,
		Country:             contact.Country,
		Email:               contact.Email,
		HomePhone:           contact.HomePhone,
		MobilePhone:         contact.MobilePhone,
		OKToContactViaPost:  consentFlag(contact.ConsentPost),
		OKToContactViaEmail: consentFlag(contact.ConsentEmail),
		OKToContactViaSMS:   consentFlag(contact.ConsentSMS),
		OKToContactViaPhone: consentFlag(contact.ConsentPhone),
		WhereDidYouHear:     contact.WhereDidYouHear,
		MediaCode:           contact.MediaCode,
	}
	if contact.GiftAidEligible {
		p.GiftAidEligible = 1
	}
	if contact.DateOfBirth != nil {
		p.DateOfBirth = contact.DateOfBirth.Format(crmDateLayout)
	}
	return p
}

func buildSinglePayload(d *domain.Donation) singleDonationPayload {
	return singleDonationPayload{
		ContactID:    deref(d.CRMContactID),
		DonationDate: d.CreatedAt.Format(crmDateLayout),
		DonationType: string(d.SingleDonationType),
		Appeal:       d.AppealCode,
		Amount:       d.AmountMajorUnits(),
		Description:  d.Description,
	}
}

func buildRecurringPayload(d *domain.Donation) recurringDonationPayload {
	p := recurringDonationPayload{
		ContactID:    deref(d.CRMContactID),
		DonationDate: d.CreatedAt.Format(crmDateLayout),
		Appeal:       d.AppealCode,
		Amount:       d.AmountMajorUnits(),
		DayOfMonth:   1,
		Description:  d.Description,
	}
	if d.BankDetails != nil {
		p.AccountName = d.BankDetails.AccountName
		p.AccountNumber = d.BankDetails.AccountNumber
		p.SortCode = d.BankDetails.SortCode
		if d.BankDetails.DayOfMonth > 0 {
			p.DayOfMonth = d.BankDetails.DayOfMonth
		}
	}
	return p
}

func buildSponsorPayload(d *domain.Donation) sponsorDonationPayload {
	p := sponsorDonationPayload{
		ContactID:    deref(d.CRMContactID),
		DonationDate: d.CreatedAt.Format(crmDateLayout),
		Appeal:       d.AppealCode,
		Amount:       d.AmountMajorUnits(),
		IsGift:       "N",
	}
	if s := d.SponsorDetails; s != nil {
		p.ARRCID = s.ARRCID
		p.SpaceType = s.SpaceType
		p.Message = s.Message
		if s.IsGift {
			p.IsGift = "Y"
			p.RecipientFirstName = s.RecipientFirstName
			p.RecipientSurname = s.RecipientSurname
			p.RecipientAddressLine1 = s.RecipientAddressLine1
			p.RecipientAddressLine2 = s.RecipientAddressLine2
			p.RecipientTown = s.RecipientTown
			p.RecipientPostcode = s.RecipientPostcode
			p.RecipientCounty = s.RecipientCounty
			p.RecipientCountry = s.RecipientCountry
		}
	}
	return p
}

func consentFlag(c domain.Consent) int {
	if c.Granted() {
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
