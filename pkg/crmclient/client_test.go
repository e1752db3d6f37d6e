package crmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lanedigital/donation-service/internal/domain"
)

func testDonation(donationType domain.DonationType) *domain.Donation {
	contactID := "C-100"
	return &domain.Donation{
		ID:                 42,
		DonationType:       donationType,
		SingleDonationType: domain.SingleDonationOneOff,
		AmountMinorUnits:   1250,
		AppealCode:         "62000",
		Description:        "Single Donation",
		CRMContactID:       &contactID,
		Contact: domain.Contact{
			Title:        "Ms",
			FirstName:    "Jane",
			Surname:      "Doe",
			AddressLine1: "1 High Street",
			Town:         "Edinburgh",
			Postcode:     "EH1 1AA",
			Country:      "GB",
			Email:        "jane@example.com",
			ConsentEmail: domain.ConsentYes,
		},
		CreatedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateContactReturnsContactID(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/contact" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "crmuser" || pass != "crmpass" {
			t.Errorf("missing or wrong basic auth: %q %q", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"CONTACTID":"C-999"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api/", "crmuser", "crmpass", false)

	id, err := client.CreateContact(context.Background(), testDonation(domain.DonationTypeSingle))
	if err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	if id != "C-999" {
		t.Errorf("contact id = %q, want C-999", id)
	}

	if gotPayload["first_name"] != "Jane" || gotPayload["surname"] != "Doe" {
		t.Errorf("payload name fields wrong: %v", gotPayload)
	}
	if gotPayload["date"] != "15/03/2026" {
		t.Errorf("payload date = %v, want 15/03/2026", gotPayload["date"])
	}
	if gotPayload["ok_to_contact_via_email"] != float64(1) {
		t.Errorf("ok_to_contact_via_email = %v, want 1", gotPayload["ok_to_contact_via_email"])
	}
	if gotPayload["ok_to_contact_via_post"] != float64(0) {
		t.Errorf("ok_to_contact_via_post = %v, want 0", gotPayload["ok_to_contact_via_post"])
	}
}

func TestCreateContactRequiresContactID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "u", "p", false)
	if _, err := client.CreateContact(context.Background(), testDonation(domain.DonationTypeSingle)); err == nil {
		t.Fatal("expected error for empty CONTACTID")
	}
}

func TestCreateContactNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "u", "p", false)
	if _, err := client.CreateContact(context.Background(), testDonation(domain.DonationTypeSingle)); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestAddDonationRoutesByType(t *testing.T) {
	cases := []struct {
		name     string
		modify   func(d *domain.Donation)
		wantPath string
	}{
		{
			name:     "single",
			modify:   func(d *domain.Donation) {},
			wantPath: "/donation",
		},
		{
			name: "recurring",
			modify: func(d *domain.Donation) {
				d.DonationType = domain.DonationTypeRecurring
				d.BankDetails = &domain.BankDetails{
					AccountName:   "J Doe",
					AccountNumber: "12345678",
					SortCode:      "123456",
					DayOfMonth:    15,
				}
			},
			wantPath: "/donation/recurring",
		},
		{
			name: "sponsor",
			modify: func(d *domain.Donation) {
				d.DonationType = domain.DonationTypeSponsor
				d.SponsorDetails = &domain.SponsorDetails{ARRCID: "ARRC1", SpaceType: "kennel"}
			},
			wantPath: "/sponsor",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPath string
			var gotPayload map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				json.NewDecoder(r.Body).Decode(&gotPayload)
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			d := testDonation(domain.DonationTypeSingle)
			tc.modify(d)

			client := NewClient(server.URL+"/", "u", "p", false)
			if err := client.AddDonation(context.Background(), d); err != nil {
				t.Fatalf("AddDonation failed: %v", err)
			}
			if gotPath != tc.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tc.wantPath)
			}
			if gotPayload["amount"] != 12.5 {
				t.Errorf("amount = %v, want 12.5 major units", gotPayload["amount"])
			}
			if gotPayload["contact_id"] != "C-100" {
				t.Errorf("contact_id = %v, want C-100", gotPayload["contact_id"])
			}
		})
	}
}

func TestAddDonationSponsorGiftCarriesRecipient(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	d := testDonation(domain.DonationTypeSponsor)
	d.DonationType = domain.DonationTypeSponsor
	d.SponsorDetails = &domain.SponsorDetails{
		ARRCID:                "ARRC1",
		SpaceType:             "stable",
		IsGift:                true,
		Message:               "Happy birthday",
		RecipientFirstName:    "Sam",
		RecipientSurname:      "Smith",
		RecipientAddressLine1: "2 Low Road",
		RecipientTown:         "Glasgow",
		RecipientPostcode:     "G1 1AA",
	}

	client := NewClient(server.URL+"/", "u", "p", false)
	if err := client.AddDonation(context.Background(), d); err != nil {
		t.Fatalf("AddDonation failed: %v", err)
	}

	if gotPayload["is_gift"] != "Y" {
		t.Errorf("is_gift = %v, want Y", gotPayload["is_gift"])
	}
	if gotPayload["recipient_first_name"] != "Sam" || gotPayload["recipient_town"] != "Glasgow" {
		t.Errorf("recipient block wrong: %v", gotPayload)
	}
}

func TestAddDonationRejectsUnknownType(t *testing.T) {
	client := NewClient("http://localhost/", "u", "p", false)
	d := testDonation("raffle")
	if err := client.AddDonation(context.Background(), d); err == nil {
		t.Fatal("expected error for unknown donation type")
	}
}
