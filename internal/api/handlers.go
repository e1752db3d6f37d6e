/**
 * @description
 * This file contains the HTTP handlers for the donation-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http, strconv: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/collector, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lanedigital/donation-service/internal/app"
	"github.com/lanedigital/donation-service/internal/collector"
	"github.com/lanedigital/donation-service/internal/domain"
	"github.com/lanedigital/donation-service/internal/store"
	"github.com/lanedigital/donation-service/pkg/stripeclient"
)

// Rehomer forwards rehoming applications to the CRM.
type Rehomer interface {
	Rehome(ctx context.Context, data map[string]any) (json.RawMessage, error)
}

// DonationHandlers holds the application service that handlers will use.
type DonationHandlers struct {
	service *app.Service
	rehomer Rehomer
}

// NewDonationHandlers creates a new instance of DonationHandlers.
func NewDonationHandlers(service *app.Service, rehomer Rehomer) *DonationHandlers {
	return &DonationHandlers{service: service, rehomer: rehomer}
}

type paymentReturnRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
}

type paymentFailRequest struct {
	Reason string `json:"reason"`
}

// SubmitDonationHandler handles public donation form submissions.
func (h *DonationHandlers) SubmitDonationHandler(w http.ResponseWriter, r *http.Request) {
	h.submitDonation(w, r, false)
}

// AdminSubmitDonationHandler handles staff-entered donations. The resulting
// record routes to the admin success view and staff notification address.
func (h *DonationHandlers) AdminSubmitDonationHandler(w http.ResponseWriter, r *http.Request) {
	h.submitDonation(w, r, true)
}

func (h *DonationHandlers) submitDonation(w http.ResponseWriter, r *http.Request, adminEntered bool) {
	var raw collector.RawSubmission
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	raw.AdminEntered = adminEntered

	result, err := h.service.Submit(r.Context(), raw)
	if err != nil {
		var vErr *collector.ValidationError
		if errors.As(err, &vErr) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": vErr.Message,
				"field": vErr.Field,
			})
			return
		}
		var stripeErr *stripeclient.ErrorResponse
		if errors.As(err, &stripeErr) {
			// The donor sees Stripe's message and may retry.
			h.writeError(w, http.StatusPaymentRequired, stripeErr.Err.Message)
			return
		}
		log.Printf("level=error component=api endpoint=submit_donation msg=\"submission failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to process donation")
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// PaymentReturnHandler handles the donor's return from Stripe after the
// in-browser card confirmation.
func (h *DonationHandlers) PaymentReturnHandler(w http.ResponseWriter, r *http.Request) {
	donationID, ok := h.donationIDParam(w, r)
	if !ok {
		return
	}

	var req paymentReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), donationID, req.PaymentIntentID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPaymentIntentNotSucceeded):
			h.writeError(w, http.StatusBadRequest, "Payment has not succeeded")
		case errors.Is(err, store.ErrDonationNotFound):
			h.writeError(w, http.StatusNotFound, "Donation not found")
		case errors.Is(err, store.ErrNotAwaitingPayment):
			h.writeError(w, http.StatusConflict, "Donation is not awaiting payment")
		default:
			log.Printf("level=error component=api endpoint=payment_return msg=\"confirmation failed\" donation_id=%d err=%v", donationID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to confirm payment")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// PaymentCancelHandler records a donor-initiated cancellation and returns the
// donation to draft.
func (h *DonationHandlers) PaymentCancelHandler(w http.ResponseWriter, r *http.Request) {
	donationID, ok := h.donationIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelPayment(r.Context(), donationID); err != nil {
		h.writePaymentStateError(w, donationID, err, "payment_cancel")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// PaymentFailHandler records a gateway failure reported by the frontend.
func (h *DonationHandlers) PaymentFailHandler(w http.ResponseWriter, r *http.Request) {
	donationID, ok := h.donationIDParam(w, r)
	if !ok {
		return
	}

	var req paymentFailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.FailPayment(r.Context(), donationID, req.Reason); err != nil {
		h.writePaymentStateError(w, donationID, err, "payment_fail")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

// CheckoutOrderHandler accepts a shop order whose line items become
// donations.
func (h *DonationHandlers) CheckoutOrderHandler(w http.ResponseWriter, r *http.Request) {
	var order domain.CheckoutOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	results, err := h.service.ProcessCheckoutOrder(r.Context(), order)
	if err != nil {
		log.Printf("level=error component=api endpoint=checkout_order msg=\"order processing failed\" order_id=%s err=%v", order.OrderID, err)
		h.writeError(w, http.StatusBadRequest, "Unable to process checkout order")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"donations": results})
}

// RehomeHandler forwards a rehoming application to the CRM unchanged.
func (h *DonationHandlers) RehomeHandler(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.rehomer.Rehome(r.Context(), data)
	if err != nil {
		log.Printf("level=error component=api endpoint=rehome msg=\"crm rehome failed\" err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Rehoming service unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
}

// ListDonationsHandler returns recent donations for the staff views.
func (h *DonationHandlers) ListDonationsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	donations, err := h.service.ListDonations(r.Context(), limit, offset)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_donations msg=\"list failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list donations")
		return
	}
	if donations == nil {
		donations = []domain.Donation{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"donations": donations})
}

// GetDonationHandler returns one donation for the staff views.
func (h *DonationHandlers) GetDonationHandler(w http.ResponseWriter, r *http.Request) {
	donationID, ok := h.donationIDParam(w, r)
	if !ok {
		return
	}

	d, err := h.service.GetDonation(r.Context(), donationID)
	if err != nil {
		if errors.Is(err, store.ErrDonationNotFound) {
			h.writeError(w, http.StatusNotFound, "Donation not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_donation msg=\"lookup failed\" donation_id=%d err=%v", donationID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to load donation")
		return
	}

	h.writeJSON(w, http.StatusOK, d)
}

func (h *DonationHandlers) donationIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	donationID, err := strconv.ParseInt(chi.URLParam(r, "donationID"), 10, 64)
	if err != nil || donationID <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid donation id")
		return 0, false
	}
	return donationID, true
}

func (h *DonationHandlers) writePaymentStateError(w http.ResponseWriter, donationID int64, err error, endpoint string) {
	switch {
	case errors.Is(err, store.ErrDonationNotFound):
		h.writeError(w, http.StatusNotFound, "Donation not found")
	case errors.Is(err, store.ErrNotAwaitingPayment):
		h.writeError(w, http.StatusConflict, "Donation is not awaiting payment")
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"state update failed\" donation_id=%d err=%v", endpoint, donationID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to update donation")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *DonationHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *DonationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
