// Package webhook receives payment provider callbacks. Requests are
// authenticated by an HMAC over the raw body, not by a user token.
package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

const maxBody = 1 << 20

// approved lists the provider statuses that confirm a payment. Anything
// else is acknowledged and ignored.
var approved = map[string]bool{"": true, "approved": true, "paid": true, "AUTHORIZED": true}

type Handler struct {
	svc    *procedure.Service
	secret []byte
}

func NewHandler(svc *procedure.Service, secret string) *Handler {
	return &Handler{svc: svc, secret: []byte(secret)}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments/{provider}", h.payment)
}

type paymentEvent struct {
	TenantID           string         `json:"tenantId"`
	ProcedureID        uuid.UUID      `json:"procedureId"`
	SignatureRequestID uuid.UUID      `json:"signatureRequestId"`
	ExternalID         string         `json:"externalId"`
	Status             string         `json:"status,omitempty"`
	Payload            map[string]any `json:"payload,omitempty"`
}

type paymentAck struct {
	Recorded  bool             `json:"recorded"`
	Duplicate bool             `json:"duplicate"`
	Status    procedure.Status `json:"procedureStatus,omitempty"`
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respond.BadRequest(w, "failed to read body")
		return
	}

	if err := provider.Verify(h.secret, body, r.Header.Get(provider.SignatureHeader)); err != nil {
		respond.Error(w, err)
		return
	}

	var ev paymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	if ev.TenantID == "" || ev.ProcedureID == uuid.Nil || ev.SignatureRequestID == uuid.Nil {
		respond.BadRequest(w, "tenantId, procedureId and signatureRequestId are required")
		return
	}

	name := chi.URLParam(r, "provider")

	if !approved[ev.Status] {
		slog.Info("ignoring payment callback", "provider", name, "external_id", ev.ExternalID, "status", ev.Status)
		respond.JSON(w, http.StatusAccepted, paymentAck{})

		return
	}

	payload := ev.Payload
	if ev.Status != "" {
		if payload == nil {
			payload = map[string]any{}
		}

		payload["providerStatus"] = ev.Status
	}

	res, err := h.svc.RecordProviderPayment(r.Context(), ev.TenantID, ev.ProcedureID, ev.SignatureRequestID, procedure.PaymentInput{
		Provider:   name,
		ExternalID: ev.ExternalID,
		Payload:    payload,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, paymentAck{
		Recorded:  !res.Duplicate,
		Duplicate: res.Duplicate,
		Status:    res.Procedure.Status,
	})
}
