// Package sign serves the participant side of a procedure. The signing
// link token in the path is the only credential.
package sign

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type Handler struct {
	svc         *procedure.Service
	maxAttempts int
}

func NewHandler(svc *procedure.Service, maxAttempts int) *Handler {
	return &Handler{svc: svc, maxAttempts: maxAttempts}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{token}", h.open)
	r.Post("/{token}/identity", h.identity)
	r.Post("/{token}/payment", h.payment)
	r.Post("/{token}/signature", h.signature)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	s, err := h.svc.OpenSigningSession(r.Context(), token)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toSessionResponse(s, h.maxAttempts))
}

type identityRequest struct {
	Kind      procedure.IdentityKind `json:"kind"`
	Provider  string                 `json:"provider"`
	Reference string                 `json:"reference,omitempty"`
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.RecordIdentityEvidence(r.Context(), token, req.Kind, procedure.Evidence{
		Provider:  req.Provider,
		Reference: req.Reference,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, identityResponse{
		stepResponse: stepResponse{Procedure: toProcedureView(res.Procedure), Request: toRequestView(res.Request)},
		Verified:     res.Verified,
	})
}

type paymentRequest struct {
	Provider   string         `json:"provider"`
	ExternalID string         `json:"externalId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (h *Handler) payment(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.RecordPayment(r.Context(), token, procedure.PaymentInput{
		Provider:   req.Provider,
		ExternalID: req.ExternalID,
		Payload:    req.Payload,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, paymentResponse{
		stepResponse: stepResponse{Procedure: toProcedureView(res.Procedure), Request: toRequestView(res.Request)},
		Payment:      toPaymentView(res.Payment),
		Duplicate:    res.Duplicate,
	})
}

func (h *Handler) signature(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}

	res, err := h.svc.RecordSignature(r.Context(), token, procedure.SignatureInput{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, signatureResponse{
		stepResponse: stepResponse{Procedure: toProcedureView(res.Procedure), Request: toRequestView(res.Request)},
		Completed:    res.Procedure.Status == procedure.StatusCompleted,
	})
}

func tokenParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		respond.Error(w, procedure.ErrTokenInvalid)
		return uuid.Nil, false
	}

	return token, true
}

// clientIP strips the port from the address chi's RealIP middleware resolved.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
