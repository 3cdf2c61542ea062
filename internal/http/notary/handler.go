package notary

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
)

type Handler struct {
	svc *procedure.Service
}

func NewHandler(svc *procedure.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/inbox", h.inbox)
	r.Post("/grants/{grantID}/actions", h.action)
	r.Delete("/grants/{grantID}", h.revoke)
}

type grantView struct {
	ID        uuid.UUID             `json:"id"`
	Scopes    []procedure.Scope     `json:"scopes"`
	Status    procedure.GrantStatus `json:"status"`
	ExpiresAt time.Time             `json:"expiresAt"`
}

type notaryRequestView struct {
	Status            procedure.NotaryRequestStatus `json:"status"`
	OpenedAt          *time.Time                    `json:"openedAt,omitempty"`
	LegalizedFileName string                        `json:"legalizedFileName,omitempty"`
	UploadedAt        *time.Time                    `json:"uploadedAt,omitempty"`
	Reason            string                        `json:"reason,omitempty"`
	RejectedAt        *time.Time                    `json:"rejectedAt,omitempty"`
}

func toNotaryRequestView(n *procedure.NotaryRequest) *notaryRequestView {
	if n == nil {
		return nil
	}

	return &notaryRequestView{
		Status:            n.Status,
		OpenedAt:          n.OpenedAt,
		LegalizedFileName: n.LegalizedFileName,
		UploadedAt:        n.UploadedAt,
		Reason:            n.Reason,
		RejectedAt:        n.RejectedAt,
	}
}

type procedureView struct {
	ID       uuid.UUID              `json:"id"`
	Title    string                 `json:"title"`
	Status   procedure.Status       `json:"status"`
	Packet   procedure.NotaryPacket `json:"notaryPacket"`
	TenantID string                 `json:"tenantId"`
}

type inboxItemResponse struct {
	Grant     grantView          `json:"grant"`
	Procedure procedureView      `json:"procedure"`
	Request   *notaryRequestView `json:"notaryRequest,omitempty"`
	Actions   []procedure.Event  `json:"actions"`
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	items, err := h.svc.NotaryInbox(r.Context(), actor)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]inboxItemResponse, len(items))
	for i, it := range items {
		resp[i] = inboxItemResponse{
			Grant: grantView{
				ID:        it.Grant.ID,
				Scopes:    it.Grant.Scopes,
				Status:    it.Grant.Status,
				ExpiresAt: it.Grant.ExpiresAt,
			},
			Procedure: procedureView{
				ID:       it.Procedure.ID,
				Title:    it.Procedure.Title(),
				Status:   it.Procedure.Status,
				Packet:   it.Procedure.NotaryPacket,
				TenantID: it.Procedure.TenantID,
			},
			Request: toNotaryRequestView(it.Request),
			Actions: it.Actions,
		}
	}

	respond.JSON(w, http.StatusOK, resp)
}

type actionRequest struct {
	Event    procedure.Event `json:"event"`
	FileName string          `json:"fileName,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type actionResponse struct {
	ProcedureID uuid.UUID          `json:"procedureId"`
	Status      procedure.Status   `json:"status"`
	Request     *notaryRequestView `json:"notaryRequest"`
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request) {
	actor, grantID, ok := grantTarget(w, r)
	if !ok {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.NotaryAction(r.Context(), actor, grantID, req.Event, procedure.NotaryInput{
		FileName: req.FileName,
		Reason:   req.Reason,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, actionResponse{
		ProcedureID: res.Procedure.ID,
		Status:      res.Procedure.Status,
		Request:     toNotaryRequestView(res.Request),
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, grantID, ok := grantTarget(w, r)
	if !ok {
		return
	}

	if _, err := h.svc.RevokeGrant(r.Context(), actor, grantID); err != nil {
		respond.Error(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func grantTarget(w http.ResponseWriter, r *http.Request) (auth.Actor, uuid.UUID, bool) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return auth.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		respond.BadRequest(w, "invalid grant id")
		return auth.Actor{}, uuid.Nil, false
	}

	return actor, id, true
}
