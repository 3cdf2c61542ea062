package document

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/http/respond"
)

const maxUpload = 10 << 20

type Handler struct {
	svc *document.Service
}

func NewHandler(svc *document.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.publish)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/void", h.void)
}

type versionResponse struct {
	ID            uuid.UUID       `json:"id"`
	DocumentID    uuid.UUID       `json:"documentId"`
	DealID        string          `json:"dealId,omitempty"`
	Title         string          `json:"title"`
	Version       int             `json:"version"`
	Hash          string          `json:"hash"`
	HashAlgorithm string          `json:"hashAlgorithm"`
	Status        document.Status `json:"status"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	VoidedAt      *time.Time      `json:"voidedAt,omitempty"`
	VoidedBy      string          `json:"voidedBy,omitempty"`
	VoidReason    string          `json:"voidReason,omitempty"`
	VoidScope     string          `json:"voidScope,omitempty"`
	Content       string          `json:"content,omitempty"`
}

func toResponse(v *document.Version) versionResponse {
	return versionResponse{
		ID:            v.ID,
		DocumentID:    v.DocumentID,
		DealID:        v.DealID,
		Title:         v.Title,
		Version:       v.Version,
		Hash:          v.Hash,
		HashAlgorithm: v.HashAlgorithm,
		Status:        v.Status,
		CreatedBy:     v.CreatedBy,
		CreatedAt:     v.CreatedAt,
		VoidedAt:      v.VoidedAt,
		VoidedBy:      v.VoidedBy,
		VoidReason:    v.VoidReason,
		VoidScope:     v.VoidScope,
	}
}

// publish takes a multipart form: file, title, and optionally documentId to
// add a version to an existing document and dealId.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		respond.BadRequest(w, "failed to parse form: "+err.Error())
		return
	}

	var documentID uuid.UUID

	if s := r.FormValue("documentId"); s != "" {
		if documentID, err = uuid.Parse(s); err != nil {
			respond.BadRequest(w, "invalid documentId")
			return
		}
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUpload))
	if err != nil {
		respond.BadRequest(w, "failed to read file: "+err.Error())
		return
	}

	v, err := h.svc.Publish(r.Context(), actor, document.PublishParams{
		DocumentID: documentID,
		DealID:     r.FormValue("dealId"),
		Title:      r.FormValue("title"),
		Content:    content,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toResponse(v))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := reader(w, r)
	if !ok {
		return
	}

	filter := document.ListFilter{DealID: r.URL.Query().Get("dealId")}

	if s := r.URL.Query().Get("documentId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.BadRequest(w, "invalid documentId")
			return
		}

		filter.DocumentID = &id
	}

	list := h.svc.ListAvailable
	if r.URL.Query().Get("history") == "true" {
		list = h.svc.History
	}

	vs, err := list(r.Context(), actor.TenantID, filter)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := make([]versionResponse, len(vs))
	for i, v := range vs {
		resp[i] = toResponse(v)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := reader(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	v, err := h.svc.Get(r.Context(), actor.TenantID, id)
	if err != nil {
		respond.Error(w, err)
		return
	}

	resp := toResponse(v)
	resp.Content = v.Content

	respond.JSON(w, http.StatusOK, resp)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.BadRequest(w, "invalid id")
		return
	}

	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.BadRequest(w, err.Error())
		return
	}

	v, err := h.svc.Void(r.Context(), actor, id, req.Reason)
	if err != nil {
		respond.Error(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(v))
}

// reader resolves an actor allowed to read the tenant's documents.
func reader(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, err := auth.FromContext(r.Context())
	if err != nil {
		respond.Error(w, err)
		return auth.Actor{}, false
	}

	if !actor.Can(auth.PermProcedureRead) {
		respond.Error(w, document.ErrForbidden)
		return auth.Actor{}, false
	}

	return actor, true
}
