package http_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	unpaperHttp "github.com/MrJamesThe3rd/unpaper/internal/http"
	documentHandler "github.com/MrJamesThe3rd/unpaper/internal/http/document"
	ledgerHandler "github.com/MrJamesThe3rd/unpaper/internal/http/ledger"
	notaryHandler "github.com/MrJamesThe3rd/unpaper/internal/http/notary"
	procedureHandler "github.com/MrJamesThe3rd/unpaper/internal/http/procedure"
	sessionHandler "github.com/MrJamesThe3rd/unpaper/internal/http/session"
	signHandler "github.com/MrJamesThe3rd/unpaper/internal/http/sign"
	webhookHandler "github.com/MrJamesThe3rd/unpaper/internal/http/webhook"
	"github.com/MrJamesThe3rd/unpaper/internal/memstore"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "test-webhook-secret"
	tenantID      = "acme"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()

	mem := memstore.New()
	documents := document.NewService(mem.Documents())
	procedures := procedure.NewService(mem, documents)
	auditSvc := audit.NewService(mem.Audit())
	issuer := auth.NewIssuer(jwtSecret, time.Hour)

	return unpaperHttp.New(
		unpaperHttp.Options{Issuer: issuer, Session: sessionHandler.NewHandler(issuer)},
		procedureHandler.NewHandler(procedures, auditSvc),
		notaryHandler.NewHandler(procedures),
		documentHandler.NewHandler(documents),
		ledgerHandler.NewHandler(billing.NewService(mem.Billing()), auditSvc, provider.NewService(mem.Providers())),
		signHandler.NewHandler(procedures, procedure.DefaultMaxAttempts),
		webhookHandler.NewHandler(procedures, webhookSecret),
	)
}

type client struct {
	t     *testing.T
	srv   http.Handler
	token string
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var req *http.Request

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)

		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	rec := httptest.NewRecorder()
	c.srv.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func login(t *testing.T, srv http.Handler, uid string, role auth.Role) client {
	t.Helper()

	c := client{t: t, srv: srv}
	rec := c.do(http.MethodPost, "/api/v1/session", map[string]any{"tenantId": tenantID, "uid": uid, "role": role})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	c.token = decode[struct {
		AccessToken string `json:"accessToken"`
	}](t, rec).AccessToken

	return c
}

func (c client) publish(title, content string) string {
	c.t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)
	require.NoError(c.t, mw.WriteField("title", title))

	fw, err := mw.CreateFormFile("file", "contract.txt")
	require.NoError(c.t, err)

	_, err = fw.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	rec := httptest.NewRecorder()
	c.srv.ServeHTTP(rec, req)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[struct {
		ID string `json:"id"`
	}](c.t, rec).ID
}

type procedureBody struct {
	ID     string           `json:"id"`
	Status procedure.Status `json:"status"`
}

type inviteBody struct {
	Procedure procedureBody `json:"procedure"`
	Requests  []struct {
		ID string `json:"id"`
	} `json:"signatureRequests"`
	Links []struct {
		Token string `json:"token"`
	} `json:"links"`
}

func (c client) invite(create map[string]any, invites any) inviteBody {
	c.t.Helper()

	rec := c.do(http.MethodPost, "/api/v1/procedures", create)
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())

	id := decode[procedureBody](c.t, rec).ID

	rec = c.do(http.MethodPost, "/api/v1/procedures/"+id+"/configure", nil)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/v1/procedures/"+id+"/invites", invites)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())

	return decode[inviteBody](c.t, rec)
}

func TestRouter_RequiresAccessToken(t *testing.T) {
	srv := newServer(t)

	rec := client{t: t, srv: srv}.do(http.MethodGet, "/api/v1/procedures", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = client{t: t, srv: srv, token: "not-a-jwt"}.do(http.MethodGet, "/api/v1/procedures", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SingleSignerCompletes(t *testing.T) {
	srv := newServer(t)
	broker := login(t, srv, "broker-1", auth.RoleBroker)

	versionID := broker.publish("Contrato de arriendo", "Contrato\r\nCláusula primera\r\n")

	inv := broker.invite(map[string]any{
		"documentVersionId": versionID,
		"deal":              map[string]any{"name": "Depto 101"},
		"tenant":            map[string]any{"name": "Lessee"},
	}, nil)
	require.Len(t, inv.Links, 1)
	assert.Equal(t, procedure.StatusInSignature, inv.Procedure.Status)

	participant := client{t: t, srv: srv}
	link := "/api/v1/sign/" + inv.Links[0].Token

	rec := participant.do(http.MethodGet, link, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	session := decode[struct {
		CanSign bool `json:"canSign"`
	}](t, rec)
	assert.True(t, session.CanSign)

	rec = participant.do(http.MethodPost, link+"/signature", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	signed := decode[struct {
		Completed bool `json:"completed"`
	}](t, rec)
	assert.True(t, signed.Completed)

	rec = participant.do(http.MethodPost, link+"/signature", nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	id := inv.Procedure.ID

	rec = broker.do(http.MethodGet, "/api/v1/procedures/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decode[struct {
		Status        procedure.Status  `json:"status"`
		AllowedEvents []procedure.Event `json:"allowedEvents"`
		Terminal      bool              `json:"terminal"`
	}](t, rec)
	assert.Equal(t, procedure.StatusCompleted, events.Status)
	assert.Empty(t, events.AllowedEvents)
	assert.True(t, events.Terminal)

	rec = broker.do(http.MethodPost, "/api/v1/procedures/"+id+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = broker.do(http.MethodGet, "/api/v1/billing/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	bills := decode[[]struct {
		ProcedureID string          `json:"procedureId"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
	}](t, rec)
	require.Len(t, bills, 1)
	assert.Equal(t, id, bills[0].ProcedureID)
	assert.True(t, decimal.NewFromInt(29990).Equal(bills[0].Amount))
	assert.Equal(t, "CLP", bills[0].Currency)

	rec = broker.do(http.MethodGet, "/api/v1/procedures/"+id+"/timeline", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), audit.ActionProcedureCompleted)
}

func TestRouter_PaymentWebhook(t *testing.T) {
	srv := newServer(t)
	broker := login(t, srv, "broker-1", auth.RoleBroker)

	versionID := broker.publish("Contrato", "Contrato de arriendo")

	inv := broker.invite(map[string]any{
		"documentVersionId": versionID,
		"paymentPolicy":     map[string]any{"requireBeforeSignature": true},
		"amount":            "12.5",
	}, map[string]any{
		"participants": []map[string]any{
			{"participant": map[string]any{"name": "Lessee"}, "role": procedure.RoleSignerPayer},
		},
	})
	require.Equal(t, procedure.StatusInPayment, inv.Procedure.Status)

	body, err := json.Marshal(map[string]any{
		"tenantId":           tenantID,
		"procedureId":        inv.Procedure.ID,
		"signatureRequestId": inv.Requests[0].ID,
		"externalId":         "tbk-1",
		"status":             "AUTHORIZED",
	})
	require.NoError(t, err)

	callback := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/"+provider.Transbank, bytes.NewReader(body))
		req.Header.Set(provider.SignatureHeader, signature)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		return rec
	}

	type ack struct {
		Recorded  bool             `json:"recorded"`
		Duplicate bool             `json:"duplicate"`
		Status    procedure.Status `json:"procedureStatus"`
	}

	rec := callback(provider.Sign([]byte("wrong-secret"), body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = callback(provider.Sign([]byte(webhookSecret), body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ack{Recorded: true, Status: procedure.StatusInSignature}, decode[ack](t, rec))

	rec = callback("sha256=" + provider.Sign([]byte(webhookSecret), body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ack{Duplicate: true, Status: procedure.StatusInSignature}, decode[ack](t, rec))

	rec = broker.do(http.MethodGet, "/api/v1/procedures/"+inv.Procedure.ID+"/payment", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payment := decode[struct {
		PaidPercent int                       `json:"paidPercent"`
		Status      procedure.AggregateStatus `json:"status"`
	}](t, rec)
	assert.Equal(t, 100, payment.PaidPercent)
	assert.Equal(t, procedure.AggregatePaid, payment.Status)
}

func TestRouter_ErrorMapping(t *testing.T) {
	srv := newServer(t)
	broker := login(t, srv, "broker-1", auth.RoleBroker)
	notary := login(t, srv, "notary-1", auth.RoleNotary)

	type args struct {
		c      client
		method string
		path   string
		body   any
	}

	type testCase struct {
		name string
		args args
		want int
	}

	tests := []testCase{
		{
			name: "UnknownProcedure",
			args: args{c: broker, method: http.MethodGet, path: "/api/v1/procedures/7f1c3f4e-3a76-4c1e-9d0b-6a2a1c2c9f10"},
			want: http.StatusNotFound,
		},
		{
			name: "MalformedID",
			args: args{c: broker, method: http.MethodGet, path: "/api/v1/procedures/nope"},
			want: http.StatusBadRequest,
		},
		{
			name: "UnavailableDocument",
			args: args{c: broker, method: http.MethodPost, path: "/api/v1/procedures", body: map[string]any{
				"documentVersionId": "7f1c3f4e-3a76-4c1e-9d0b-6a2a1c2c9f10",
			}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "BrokerReadsNotaryInbox",
			args: args{c: broker, method: http.MethodGet, path: "/api/v1/notary/inbox"},
			want: http.StatusForbidden,
		},
		{
			name: "NotaryReadsBilling",
			args: args{c: notary, method: http.MethodGet, path: "/api/v1/billing/events"},
			want: http.StatusForbidden,
		},
		{
			name: "NotaryInboxEmpty",
			args: args{c: notary, method: http.MethodGet, path: "/api/v1/notary/inbox"},
			want: http.StatusOK,
		},
		{
			name: "UnknownSigningLink",
			args: args{c: client{t: t, srv: srv}, method: http.MethodGet, path: "/api/v1/sign/7f1c3f4e-3a76-4c1e-9d0b-6a2a1c2c9f10"},
			want: http.StatusNotFound,
		},
		{
			name: "MalformedSigningLink",
			args: args{c: client{t: t, srv: srv}, method: http.MethodGet, path: "/api/v1/sign/abc"},
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.args.c.do(tt.args.method, tt.args.path, tt.args.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_DocumentVoid(t *testing.T) {
	srv := newServer(t)
	broker := login(t, srv, "broker-1", auth.RoleBroker)

	versionID := broker.publish("Contrato", "v1")

	rec := broker.do(http.MethodPost, "/api/v1/documents/"+versionID+"/void", map[string]any{"reason": "typo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = broker.do(http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = broker.do(http.MethodGet, "/api/v1/documents?history=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = broker.do(http.MethodPost, "/api/v1/procedures", map[string]any{"documentVersionId": versionID})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
