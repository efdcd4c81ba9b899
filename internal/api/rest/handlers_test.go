package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safeworkhq/compliance-backend/internal/crypto"
	"github.com/safeworkhq/compliance-backend/internal/domain/audit"
	"github.com/safeworkhq/compliance-backend/internal/domain/document"
	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
	"github.com/safeworkhq/compliance-backend/internal/domain/submission"
	"github.com/safeworkhq/compliance-backend/internal/domain/template"
	"github.com/safeworkhq/compliance-backend/internal/infrastructure/config"
	"github.com/safeworkhq/compliance-backend/internal/service/catalog"
	"github.com/safeworkhq/compliance-backend/internal/service/extraction"
	"github.com/safeworkhq/compliance-backend/internal/service/records"
	"github.com/safeworkhq/compliance-backend/internal/service/registry"
)

const testJWTSecret = "test-jwt-secret"

// --- in-memory fakes ---

type memTemplateRepo struct {
	store map[string]*template.Template
}

func (r *memTemplateRepo) Save(_ context.Context, t *template.Template) error {
	cp := *t
	r.store[t.ID] = &cp
	return nil
}

func (r *memTemplateRepo) Load(_ context.Context, id string) (*template.Template, error) {
	t, ok := r.store[id]
	if !ok {
		return nil, errors.ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTemplateRepo) List(_ context.Context) ([]*template.Template, error) {
	out := make([]*template.Template, 0, len(r.store))
	for _, t := range r.store {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTemplateRepo) MarkReferenced(_ context.Context, id string) error {
	t, ok := r.store[id]
	if !ok {
		return errors.ErrTemplateNotFound
	}
	t.Locked = true
	return nil
}

type memSubmissionRepo struct {
	store map[uuid.UUID]*submission.Submission
}

func (r *memSubmissionRepo) Save(_ context.Context, s *submission.Submission) error {
	r.store[s.ID] = s
	return nil
}

func (r *memSubmissionRepo) Load(_ context.Context, id uuid.UUID) (*submission.Submission, error) {
	s, ok := r.store[id]
	if !ok {
		return nil, errors.ErrSubmissionNotFound
	}
	return s, nil
}

func (r *memSubmissionRepo) CountByTemplate(_ context.Context, templateID string) (int64, error) {
	var n int64
	for _, s := range r.store {
		if s.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

type memTrail struct {
	records   []*audit.Record
	lastLimit int
}

func (t *memTrail) Append(_ context.Context, rec *audit.Record) (uuid.UUID, error) {
	t.records = append(t.records, rec)
	return rec.ID, nil
}

func (t *memTrail) TrailFor(_ context.Context, objectID string) ([]*audit.Record, error) {
	var out []*audit.Record
	for _, rec := range t.records {
		if rec.ObjectID == objectID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *memTrail) Recent(_ context.Context, limit int) ([]*audit.Record, error) {
	t.lastLimit = limit
	if limit <= 0 {
		return []*audit.Record{}, nil
	}
	n := len(t.records)
	var out []*audit.Record
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.records[i])
	}
	return out, nil
}

// --- fixture ---

type testEnv struct {
	handler http.Handler
	trail   *memTrail
	subs    *memSubmissionRepo
}

const catalogYAML = `
industries:
  bau:
    name: Bau
    activities: [Gerüstbau]
    norms: [ISO 45001]
    hazards:
      - name: Absturz
        law: DGUV, BetrSichV
        ppe: [Auffanggurt, Helm]
        measures: Gerüstkontrolle, Absturzsicherung
        probability: 2
        severity: 4
        frequency: 1
`

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	zlog := zap.NewNop()

	tplRepo := &memTemplateRepo{store: make(map[string]*template.Template)}
	subRepo := &memSubmissionRepo{store: make(map[uuid.UUID]*submission.Submission)}
	trail := &memTrail{}

	env, err := crypto.NewEnvelope([]byte("0123456789abcdef0123456789abcdef"), crypto.MinIterations)
	require.NoError(t, err)

	catalogPath := t.TempDir() + "/catalog.yaml"
	require.NoError(t, writeFile(catalogPath, catalogYAML))
	cat, err := catalog.NewService(catalogPath, zlog)
	require.NoError(t, err)

	hub := NewAuditHub(logger)
	broadcastTrail := NewBroadcastingTrail(trail, hub)

	reg := registry.NewService(tplRepo, subRepo, nil, zlog)
	rec := records.NewService(reg, subRepo, tplRepo, broadcastTrail,
		document.NewPlainTextReader(), extraction.NewEngine(), env, zlog)

	h := NewHandler(reg, rec, broadcastTrail, cat, hub, logger)

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Security: config.SecurityConfig{
			JWTSecret: testJWTSecret,
			RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200},
		},
	}

	return &testEnv{
		handler: NewRouter(h, cfg, logger),
		trail:   trail,
		subs:    subRepo,
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func validTemplateBody() map[string]any {
	return map[string]any{
		"name":     "Gefährdungsbeurteilung Bau",
		"language": "de",
		"sections": []map[string]any{{"id": "allgemein", "title": "Allgemeines"}},
		"fields": []map[string]any{
			{
				"id":         "durchgefuehrt",
				"section_id": "allgemein",
				"label":      "Durchgeführt",
				"type":       "boolean",
				"extraction_hint": map[string]any{
					"regex": "Gefährdungsbeurteilung wurde durchgeführt",
				},
			},
			{
				"id":         "verantwortlich",
				"section_id": "allgemein",
				"label":      "Verantwortlich",
				"type":       "text",
				"extraction_hint": map[string]any{
					"keywords": []string{"Verantwortlich"},
				},
			},
		},
	}
}

// --- tests ---

func TestAuth_RequiredOnAPIRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/templates", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_PublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTemplates_PutGetList(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	w := env.do(t, http.MethodPut, "/api/v1/templates/gbu-bau-v1", token, validTemplateBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/templates/gbu-bau-v1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tpl template.Template
	decodeBody(t, w, &tpl)
	assert.Equal(t, "gbu-bau-v1", tpl.ID)
	assert.Len(t, tpl.Fields, 2)

	w = env.do(t, http.MethodGet, "/api/v1/templates", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, w, &list)
	assert.Equal(t, 1, list.Count)
}

func TestTemplates_PutInvalid(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	body := validTemplateBody()
	body["fields"].([]map[string]any)[0]["section_id"] = "missing"

	w := env.do(t, http.MethodPut, "/api/v1/templates/gbu-bau-v1", token, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "UNKNOWN_SECTION_REF", resp.Error.Code)
}

func TestTemplates_GetUnknown(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	w := env.do(t, http.MethodGet, "/api/v1/templates/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissions_IngestAndGet(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "intake-bot")

	w := env.do(t, http.MethodPut, "/api/v1/templates/gbu-bau-v1", token, validTemplateBody())
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/submissions", token, map[string]any{
		"template_id":   "gbu-bau-v1",
		"source_system": "sharepoint",
		"doc_type":      "gbu",
		"document":      "Gefährdungsbeurteilung wurde durchgeführt am 12.03.2024\nVerantwortlich: Hr. Schulz\n",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created records.Record
	decodeBody(t, w, &created)
	assert.Equal(t, true, created.Values["durchgefuehrt"])
	assert.Equal(t, "Hr. Schulz", created.Values["verantwortlich"])

	w = env.do(t, http.MethodGet, "/api/v1/submissions/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got records.Record
	decodeBody(t, w, &got)
	assert.Equal(t, "Hr. Schulz", got.Values["verantwortlich"])

	// A referenced template refuses in-place changes.
	w = env.do(t, http.MethodPut, "/api/v1/templates/gbu-bau-v1", token, validTemplateBody())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissions_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "intake-bot")

	w := env.do(t, http.MethodPost, "/api/v1/submissions", token, map[string]any{
		"template_id": "gbu-bau-v1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/submissions/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/submissions/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAudit_TrailAndRecent(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "intake-bot")

	w := env.do(t, http.MethodPut, "/api/v1/templates/gbu-bau-v1", token, validTemplateBody())
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/submissions", token, map[string]any{
		"template_id":   "gbu-bau-v1",
		"source_system": "sharepoint",
		"doc_type":      "gbu",
		"document":      "Verantwortlich: Hr. Schulz\n",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created records.Record
	decodeBody(t, w, &created)

	w = env.do(t, http.MethodGet, "/api/v1/audit/trail?object_id="+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var trail struct {
		Records []audit.Record `json:"records"`
	}
	decodeBody(t, w, &trail)
	require.Len(t, trail.Records, 1)
	assert.Equal(t, audit.ActionCreate, trail.Records[0].Action)
	assert.Equal(t, "intake-bot", trail.Records[0].Actor)

	w = env.do(t, http.MethodGet, "/api/v1/audit/trail", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/audit/recent?limit=10", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/audit/recent?limit=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// An oversized limit is clamped before it reaches the store.
	w = env.do(t, http.MethodGet, "/api/v1/audit/recent?limit=10000000", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxRecentLimit, env.trail.lastLimit)
}

func TestRisk_Rating(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	w := env.do(t, http.MethodPost, "/api/v1/risk/rating", token, map[string]any{
		"probability": 2, "severity": 4, "frequency": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var rating struct {
		Score int    `json:"score"`
		Color string `json:"color"`
	}
	decodeBody(t, w, &rating)
	assert.Equal(t, 8, rating.Score)
	assert.Equal(t, "ROT", rating.Color)

	// Frequency defaults to 1 when omitted.
	w = env.do(t, http.MethodPost, "/api/v1/risk/rating", token, map[string]any{
		"probability": 1, "severity": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &rating)
	assert.Equal(t, 2, rating.Score)
	assert.Equal(t, "GRUEN", rating.Color)

	w = env.do(t, http.MethodPost, "/api/v1/risk/rating", token, map[string]any{
		"probability": 9, "severity": 4,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalog_Endpoints(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	w := env.do(t, http.MethodGet, "/api/v1/catalog", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var industries struct {
		Industries []string `json:"industries"`
	}
	decodeBody(t, w, &industries)
	assert.Equal(t, []string{"bau"}, industries.Industries)

	w = env.do(t, http.MethodGet, "/api/v1/catalog/bau/checklist", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cl catalog.Checklist
	decodeBody(t, w, &cl)
	require.Len(t, cl.Items, 1)
	assert.Equal(t, "Absturz", cl.Items[0].Hazard)
	assert.Equal(t, "BA für Bau: Absturz", cl.Items[0].Instruction.Title)

	w = env.do(t, http.MethodGet, "/api/v1/catalog/metall/checklist", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntegration_Webhook(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "erp-connector")

	w := env.do(t, http.MethodPost, "/api/v1/integration/webhook", token, map[string]any{
		"system": "sap-ehs",
		"event":  "document.updated",
		"data":   map[string]any{"doc_id": "4711"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, env.trail.records, 1)
	rec := env.trail.records[0]
	assert.Equal(t, audit.ActionWebhook, rec.Action)
	assert.Equal(t, "sap-ehs", rec.ObjectID)
	assert.Equal(t, "erp-connector", rec.Actor)
	assert.Equal(t, "document.updated", rec.Details["event"])

	w = env.do(t, http.MethodPost, "/api/v1/integration/webhook", token, map[string]any{
		"system": "sap-ehs",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	// A generated id is present when the caller sends none.
	w2 := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, w2.Header().Get("X-Request-ID"))
}

func TestErrorBody_Shape(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "safety-officer")

	w := env.do(t, http.MethodGet, "/api/v1/templates/nope", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp errorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "RESOURCE_NOT_FOUND", resp.Error.Code)
	assert.True(t, strings.Contains(resp.Error.Message, "template"))
}
