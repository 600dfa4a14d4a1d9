package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totalaud/contact-safety/internal/classifier"
	"github.com/totalaud/contact-safety/internal/discovery"
	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/suppression"
	"github.com/totalaud/contact-safety/internal/verifier"
)

type mockVerifier struct{}

func (m *mockVerifier) Verify(_ context.Context, email, sourceURL string) domain.VerificationResult {
	if !verifier.IsValidURL(sourceURL) {
		return domain.VerificationResult{Method: domain.MethodInvalidURL, SourceURL: sourceURL, Error: "Invalid URL"}
	}
	return domain.VerificationResult{Verified: true, Method: domain.MethodSourcePageVerified, FoundInPage: true, IsVisibleContent: true, SourceURL: sourceURL}
}

func (m *mockVerifier) VerifyBatch(ctx context.Context, emails []string, sourceURL string) verifier.BatchResult {
	out := verifier.BatchResult{Results: map[string]domain.VerificationResult{}, PageContent: "<html>page</html>"}
	for _, e := range emails {
		out.Results[e] = m.Verify(ctx, e, sourceURL)
	}
	return out
}

type mockSuppression struct {
	mu        sync.Mutex
	entries   map[string]suppression.NewEntry
	addOK     bool
	cleared   int
	eraseErr  error
	recoverFn func(email string) ([]suppression.Disclosure, error)
}

func newMockSuppression() *mockSuppression {
	return &mockSuppression{entries: map[string]suppression.NewEntry{}, addOK: true}
}

func (m *mockSuppression) Check(_ context.Context, email, _ string) domain.SuppressionCheck {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[strings.ToLower(strings.TrimSpace(email))]; ok {
		return domain.SuppressionCheck{IsSuppressed: true, Reason: e.Reason, Scope: domain.ScopeGlobal}
	}
	return domain.SuppressionCheck{}
}

func (m *mockSuppression) CheckBatch(ctx context.Context, emails []string, userID string) map[string]domain.SuppressionCheck {
	out := make(map[string]domain.SuppressionCheck, len(emails))
	for _, e := range emails {
		out[e] = m.Check(ctx, e, userID)
	}
	return out
}

func (m *mockSuppression) Add(_ context.Context, req suppression.NewEntry, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.addOK {
		return false
	}
	m.entries[strings.ToLower(strings.TrimSpace(req.Email))] = req
	return true
}

func (m *mockSuppression) ClearCache(context.Context) {
	m.mu.Lock()
	m.cleared++
	m.mu.Unlock()
}

func (m *mockSuppression) Erase(_ context.Context, email string) (int64, error) {
	if m.eraseErr != nil {
		return 0, m.eraseErr
	}
	if email == "" {
		return 0, suppression.ErrEmptyEmail
	}
	return 1, nil
}

func (m *mockSuppression) Recover(_ context.Context, email string) ([]suppression.Disclosure, error) {
	return m.recoverFn(email)
}

type testEnv struct {
	handler http.Handler
	ver     *mockVerifier
	sup     *mockSuppression
}

func setupTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ver := &mockVerifier{}
	sup := newMockSuppression()
	cls := classifier.Default()
	srv := NewServer(Deps{
		Classifier:  cls,
		Verifier:    ver,
		Suppression: sup,
		Gate:        discovery.NewGate(cls, ver, sup, discovery.Options{}),
		Health:      NewHealthChecker(nil, nil, nil, ""),
	}, opts)
	return &testEnv{handler: srv.Handler(), ver: ver, sup: sup}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestClassify(t *testing.T) {
	env := setupTestServer(t, Options{})

	rec := env.do(t, http.MethodPost, "/v1/classify", domain.Contact{
		Name: "Jane Smith", Email: "jane@bbc.co.uk", Role: "Producer", OutletName: "BBC Radio 1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Type            domain.ContactType `json:"type"`
		Confidence      float64            `json:"confidence"`
		RequiresConsent bool               `json:"requires_consent"`
		ConfidenceLabel string             `json:"confidence_label"`
		Signals         []domain.ClassificationSignal
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, domain.ContactB2B, body.Type)
	assert.False(t, body.RequiresConsent)
	assert.NotEmpty(t, body.Signals)
	assert.Equal(t, classifier.ConfidenceLabel(body.Confidence), body.ConfidenceLabel)
}

func TestClassify_Validation(t *testing.T) {
	env := setupTestServer(t, Options{})
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/classify", domain.Contact{Email: "a@b.com"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/classify", `{"name":`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/classify", `{"name":"x","bogus":true}`).Code)
}

func TestVerify(t *testing.T) {
	env := setupTestServer(t, Options{})

	rec := env.do(t, http.MethodPost, "/v1/verify", verifyRequest{Email: "test@example.com", SourceURL: "https://example.com/contact"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res domain.VerificationResult
	decodeBody(t, rec, &res)
	assert.True(t, res.Verified)

	rec = env.do(t, http.MethodPost, "/v1/verify", verifyRequest{Email: "test@example.com", SourceURL: "not-a-url"})
	require.Equal(t, http.StatusOK, rec.Code, "invalid URL is a structured result, not an HTTP error")
	decodeBody(t, rec, &res)
	assert.Equal(t, domain.MethodInvalidURL, res.Method)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/verify", verifyRequest{SourceURL: "https://x.com"}).Code)
}

func TestVerifyBatch(t *testing.T) {
	env := setupTestServer(t, Options{MaxBatchSize: 2})

	rec := env.do(t, http.MethodPost, "/v1/verify/batch", verifyBatchRequest{Emails: []string{"a@x.com", "b@x.com"}, SourceURL: "https://x.com/team"})
	require.Equal(t, http.StatusOK, rec.Code)
	var body verifyBatchResponse
	decodeBody(t, rec, &body)
	assert.Len(t, body.Results, 2)
	assert.Empty(t, body.PageContent, "content only returned on request")

	rec = env.do(t, http.MethodPost, "/v1/verify/batch", verifyBatchRequest{Emails: []string{"a@x.com"}, SourceURL: "https://x.com/team", IncludeContent: true})
	decodeBody(t, rec, &body)
	assert.Equal(t, "<html>page</html>", body.PageContent)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/verify/batch", verifyBatchRequest{SourceURL: "https://x.com"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/verify/batch", verifyBatchRequest{Emails: []string{"a", "b", "c"}, SourceURL: "https://x.com"}).Code)
}

func TestBatchEndpoints_RejectBlankEmails(t *testing.T) {
	env := setupTestServer(t, Options{})

	for _, emails := range [][]string{{""}, {"a@x.com", " "}} {
		rec := env.do(t, http.MethodPost, "/v1/verify/batch", verifyBatchRequest{Emails: emails, SourceURL: "https://x.com/team"})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "verify batch %q", emails)

		rec = env.do(t, http.MethodPost, "/v1/suppression/check-batch", checkBatchRequest{Emails: emails})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "check batch %q", emails)
	}

	rec := env.do(t, http.MethodPost, "/v1/verify", verifyRequest{Email: " ", SourceURL: "https://x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuppressionFlow(t *testing.T) {
	env := setupTestServer(t, Options{})

	rec := env.do(t, http.MethodPost, "/v1/suppression", addRequest{NewEntry: suppression.NewEntry{Email: "jane@label.com", Reason: domain.ReasonUnsubscribe}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/suppression/check", checkRequest{Email: " JANE@label.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var check domain.SuppressionCheck
	decodeBody(t, rec, &check)
	assert.True(t, check.IsSuppressed)
	assert.Equal(t, domain.ReasonUnsubscribe, check.Reason)

	rec = env.do(t, http.MethodPost, "/v1/suppression/check-batch", checkBatchRequest{Emails: []string{"jane@label.com", "other@label.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch struct {
		Results map[string]domain.SuppressionCheck `json:"results"`
	}
	decodeBody(t, rec, &batch)
	assert.True(t, batch.Results["jane@label.com"].IsSuppressed)
	assert.False(t, batch.Results["other@label.com"].IsSuppressed)

	rec = env.do(t, http.MethodDelete, "/v1/suppression/cache", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, env.sup.cleared)
}

func TestAddSuppression_Errors(t *testing.T) {
	env := setupTestServer(t, Options{})

	tests := []struct {
		name string
		req  addRequest
		want int
	}{
		{"missing target", addRequest{NewEntry: suppression.NewEntry{Reason: domain.ReasonManual}}, http.StatusBadRequest},
		{"bad reason", addRequest{NewEntry: suppression.NewEntry{Email: "a@b.com", Reason: "whim"}}, http.StatusBadRequest},
		{"user scope without user", addRequest{NewEntry: suppression.NewEntry{Email: "a@b.com", Scope: domain.ScopeUser}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.do(t, http.MethodPost, "/v1/suppression", tt.req).Code)
		})
	}

	env.sup.addOK = false
	rec := env.do(t, http.MethodPost, "/v1/suppression", addRequest{NewEntry: suppression.NewEntry{Email: "a@b.com"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEraseSuppression(t *testing.T) {
	env := setupTestServer(t, Options{})

	rec := env.do(t, http.MethodPost, "/v1/suppression/erase", emailRequest{Email: "jane@label.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":1}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/suppression/erase", emailRequest{}).Code)

	env.sup.eraseErr = suppression.ErrNotFound
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/suppression/erase", emailRequest{Email: "x@y.com"}).Code)
}

func TestRecoverSuppression(t *testing.T) {
	env := setupTestServer(t, Options{})

	env.sup.recoverFn = func(string) ([]suppression.Disclosure, error) { return nil, suppression.ErrNoEncryptionKey }
	rec := env.do(t, http.MethodPost, "/v1/suppression/recover", emailRequest{Email: "jane@label.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_encryption_key")

	env.sup.recoverFn = func(email string) ([]suppression.Disclosure, error) {
		return []suppression.Disclosure{{Email: email, Domain: "label.com"}}, nil
	}
	rec = env.do(t, http.MethodPost, "/v1/suppression/recover", emailRequest{Email: "jane@label.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"jane@label.com"`)
}

func TestScreen(t *testing.T) {
	env := setupTestServer(t, Options{})
	env.sup.entries["ops@label.com"] = suppression.NewEntry{Email: "ops@label.com", Reason: domain.ReasonOptOut}

	rec := env.do(t, http.MethodPost, "/v1/screen", screenRequest{Candidates: []discovery.Candidate{
		{ID: "a", Contact: domain.Contact{Name: "Jane", Email: "jane@label.com", SourceURL: "https://label.com/team"}},
		{ID: "b", Contact: domain.Contact{Name: "Ops", Email: "ops@label.com", SourceURL: "https://label.com/team"}},
		{ID: "c", Contact: domain.Contact{Name: "Bad", Email: "bad@label.com", SourceURL: "nope"}},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Decisions []discovery.Decision `json:"decisions"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Decisions, 3)
	assert.True(t, body.Decisions[0].Sendable)
	assert.Equal(t, discovery.DropSuppressed, body.Decisions[1].DropReason)
	assert.Equal(t, string(domain.MethodInvalidURL), body.Decisions[2].DropReason)

	rec = env.do(t, http.MethodPost, "/v1/screen", screenRequest{Candidates: []discovery.Candidate{{Contact: domain.Contact{Email: "x@y.com"}}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	env := setupTestServer(t, Options{APIToken: "s3cret"})

	rec := env.do(t, http.MethodPost, "/v1/classify", domain.Contact{Name: "Jane"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/classify", strings.NewReader(`{"name":"Jane"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health and metrics stay open.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, Options{})
	env.do(t, http.MethodPost, "/v1/screen", screenRequest{Candidates: []discovery.Candidate{
		{Contact: domain.Contact{Name: "Jane", Email: "jane@label.com", SourceURL: "https://label.com/team"}},
	}})

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "discovery_screen_decisions_total")
}
