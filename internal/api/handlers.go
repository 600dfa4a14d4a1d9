package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/totalaud/contact-safety/internal/classifier"
	"github.com/totalaud/contact-safety/internal/discovery"
	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/pkg/httputil"
	"github.com/totalaud/contact-safety/internal/suppression"
)

// Handlers contains the HTTP handlers for the /v1 routes.
type Handlers struct {
	deps     Deps
	maxBatch int
}

type classifyResponse struct {
	domain.ClassificationResult
	RequiresConsent bool   `json:"requires_consent"`
	ConfidenceLabel string `json:"confidence_label"`
}

// Classify handles POST /v1/classify.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var c domain.Contact
	if !httputil.Decode(w, r, &c) {
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	res := h.deps.Classifier.Classify(c)
	httputil.OK(w, classifyResponse{
		ClassificationResult: res,
		RequiresConsent:      res.RequiresConsent(),
		ConfidenceLabel:      classifier.ConfidenceLabel(res.Confidence),
	})
}

type verifyRequest struct {
	Email     string `json:"email"`
	SourceURL string `json:"source_url"`
}

// Verify handles POST /v1/verify. A well-formed request always gets a 200
// with a structured result, including for an invalid source URL.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	httputil.OK(w, h.deps.Verifier.Verify(r.Context(), req.Email, req.SourceURL))
}

type verifyBatchRequest struct {
	Emails         []string `json:"emails"`
	SourceURL      string   `json:"source_url"`
	IncludeContent bool     `json:"include_content,omitempty"`
}

type verifyBatchResponse struct {
	Results     map[string]domain.VerificationResult `json:"results"`
	PageContent string                               `json:"page_content,omitempty"`
}

// VerifyBatch handles POST /v1/verify/batch.
func (h *Handlers) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req verifyBatchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !h.batchOK(w, len(req.Emails)) || !emailsOK(w, req.Emails) {
		return
	}
	res := h.deps.Verifier.VerifyBatch(r.Context(), req.Emails, req.SourceURL)
	out := verifyBatchResponse{Results: res.Results}
	if req.IncludeContent {
		out.PageContent = res.PageContent
	}
	httputil.OK(w, out)
}

type checkRequest struct {
	Email  string `json:"email"`
	UserID string `json:"user_id,omitempty"`
}

// CheckSuppression handles POST /v1/suppression/check.
func (h *Handlers) CheckSuppression(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.BadRequest(w, "email is required")
		return
	}
	httputil.OK(w, h.deps.Suppression.Check(r.Context(), req.Email, req.UserID))
}

type checkBatchRequest struct {
	Emails []string `json:"emails"`
	UserID string   `json:"user_id,omitempty"`
}

// CheckSuppressionBatch handles POST /v1/suppression/check-batch.
func (h *Handlers) CheckSuppressionBatch(w http.ResponseWriter, r *http.Request) {
	var req checkBatchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !h.batchOK(w, len(req.Emails)) || !emailsOK(w, req.Emails) {
		return
	}
	httputil.OK(w, map[string]any{
		"results": h.deps.Suppression.CheckBatch(r.Context(), req.Emails, req.UserID),
	})
}

type addRequest struct {
	suppression.NewEntry
	UserID string `json:"user_id,omitempty"`
}

// AddSuppression handles POST /v1/suppression.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Domain) == "" {
		httputil.BadRequest(w, "email or domain is required")
		return
	}
	if req.Reason != "" && !req.Reason.Valid() {
		httputil.BadRequest(w, fmt.Sprintf("unknown reason %q", req.Reason))
		return
	}
	if req.Scope == domain.ScopeUser && req.UserID == "" {
		httputil.BadRequest(w, "user scope requires user_id")
		return
	}
	if !h.deps.Suppression.Add(r.Context(), req.NewEntry, req.UserID) {
		httputil.Unavailable(w, "suppression not recorded")
		return
	}
	httputil.Created(w, map[string]bool{"added": true})
}

// ClearSuppressionCache handles DELETE /v1/suppression/cache.
func (h *Handlers) ClearSuppressionCache(w http.ResponseWriter, r *http.Request) {
	h.deps.Suppression.ClearCache(r.Context())
	httputil.NoContent(w)
}

type emailRequest struct {
	Email string `json:"email"`
}

// EraseSuppression handles POST /v1/suppression/erase.
func (h *Handlers) EraseSuppression(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	n, err := h.deps.Suppression.Erase(r.Context(), req.Email)
	switch {
	case errors.Is(err, suppression.ErrEmptyEmail):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]int64{"deleted": n})
	}
}

// RecoverSuppression handles POST /v1/suppression/recover.
func (h *Handlers) RecoverSuppression(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	entries, err := h.deps.Suppression.Recover(r.Context(), req.Email)
	switch {
	case errors.Is(err, suppression.ErrEmptyEmail):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, suppression.ErrNoEncryptionKey):
		httputil.ErrorCode(w, http.StatusConflict, "no_encryption_key", "entries are stored as hashes only")
	case errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{"entries": entries})
	}
}

type screenRequest struct {
	Candidates []discovery.Candidate `json:"candidates"`
	UserID     string                `json:"user_id,omitempty"`
}

// Screen handles POST /v1/screen.
func (h *Handlers) Screen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !h.batchOK(w, len(req.Candidates)) {
		return
	}
	for i, c := range req.Candidates {
		if strings.TrimSpace(c.Name) == "" {
			httputil.BadRequest(w, fmt.Sprintf("candidates[%d]: name is required", i))
			return
		}
	}
	httputil.OK(w, map[string]any{
		"decisions": h.deps.Gate.Screen(r.Context(), req.Candidates, req.UserID),
	})
}

// emailsOK rejects a batch containing a blank address.
func emailsOK(w http.ResponseWriter, emails []string) bool {
	for i, e := range emails {
		if strings.TrimSpace(e) == "" {
			httputil.BadRequest(w, fmt.Sprintf("emails[%d] is required", i))
			return false
		}
	}
	return true
}

func (h *Handlers) batchOK(w http.ResponseWriter, n int) bool {
	if n == 0 {
		httputil.BadRequest(w, "batch is empty")
		return false
	}
	if n > h.maxBatch {
		httputil.BadRequest(w, fmt.Sprintf("batch of %d exceeds limit of %d", n, h.maxBatch))
		return false
	}
	return true
}
