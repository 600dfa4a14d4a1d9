// Package discovery is the boundary the contact discovery flow calls before
// persisting anything it found. A candidate passes through classification,
// source page verification and the suppression list, in that order, and
// comes out with a Decision.
package discovery

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/metrics"
	"github.com/totalaud/contact-safety/internal/pkg/logger"
	"github.com/totalaud/contact-safety/internal/verifier"
)

var log = logger.Scope("discovery")

// Drop reasons that are not verification methods.
const (
	DropMissingEmail = "missing_email"
	DropSuppressed   = "suppressed"
)

// DefaultFetchConcurrency bounds how many source pages are fetched at once.
const DefaultFetchConcurrency = 8

// Classifier assigns a GDPR processing basis to a contact.
type Classifier interface {
	Classify(c domain.Contact) domain.ClassificationResult
}

// Verifier confirms addresses against the page they were claimed from.
type Verifier interface {
	VerifyBatch(ctx context.Context, emails []string, sourceURL string) verifier.BatchResult
}

// SuppressionChecker consults the do-not-contact list.
type SuppressionChecker interface {
	CheckBatch(ctx context.Context, emails []string, userID string) map[string]domain.SuppressionCheck
}

// Candidate is one discovered contact awaiting a decision. ID is the
// caller's reference; an empty ID is assigned.
type Candidate struct {
	ID string `json:"id,omitempty"`
	domain.Contact
}

// Decision is the outcome for one candidate.
//
// Persist means the record may be stored. Sendable means it may also be
// used for outreach. A suppressed but verified contact can be persisted
// without being sendable when the gate is configured to keep it.
type Decision struct {
	CandidateID     string                      `json:"candidate_id"`
	Contact         domain.Contact              `json:"contact"`
	Persist         bool                        `json:"persist"`
	Sendable        bool                        `json:"sendable"`
	RequiresConsent bool                        `json:"requires_consent"`
	Classification  domain.ClassificationResult `json:"classification"`
	Verification    *domain.VerificationResult  `json:"verification,omitempty"`
	Suppression     *domain.SuppressionCheck    `json:"suppression,omitempty"`
	DropReason      string                      `json:"drop_reason,omitempty"`
}

// Options configures a Gate.
type Options struct {
	// KeepSuppressed persists verified but suppressed contacts as
	// unsendable instead of dropping them.
	KeepSuppressed bool

	// FetchConcurrency bounds parallel page fetches. Zero selects
	// DefaultFetchConcurrency.
	FetchConcurrency int
}

// Gate runs the safety pipeline.
type Gate struct {
	classifier  Classifier
	verifier    Verifier
	suppression SuppressionChecker
	opts        Options
}

// NewGate wires the three stages together.
func NewGate(c Classifier, v Verifier, s SuppressionChecker, opts Options) *Gate {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	return &Gate{classifier: c, verifier: v, suppression: s, opts: opts}
}

// Screen decides every candidate. Candidates sharing a source URL cause one
// page fetch between them. The returned slice is in input order.
func (g *Gate) Screen(ctx context.Context, candidates []Candidate, userID string) []Decision {
	decisions := make([]Decision, len(candidates))

	// url -> indexes of candidates with an email claimed from it
	byURL := make(map[string][]int)
	var urls []string

	for i, c := range candidates {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		cls := g.classifier.Classify(c.Contact)
		decisions[i] = Decision{
			CandidateID:     id,
			Contact:         c.Contact,
			Classification:  cls,
			RequiresConsent: cls.RequiresConsent(),
		}
		if strings.TrimSpace(c.Email) == "" {
			decisions[i].DropReason = DropMissingEmail
			continue
		}
		if _, seen := byURL[c.SourceURL]; !seen {
			urls = append(urls, c.SourceURL)
		}
		byURL[c.SourceURL] = append(byURL[c.SourceURL], i)
	}

	g.verifyAll(ctx, candidates, decisions, urls, byURL)
	g.suppressAll(ctx, candidates, decisions, userID)

	for i := range decisions {
		metrics.RecordScreenDecision(outcome(decisions[i]))
	}
	return decisions
}

func (g *Gate) verifyAll(ctx context.Context, candidates []Candidate, decisions []Decision, urls []string, byURL map[string][]int) {
	results := make([]verifier.BatchResult, len(urls))

	var eg errgroup.Group
	eg.SetLimit(g.opts.FetchConcurrency)
	for n, u := range urls {
		emails := make([]string, 0, len(byURL[u]))
		for _, i := range byURL[u] {
			emails = append(emails, candidates[i].Email)
		}
		eg.Go(func() error {
			results[n] = g.verifier.VerifyBatch(ctx, emails, u)
			return nil
		})
	}
	_ = eg.Wait()

	for n, u := range urls {
		for _, i := range byURL[u] {
			res, ok := results[n].Results[candidates[i].Email]
			if !ok {
				res = domain.VerificationResult{Method: domain.MethodFetchFailed, SourceURL: u, Error: "no result"}
			}
			decisions[i].Verification = &res
			if !res.Verified {
				decisions[i].DropReason = string(res.Method)
			}
		}
	}
}

func (g *Gate) suppressAll(ctx context.Context, candidates []Candidate, decisions []Decision, userID string) {
	var emails []string
	for i := range decisions {
		if decisions[i].DropReason == "" {
			emails = append(emails, candidates[i].Email)
		}
	}
	if len(emails) == 0 {
		return
	}

	checks := g.suppression.CheckBatch(ctx, emails, userID)
	for i := range decisions {
		d := &decisions[i]
		if d.DropReason != "" {
			continue
		}
		check := checks[candidates[i].Email]
		d.Suppression = &check
		if check.IsSuppressed {
			d.Persist = g.opts.KeepSuppressed
			if !d.Persist {
				d.DropReason = DropSuppressed
			}
			log.Info("candidate suppressed",
				"candidate_id", d.CandidateID,
				"email", candidates[i].Email,
				"reason", string(check.Reason),
			)
			continue
		}
		d.Persist = true
		d.Sendable = true
	}
}

func outcome(d Decision) string {
	switch {
	case d.Sendable:
		return "persist_sendable"
	case d.Persist:
		return "persist_unsendable"
	default:
		return "dropped"
	}
}
