// Package verifier confirms that a discovered email address is actually
// published on the page it was claimed to come from.
//
// The rule is "drop, don't guess": a result is Verified only when the
// address was observed, case-insensitively, in the visible part of a page
// fetched live from the claimed URL, or in one of the explicit obfuscated
// spellings of that exact address. Every other outcome, including every
// infrastructure failure, is a structured not-verified result.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/metrics"
	"github.com/totalaud/contact-safety/internal/pkg/httpretry"
	"github.com/totalaud/contact-safety/internal/pkg/logger"
)

const (
	// DefaultTimeout bounds a single page fetch.
	DefaultTimeout = 5000 * time.Millisecond

	// DefaultUserAgent makes the fetch look like a desktop browser.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultMaxBodyBytes caps how much of a page is read.
	DefaultMaxBodyBytes = 2 << 20

	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptLanguageHeader = "en-GB,en;q=0.9"
)

var log = logger.Scope("source_verifier")

// Config controls page fetching.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

// DefaultConfig returns the stock fetch settings.
func DefaultConfig() Config {
	return Config{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Verifier fetches source pages and inspects them. It is safe for concurrent use.
type Verifier struct {
	client   httpretry.HTTPDoer
	cfg      Config
	evidence EvidenceStore
}

// New creates a Verifier. A nil client uses an http.Client that follows
// redirects; the timeout is always enforced through the request context so
// an expired fetch is aborted, not abandoned.
func New(cfg Config, client httpretry.HTTPDoer) *Verifier {
	d := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = d.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Verifier{client: client, cfg: cfg}
}

// SetEvidenceStore archives the body of every page that verified at least
// one address. Archiving failures are logged and never change a result.
func (v *Verifier) SetEvidenceStore(s EvidenceStore) { v.evidence = s }

// BatchResult is the outcome of VerifyBatch. PageContent is the fetched
// body, empty when the fetch did not succeed.
type BatchResult struct {
	Results     map[string]domain.VerificationResult
	PageContent string
}

// Verify checks a single address against sourceURL.
func (v *Verifier) Verify(ctx context.Context, email, sourceURL string) domain.VerificationResult {
	if _, ok := normalizeEmail(email); !ok {
		res := invalidEmail(sourceURL)
		v.record(ctx, []string{email}, map[string]domain.VerificationResult{email: res}, page{sourceURL: sourceURL})
		return res
	}
	page := v.load(ctx, sourceURL)
	res := page.inspect(email)
	v.record(ctx, []string{email}, map[string]domain.VerificationResult{email: res}, page)
	return res
}

// VerifyBatch fetches sourceURL once and checks every address against the
// same body. Each result equals what Verify would return for that address
// against an identical fetch.
func (v *Verifier) VerifyBatch(ctx context.Context, emails []string, sourceURL string) BatchResult {
	out := BatchResult{Results: make(map[string]domain.VerificationResult, len(emails))}

	var valid []string
	for _, e := range emails {
		if _, ok := normalizeEmail(e); ok {
			valid = append(valid, e)
			continue
		}
		out.Results[e] = invalidEmail(sourceURL)
	}

	// No page is fetched when no address could match it.
	p := page{sourceURL: sourceURL}
	if len(valid) > 0 {
		p = v.load(ctx, sourceURL)
		out.PageContent = p.body
	}
	for _, e := range valid {
		out.Results[e] = p.inspect(e)
	}
	v.record(ctx, emails, out.Results, p)
	return out
}

// Inspect applies the visibility rules to an already fetched body. It is
// pure and is what Verify and VerifyBatch run after their fetch.
func Inspect(html, email, sourceURL string, fetchTime time.Duration) domain.VerificationResult {
	email, ok := normalizeEmail(email)
	if !ok {
		return invalidEmail(sourceURL)
	}
	ms := fetchTime.Milliseconds()
	res := domain.VerificationResult{SourceURL: sourceURL, FetchTimeMs: &ms}

	if !inPage(html, email) {
		if obfuscatedInPage(html, email) {
			// Obfuscated spellings are deliberately published contact details.
			res.Verified = true
			res.Method = domain.MethodSourcePageVerified
			res.FoundInPage = true
			res.IsVisibleContent = true
			return res
		}
		res.Method = domain.MethodSourcePageNotFound
		return res
	}

	res.FoundInPage = true
	if !inVisibleContent(html, email) {
		res.Method = domain.MethodHiddenContent
		return res
	}

	res.Verified = true
	res.Method = domain.MethodSourcePageVerified
	res.IsVisibleContent = true
	return res
}

// errInvalidEmail is the error text of a result for an address that cannot
// appear on any page.
const errInvalidEmail = "Invalid email address"

// normalizeEmail trims and lower-cases email and reports whether it has the
// shape local@domain with no embedded whitespace.
func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, dom, ok := strings.Cut(email, "@")
	if !ok || local == "" || dom == "" || strings.ContainsAny(email, " \t\r\n") {
		return email, false
	}
	return email, true
}

// invalidEmail is the result for an unusable address. An invalid URL is
// still reported first.
func invalidEmail(sourceURL string) domain.VerificationResult {
	if !IsValidURL(sourceURL) {
		return invalidURLPage(sourceURL).inspect("")
	}
	return domain.VerificationResult{
		Method:    domain.MethodSourcePageNotFound,
		SourceURL: sourceURL,
		Error:     errInvalidEmail,
	}
}

// page is the shared outcome of one fetch.
type page struct {
	sourceURL string
	body      string
	elapsed   time.Duration
	fetched   bool
	failure   domain.VerificationMethod
	errText   string
}

func (p page) inspect(email string) domain.VerificationResult {
	if p.fetched {
		return Inspect(p.body, email, p.sourceURL, p.elapsed)
	}
	res := domain.VerificationResult{
		Method:    p.failure,
		SourceURL: p.sourceURL,
		Error:     p.errText,
	}
	if p.failure != domain.MethodInvalidURL {
		ms := p.elapsed.Milliseconds()
		res.FetchTimeMs = &ms
	}
	return res
}

func (v *Verifier) load(ctx context.Context, sourceURL string) page {
	if !IsValidURL(sourceURL) {
		return invalidURLPage(sourceURL)
	}

	start := time.Now()
	body, status, err := v.fetch(ctx, sourceURL)
	p := page{sourceURL: sourceURL, elapsed: time.Since(start)}

	switch {
	case errors.Is(err, errTimeout):
		p.failure = domain.MethodTimeout
		p.errText = err.Error()
		metrics.RecordPageFetch("timeout", p.elapsed)
	case err != nil:
		p.failure = domain.MethodFetchFailed
		p.errText = err.Error()
		metrics.RecordPageFetch("error", p.elapsed)
	case !acceptableStatus(status):
		p.failure = domain.MethodFetchFailed
		p.errText = fmt.Sprintf("HTTP %d", status)
		metrics.RecordPageFetch("bad_status", p.elapsed)
	default:
		p.fetched = true
		p.body = body
		metrics.RecordPageFetch("ok", p.elapsed)
	}

	if !p.fetched {
		log.Warn("source page fetch failed", "source_url", sourceURL, "method", p.failure, "error", p.errText, "fetch_ms", p.elapsed.Milliseconds())
	}
	return p
}

func invalidURLPage(sourceURL string) page {
	return page{sourceURL: sourceURL, failure: domain.MethodInvalidURL, errText: "Invalid URL format"}
}

var errTimeout = errors.New("source page fetch timed out")

func (v *Verifier) fetch(ctx context.Context, sourceURL string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", v.cfg.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", 0, classifyFetchError(ctx, err)
	}
	defer resp.Body.Close()

	if !acceptableStatus(resp.StatusCode) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", resp.StatusCode, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, v.cfg.MaxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, classifyFetchError(ctx, err)
	}
	return string(data), resp.StatusCode, nil
}

func classifyFetchError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errTimeout, err)
	}
	return fmt.Errorf("fetch: %w", err)
}

func acceptableStatus(code int) bool {
	return (code >= 200 && code < 300) || code == http.StatusNotModified
}

// IsValidURL reports whether rawURL is an absolute http or https URL with a host.
func IsValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (v *Verifier) record(ctx context.Context, emails []string, results map[string]domain.VerificationResult, p page) {
	anyVerified := false
	for _, e := range emails {
		r := results[e]
		metrics.RecordVerification(string(r.Method))
		if r.Verified {
			anyVerified = true
		}
		log.Info("verification outcome",
			"email", e,
			"source_url", r.SourceURL,
			"method", r.Method,
			"verified", r.Verified,
			"fetch_ms", p.elapsed.Milliseconds())
	}
	if anyVerified && v.evidence != nil {
		ev := Evidence{SourceURL: p.sourceURL, Body: p.body, FetchedAt: time.Now().UTC()}
		if err := v.evidence.Put(ctx, ev); err != nil {
			log.Warn("evidence archive failed", "source_url", p.sourceURL, "error", err)
		}
	}
}
