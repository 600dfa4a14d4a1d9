package suppression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/totalaud/contact-safety/internal/domain"
	"github.com/totalaud/contact-safety/internal/hashcrypto"
	"github.com/totalaud/contact-safety/internal/metrics"
	"github.com/totalaud/contact-safety/internal/pkg/logger"
)

var log = logger.Scope("suppression")

const (
	checkPolicy = domain.FailOpen
	writePolicy = domain.FailClosed
)

// Options configures a Service.
type Options struct {
	// Cache holds check results. Nil selects a MemoryCache with DefaultCacheTTL.
	Cache Cache

	// EncryptionKey is a 64-character hex AES-256 key. Empty or invalid
	// keys leave the service in hash-only mode.
	EncryptionKey string

	Now func() time.Time
}

// Service answers "may we contact this address?" and records opt-outs.
type Service struct {
	repo  Repository
	cache Cache
	stale staleKeys
	key   *hashcrypto.Key
	now   func() time.Time
}

// NewService creates a Service over repo. The returned service owns its cache.
func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:  repo,
		cache: opts.Cache,
		now:   opts.Now,
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(DefaultCacheTTL)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.EncryptionKey != "" {
		k, err := hashcrypto.ParseKey(opts.EncryptionKey)
		if err != nil {
			log.Warn("encryption key rejected, storing hashes only", "error", err)
		} else {
			s.key = &k
		}
	}
	return s
}

// Encrypting reports whether new entries get an encrypted copy.
func (s *Service) Encrypting() bool { return s.key != nil }

// Check reports whether email is on the global suppression list. Store
// errors yield a not-suppressed result that is never cached.
func (s *Service) Check(ctx context.Context, email, userID string) domain.SuppressionCheck {
	norm := hashcrypto.Normalize(email)
	if norm == "" {
		return domain.SuppressionCheck{}
	}

	key := CacheKey(norm, userID)
	if cached, ok := s.cached(ctx, key); ok {
		metrics.RecordCacheLookup(true)
		return cached
	}
	metrics.RecordCacheLookup(false)

	target := newTarget(norm)
	rows, err := s.repo.Lookup(ctx, domain.ScopeGlobal, []string{target.emailHash}, target.domainHashes())
	if err != nil {
		s.storeFailed("check", err, 1)
		return domain.SuppressionCheck{}
	}

	result := target.match(rows)
	s.store(ctx, key, result)
	recordCheck(result)
	return result
}

// CheckBatch checks many addresses with at most one store query for all of
// them. The result is keyed by the email strings as given.
func (s *Service) CheckBatch(ctx context.Context, emails []string, userID string) map[string]domain.SuppressionCheck {
	out := make(map[string]domain.SuppressionCheck, len(emails))

	pending := make(map[string]target)
	var emailHashes, domainHashes []string
	seenDomain := make(map[string]bool)

	for _, email := range emails {
		if _, done := out[email]; done {
			continue
		}
		if _, ok := pending[email]; ok {
			continue
		}
		norm := hashcrypto.Normalize(email)
		if norm == "" {
			out[email] = domain.SuppressionCheck{}
			continue
		}
		if cached, ok := s.cached(ctx, CacheKey(norm, userID)); ok {
			metrics.RecordCacheLookup(true)
			out[email] = cached
			continue
		}
		metrics.RecordCacheLookup(false)

		t := newTarget(norm)
		pending[email] = t
		emailHashes = append(emailHashes, t.emailHash)
		if t.domainHash != "" && !seenDomain[t.domainHash] {
			seenDomain[t.domainHash] = true
			domainHashes = append(domainHashes, t.domainHash)
		}
	}

	if len(pending) == 0 {
		return out
	}

	rows, err := s.repo.Lookup(ctx, domain.ScopeGlobal, dedupe(emailHashes), domainHashes)
	if err != nil {
		s.storeFailed("check_batch", err, len(pending))
		for email := range pending {
			out[email] = domain.SuppressionCheck{}
		}
		return out
	}

	for email, t := range pending {
		result := t.match(rows)
		s.store(ctx, CacheKey(t.norm, userID), result)
		recordCheck(result)
		out[email] = result
	}
	return out
}

// NewEntry is the caller's request to suppress an address or a domain.
// Exactly one of Email or Domain is normally set; Email wins when both are.
type NewEntry struct {
	Email  string                   `json:"email,omitempty"`
	Domain string                   `json:"domain,omitempty"`
	Scope  domain.SuppressionScope  `json:"scope,omitempty"`
	Reason domain.SuppressionReason `json:"reason"`
	Source string                   `json:"source,omitempty"`
	Notes  string                   `json:"notes,omitempty"`
}

// Add records a suppression entry. A duplicate of an existing entry counts
// as success. Any other failure returns false and is logged.
func (s *Service) Add(ctx context.Context, req NewEntry, userID string) bool {
	entry, norm, err := s.buildEntry(req, userID)
	if err != nil {
		log.Warn("suppression add rejected", "error", err)
		metrics.RecordSuppressionWrite("rejected")
		return false
	}

	err = s.repo.Insert(ctx, entry)
	switch {
	case err == nil:
		metrics.RecordSuppressionWrite("inserted")
	case errors.Is(err, ErrDuplicate):
		metrics.RecordSuppressionWrite("duplicate")
	default:
		log.Error("suppression add failed", "policy", string(writePolicy), "email_hash", logger.RedactHash(entry.EmailHash), "error", err)
		metrics.RecordSuppressionWrite("failed")
		return false
	}

	if entry.DomainHash != "" {
		// Any entry carrying a domain hash blocks every address at that
		// domain, so every cached address there is now stale.
		s.invalidateAll(ctx)
	} else {
		s.invalidate(ctx, CacheKey(norm, ""), CacheKey(norm, userID))
	}

	log.Info("suppression added", "email_hash", logger.RedactHash(entry.EmailHash), "reason", string(entry.Reason), "scope", string(entry.Scope), "source", entry.Source)
	return true
}

func (s *Service) buildEntry(req NewEntry, userID string) (*domain.SuppressionEntry, string, error) {
	if req.Reason == "" {
		req.Reason = domain.ReasonManual
	}
	if !req.Reason.Valid() {
		return nil, "", fmt.Errorf("unknown reason %q", req.Reason)
	}
	if req.Scope == "" {
		req.Scope = domain.ScopeGlobal
	}
	if req.Scope != domain.ScopeGlobal && req.Scope != domain.ScopeUser {
		return nil, "", fmt.Errorf("unknown scope %q", req.Scope)
	}
	if req.Scope == domain.ScopeUser && userID == "" {
		return nil, "", errors.New("user scope requires a user id")
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	entry := &domain.SuppressionEntry{
		ID:        uuid.New().String(),
		Scope:     req.Scope,
		Reason:    req.Reason,
		Source:    req.Source,
		AddedBy:   userID,
		Notes:     req.Notes,
		CreatedAt: s.now().UTC(),
	}

	var norm, domainName string
	if email := hashcrypto.Normalize(req.Email); email != "" {
		norm = email
		domainName = hashcrypto.DomainOf(email)
		entry.EmailHash = hashcrypto.Hash(norm)
		if domainName != "" {
			entry.DomainHash = hashcrypto.Hash(domainName)
		}
	} else if d := hashcrypto.Normalize(req.Domain); d != "" {
		domainName = d
		entry.EmailHash = hashcrypto.Hash(d)
		entry.DomainHash = entry.EmailHash
	} else {
		return nil, "", ErrEmptyEmail
	}

	if s.key != nil {
		s.encryptInto(entry, norm, domainName)
	}
	return entry, norm, nil
}

// encryptInto adds the recoverable copy. Encryption failure leaves the
// entry hash-only, which still suppresses correctly.
func (s *Service) encryptInto(e *domain.SuppressionEntry, email, domainName string) {
	if email != "" {
		ct, err := hashcrypto.Encrypt(email, *s.key)
		if err != nil {
			log.Warn("email encryption failed, storing hash only", "error", err)
			return
		}
		e.EmailEncrypted = ct
	}
	if domainName != "" {
		ct, err := hashcrypto.Encrypt(domainName, *s.key)
		if err != nil {
			log.Warn("domain encryption failed, storing hash only", "error", err)
			return
		}
		e.DomainEncrypted = ct
	}
}

// ClearCache drops every cached check result.
func (s *Service) ClearCache(ctx context.Context) {
	if s.invalidateAll(ctx) {
		log.Info("suppression cache cleared")
	}
}

// Erase hard-deletes every entry for email in every scope. It is reserved
// for explicit erasure requests and returns the number of rows removed.
func (s *Service) Erase(ctx context.Context, email string) (int64, error) {
	norm := hashcrypto.Normalize(email)
	if norm == "" {
		return 0, ErrEmptyEmail
	}
	hash := hashcrypto.Hash(norm)
	n, err := s.repo.Delete(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("erase suppression: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	// User-scoped cache keys for this address are unknown here.
	s.invalidateAll(ctx)
	log.Info("suppression erased", "email_hash", logger.RedactHash(hash), "rows", n)
	return n, nil
}

// Disclosure is one stored entry together with the values recovered from
// its encrypted columns.
type Disclosure struct {
	Entry  domain.SuppressionEntry `json:"entry"`
	Email  string                  `json:"email,omitempty"`
	Domain string                  `json:"domain,omitempty"`
}

// Recover returns every entry held for email, with the encrypted copies
// decrypted, to answer a data subject access request. Entries stored
// without ciphertext are returned with empty recovered fields.
func (s *Service) Recover(ctx context.Context, email string) ([]Disclosure, error) {
	if s.key == nil {
		return nil, ErrNoEncryptionKey
	}
	norm := hashcrypto.Normalize(email)
	if norm == "" {
		return nil, ErrEmptyEmail
	}
	rows, err := s.repo.FindByEmailHash(ctx, hashcrypto.Hash(norm))
	if err != nil {
		return nil, fmt.Errorf("recover suppression: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	out := make([]Disclosure, 0, len(rows))
	for _, row := range rows {
		d := Disclosure{Entry: row}
		if row.EmailEncrypted != "" {
			if d.Email, err = hashcrypto.Decrypt(row.EmailEncrypted, *s.key); err != nil {
				return nil, fmt.Errorf("decrypt entry %s email: %w", row.ID, err)
			}
		}
		if row.DomainEncrypted != "" {
			if d.Domain, err = hashcrypto.Decrypt(row.DomainEncrypted, *s.key); err != nil {
				return nil, fmt.Errorf("decrypt entry %s domain: %w", row.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// cached reads key unless an earlier invalidation of it failed.
func (s *Service) cached(ctx context.Context, key string) (domain.SuppressionCheck, bool) {
	if blocked, _ := s.stale.blocked(key); blocked {
		return domain.SuppressionCheck{}, false
	}
	return s.cache.Get(ctx, key)
}

// store caches a fresh result. Writing over a stale key repairs it; after a
// failed Clear the cache is cleared again before anything is trusted.
func (s *Service) store(ctx context.Context, key string, check domain.SuppressionCheck) {
	if _, all := s.stale.blocked(key); all {
		if err := s.cache.Clear(ctx); err != nil {
			return
		}
		s.stale.reset()
		log.Info("suppression cache recovered")
	}
	if err := s.cache.Set(ctx, key, check); err != nil {
		log.Warn("suppression cache write failed", "error", err)
		return
	}
	s.stale.repaired(key)
}

// invalidate drops keys. A failed delete marks them stale so they are not
// served until overwritten.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.stale.mark(keys...)
		log.Warn("suppression cache invalidation failed, bypassing cache for address", "error", err)
	}
}

// invalidateAll clears the cache and reports whether it succeeded. On
// failure no cached result is served until a later clear succeeds.
func (s *Service) invalidateAll(ctx context.Context) bool {
	if err := s.cache.Clear(ctx); err != nil {
		s.stale.markAll()
		log.Warn("suppression cache clear failed, bypassing cache", "error", err)
		return false
	}
	s.stale.reset()
	return true
}

func (s *Service) storeFailed(op string, err error, n int) {
	log.Warn("suppression store unavailable, allowing contact",
		"op", op,
		"policy", string(checkPolicy),
		"emails", n,
		"error", err,
	)
	for i := 0; i < n; i++ {
		metrics.RecordSuppressionCheck("fail_open")
	}
}

func recordCheck(c domain.SuppressionCheck) {
	if c.IsSuppressed {
		metrics.RecordSuppressionCheck("suppressed")
		return
	}
	metrics.RecordSuppressionCheck("clear")
}

// target is one normalised address prepared for matching.
type target struct {
	norm       string
	emailHash  string
	domainHash string
}

func newTarget(norm string) target {
	t := target{norm: norm, emailHash: hashcrypto.Hash(norm)}
	if d := hashcrypto.DomainOf(norm); d != "" {
		t.domainHash = hashcrypto.Hash(d)
	}
	return t
}

func (t target) domainHashes() []string {
	if t.domainHash == "" {
		return nil
	}
	return []string{t.domainHash}
}

// match returns the earliest row carrying either this address's hash or its
// domain's hash.
func (t target) match(rows []domain.SuppressionEntry) domain.SuppressionCheck {
	var hits []domain.SuppressionEntry
	for _, row := range rows {
		if row.EmailHash == t.emailHash || (t.domainHash != "" && row.DomainHash == t.domainHash) {
			hits = append(hits, row)
		}
	}
	if len(hits) == 0 {
		return domain.SuppressionCheck{}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt.Before(hits[j].CreatedAt) })
	first := hits[0]
	at := first.CreatedAt
	return domain.SuppressionCheck{
		IsSuppressed: true,
		Reason:       first.Reason,
		Scope:        first.Scope,
		SuppressedAt: &at,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
