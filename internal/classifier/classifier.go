// Package classifier decides whether a discovered contact is a business
// contact (B2B, processable under legitimate interest) or an individual
// consumer (B2C, requires explicit consent).
//
// Scoring is additive: five independent signal groups each contribute a
// signed weight, the first match inside a group wins, and the sign of the
// total picks the type. Confidence is the absolute total over the
// configured scale, capped at 1. The lists themselves live in a
// PatternTable so they can change without touching the scoring.
package classifier

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/totalaud/contact-safety/internal/domain"
)

// Signal names as they appear in ClassificationResult.Signals.
const (
	SignalEmailB2BDomain     = "email_b2b_domain"
	SignalEmailB2CDomain     = "email_b2c_domain"
	SignalRoleB2B            = "role_b2b_keyword"
	SignalRoleB2C            = "role_b2c_keyword"
	SignalOutletB2B          = "outlet_b2b_keyword"
	SignalSourceSocial       = "source_social_media"
	SignalSourceProfessional = "source_professional"
	SignalNameArtist         = "name_artist_pattern"
)

// Classifier is safe for concurrent use; it holds only compiled, read-only tables.
type Classifier struct {
	b2bDomains   []*regexp.Regexp
	b2cDomains   []*regexp.Regexp
	b2bRoles     []string
	b2cRoles     []string
	b2bOutlets   []string
	social       []string
	professional []string
	w            Weights
}

var (
	startsWithThe   = regexp.MustCompile(`(?i)^the\s`)
	defaultInstance = MustNew(DefaultPatternTable())
)

// New compiles a pattern table into a Classifier.
func New(t PatternTable) (*Classifier, error) {
	t = t.withDefaults()
	b2b, err := compileAll(t.B2BDomains)
	if err != nil {
		return nil, fmt.Errorf("b2b domains: %w", err)
	}
	b2c, err := compileAll(t.B2CDomains)
	if err != nil {
		return nil, fmt.Errorf("b2c domains: %w", err)
	}
	return &Classifier{
		b2bDomains:   b2b,
		b2cDomains:   b2c,
		b2bRoles:     lowerAll(t.B2BRoles),
		b2cRoles:     lowerAll(t.B2CRoles),
		b2bOutlets:   lowerAll(t.B2BOutlets),
		social:       lowerAll(t.SocialSources),
		professional: lowerAll(t.ProfessionalSources),
		w:            t.Weights,
	}, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(t PatternTable) *Classifier {
	c, err := New(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the classifier built from DefaultPatternTable.
func Default() *Classifier { return defaultInstance }

// Classify runs the default classifier.
func Classify(c domain.Contact) domain.ClassificationResult {
	return defaultInstance.Classify(c)
}

// Classify scores a contact. It never fails: absent fields skip their
// signal group and too little evidence yields ContactUnknown.
func (c *Classifier) Classify(contact domain.Contact) domain.ClassificationResult {
	var signals []domain.ClassificationSignal
	add := func(name, value string, weight float64) {
		signals = append(signals, domain.ClassificationSignal{Name: name, Value: value, Weight: weight})
	}

	// 1. email domain
	if contact.Email != "" {
		d := emailDomain(contact.Email)
		if p := firstRegexp(c.b2bDomains, d); p != nil {
			add(SignalEmailB2BDomain, d, c.w.EmailB2BDomain)
		}
		if p := firstRegexp(c.b2cDomains, d); p != nil {
			add(SignalEmailB2CDomain, d, c.w.EmailB2CDomain)
		}
	}

	// 2. role, both directions independently
	if contact.Role != "" {
		role := strings.ToLower(contact.Role)
		if kw, ok := firstSubstring(c.b2bRoles, role); ok {
			add(SignalRoleB2B, kw, c.w.RoleB2B)
		}
		if kw, ok := firstSubstring(c.b2cRoles, role); ok {
			add(SignalRoleB2C, kw, c.w.RoleB2C)
		}
	}

	// 3. outlet
	if contact.OutletName != "" {
		if kw, ok := firstSubstring(c.b2bOutlets, strings.ToLower(contact.OutletName)); ok {
			add(SignalOutletB2B, kw, c.w.OutletB2B)
		}
	}

	// 4. where the contact was found
	if contact.SourceDomain != "" {
		src := strings.ToLower(contact.SourceDomain)
		if _, ok := firstSubstring(c.social, src); ok {
			add(SignalSourceSocial, contact.SourceDomain, c.w.SourceSocial)
		}
		if _, ok := firstSubstring(c.professional, src); ok {
			add(SignalSourceProfessional, contact.SourceDomain, c.w.SourceProfessional)
		}
	}

	// 5. name shape
	if looksLikeArtistName(contact.Name) {
		add(SignalNameArtist, contact.Name, c.w.NameArtist)
	}

	return c.decide(signals)
}

func (c *Classifier) decide(signals []domain.ClassificationSignal) domain.ClassificationResult {
	var total float64
	for _, s := range signals {
		total += s.Weight
	}
	// Sums like 0.7-0.4 must land on 0.3, not 0.29999999999999993.
	total = math.Round(total*1e6) / 1e6

	abs := math.Abs(total)
	res := domain.ClassificationResult{
		Confidence: math.Min(1, abs/c.w.ConfidenceScale),
		Signals:    signals,
	}
	if res.Signals == nil {
		res.Signals = []domain.ClassificationSignal{}
	}

	switch {
	case abs < c.w.UnknownBelow || total == 0:
		res.Type = domain.ContactUnknown
		res.Reasoning = "Insufficient signals to determine contact type"
	case total > 0:
		res.Type = domain.ContactB2B
		res.Reasoning = fmt.Sprintf("Classified as B2B based on %d positive signals", countSign(signals, 1))
	default:
		res.Type = domain.ContactB2C
		res.Reasoning = fmt.Sprintf("Classified as B2C based on %d consumer indicators", countSign(signals, -1))
	}
	return res
}

// looksLikeArtistName flags band/artist style names: ALL CAPS, "X & Y",
// "X the Y", "The X", or a leading digit.
func looksLikeArtistName(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	return isAllCaps(name) ||
		strings.Contains(lower, "&") ||
		strings.Contains(lower, " the ") ||
		startsWithThe.MatchString(name) ||
		unicode.IsDigit([]rune(name)[0])
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func countSign(signals []domain.ClassificationSignal, sign float64) int {
	n := 0
	for _, s := range signals {
		if s.Weight*sign > 0 {
			n++
		}
	}
	return n
}

func emailDomain(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

func firstRegexp(patterns []*regexp.Regexp, s string) *regexp.Regexp {
	if s == "" {
		return nil
	}
	for _, p := range patterns {
		if p.MatchString(s) {
			return p
		}
	}
	return nil
}

func firstSubstring(keywords []string, s string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return kw, true
		}
	}
	return "", false
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
