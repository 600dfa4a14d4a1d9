package domain

// ContactType is the GDPR processing basis a discovered contact falls under.
type ContactType string

const (
	// ContactB2B is a business contact, processable under legitimate interest.
	ContactB2B ContactType = "b2b"
	// ContactB2C is an individual consumer and requires explicit consent.
	ContactB2C     ContactType = "b2c"
	ContactUnknown ContactType = "unknown"
)

// Contact is a discovered "this person may be reachable at X" claim.
// Only Name is required; every other field is optional.
type Contact struct {
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	OutletName   string `json:"outlet_name,omitempty"`
	SourceDomain string `json:"source_domain,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
}

// ClassificationSignal is a single weighted piece of evidence. Positive
// weights point to B2B, negative weights to B2C.
type ClassificationSignal struct {
	Name   string  `json:"name"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// ClassificationResult is derived on demand and never authoritative state.
type ClassificationResult struct {
	Type       ContactType            `json:"type"`
	Confidence float64                `json:"confidence"`
	Signals    []ClassificationSignal `json:"signals"`
	Reasoning  string                 `json:"reasoning"`
}

// RequiresConsent reports whether outreach needs explicit consent. Unknown
// contacts are treated like consumers.
func (r ClassificationResult) RequiresConsent() bool {
	return r.Type != ContactB2B
}
