package domain

import "time"

// SuppressionScope says who a suppression entry applies to.
type SuppressionScope string

const (
	ScopeGlobal SuppressionScope = "global"
	ScopeUser   SuppressionScope = "user"
)

// SuppressionReason enumerates why an address was put on the do-not-contact list.
type SuppressionReason string

const (
	ReasonUnsubscribe   SuppressionReason = "unsubscribe"
	ReasonOptOut        SuppressionReason = "opt_out"
	ReasonComplaint     SuppressionReason = "spam_complaint"
	ReasonHardBounce    SuppressionReason = "hard_bounce"
	ReasonGDPRErasure   SuppressionReason = "gdpr_erasure"
	ReasonLegalRequest  SuppressionReason = "legal_request"
	ReasonDomainBlocked SuppressionReason = "domain_blocked"
	ReasonManual        SuppressionReason = "manual"
)

var validReasons = map[SuppressionReason]bool{
	ReasonUnsubscribe:   true,
	ReasonOptOut:        true,
	ReasonComplaint:     true,
	ReasonHardBounce:    true,
	ReasonGDPRErasure:   true,
	ReasonLegalRequest:  true,
	ReasonDomainBlocked: true,
	ReasonManual:        true,
}

// Valid reports whether r is a known reason.
func (r SuppressionReason) Valid() bool { return validReasons[r] }

// SuppressionEntry is one persisted row of the suppression list. The hashes
// are always sufficient for matching; the encrypted fields only exist so a
// data subject access request can recover the original value.
type SuppressionEntry struct {
	ID              string            `json:"id" db:"id"`
	EmailHash       string            `json:"email_hash" db:"email_hash"`
	DomainHash      string            `json:"domain_hash" db:"domain_hash"`
	EmailEncrypted  string            `json:"email_encrypted,omitempty" db:"email_encrypted"`
	DomainEncrypted string            `json:"domain_encrypted,omitempty" db:"domain_encrypted"`
	Scope           SuppressionScope  `json:"scope" db:"scope"`
	Reason          SuppressionReason `json:"reason" db:"reason"`
	Source          string            `json:"source" db:"source"`
	AddedBy         string            `json:"added_by,omitempty" db:"added_by"`
	Notes           string            `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// SuppressionCheck is the derived, cacheable answer to "may we contact this address?".
type SuppressionCheck struct {
	IsSuppressed bool              `json:"is_suppressed"`
	Reason       SuppressionReason `json:"reason,omitempty"`
	Scope        SuppressionScope  `json:"scope,omitempty"`
	SuppressedAt *time.Time        `json:"suppressed_at,omitempty"`
}
