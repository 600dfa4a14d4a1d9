package domain

// VerificationMethod records how a verification outcome was reached. It is
// the audit trail for provenance decisions: "not verified" has several causes.
type VerificationMethod string

const (
	MethodSourcePageVerified VerificationMethod = "source_page_verified"
	MethodSourcePageNotFound VerificationMethod = "source_page_not_found"
	MethodHiddenContent      VerificationMethod = "hidden_content"
	MethodFetchFailed        VerificationMethod = "fetch_failed"
	MethodTimeout            VerificationMethod = "timeout"
	MethodInvalidURL         VerificationMethod = "invalid_url"
)

// VerificationResult is produced once per (email, source URL) pair.
type VerificationResult struct {
	Verified         bool               `json:"verified"`
	Method           VerificationMethod `json:"method"`
	FoundInPage      bool               `json:"found_in_page"`
	IsVisibleContent bool               `json:"is_visible_content"`
	SourceURL        string             `json:"source_url"`
	FetchTimeMs      *int64             `json:"fetch_time_ms,omitempty"`
	Error            string             `json:"error,omitempty"`
}
