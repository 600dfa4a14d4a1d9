package domain

// FailurePolicy names what an external-call wrapper does when the
// dependency behind it is unavailable. The two policies are deliberately
// different per call site; do not align one with the other.
type FailurePolicy string

const (
	// FailOpen treats an infrastructure error as "allow". Suppression
	// checks use it so an unreachable list never blocks all outreach.
	FailOpen FailurePolicy = "fail_open"

	// FailClosed treats an infrastructure error as "deny". Source page
	// verification and suppression writes use it: unverifiable data is
	// never trusted, and a failed opt-out is reported to the caller.
	FailClosed FailurePolicy = "fail_closed"
)
