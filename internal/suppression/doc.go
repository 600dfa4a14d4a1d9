// Package suppression implements the do-not-contact list consulted before
// any outreach to a discovered contact.
//
// Addresses are stored as one-way SHA-256 hashes of the normalised email
// and of its domain, so matching never needs the plaintext. When an
// encryption key is configured, an AES-256-GCM copy of the values is kept
// beside the hashes so a data subject access request can recover them.
//
// Reads go through a TTL cache owned by the Service. Checks fail open
// (a store error means "not suppressed"), writes fail closed (a store
// error is reported as false so the caller can retry or alert).
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package suppression
