// Package hashcrypto provides the one-way hashes used for suppression
// matching and the authenticated encryption used for the optional
// recoverable backup of suppressed values.
package hashcrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize lower-cases and trims a value before hashing. Every lookup and
// every insert goes through the same normalisation, otherwise "A@x.com" and
// "a@x.com " would be two different people.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Hash returns the hex SHA-256 digest of value exactly as given.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// HashEmail hashes a normalised email address.
func HashEmail(email string) string {
	return Hash(Normalize(email))
}

// HashDomain hashes a normalised domain.
func HashDomain(domain string) string {
	return Hash(Normalize(domain))
}

// HashIP hashes a raw IP address. IPs are trimmed but not lower-cased so
// IPv6 textual forms are hashed as the caller supplied them.
func HashIP(ip string) string {
	return Hash(strings.TrimSpace(ip))
}

// DomainOf returns the normalised domain part of an email, or "" when the
// address has no "@".
func DomainOf(email string) string {
	email = Normalize(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
