package verifier

import (
	"net/url"
	"regexp"
	"strings"
)

var contactPathHints = []string{
	"/contact", "/about", "/team", "/people", "/staff", "/contributors",
	"/writers", "/presenters", "/hosts", "/djs",
}

// IsLikelyContactPage reports whether the URL path looks like a page that
// lists people or contact details.
func IsLikelyContactPage(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range contactPathHints {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ExtractDomain returns the host of rawURL without a leading "www.", or ""
// if the URL does not parse.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	scriptStyle  = []*regexp.Regexp{hiddenMarkup[0], hiddenMarkup[1]}
)

var extractDenySubstrings = []string{"example.com", "placeholder", "noreply", "no-reply", "donotreply"}
var extractDenySuffixes = []string{".png", ".jpg", ".gif"}

// ExtractEmails returns the distinct addresses found outside script and
// style blocks, in order of first appearance, skipping placeholders,
// no-reply addresses and image file names that look like addresses.
func ExtractEmails(html string) []string {
	for _, re := range scriptStyle {
		html = re.ReplaceAllString(html, "")
	}

	seen := make(map[string]bool)
	var out []string
	for _, m := range emailPattern.FindAllString(html, -1) {
		if seen[m] || denied(strings.ToLower(m)) {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func denied(lower string) bool {
	for _, s := range extractDenySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	for _, s := range extractDenySuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
