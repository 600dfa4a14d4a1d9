package verifier

import (
	"regexp"
	"strings"
)

// Markup that a human reader never sees. An address that only exists here
// was not published on the page.
var hiddenMarkup = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
	regexp.MustCompile(`(?s)<!--.*?-->`),
	regexp.MustCompile(`(?i)<input[^>]*type=["']hidden["'][^>]*>`),
	regexp.MustCompile(`(?i)data-[a-z-]+="[^"]*"`),
}

// VisibleText strips scripts, styles, comments, hidden inputs and data-*
// attributes from html.
func VisibleText(html string) string {
	for _, re := range hiddenMarkup {
		html = re.ReplaceAllString(html, "")
	}
	return html
}

// inPage expects email already normalised.
func inPage(html, email string) bool {
	return strings.Contains(strings.ToLower(html), email)
}

func inVisibleContent(html, email string) bool {
	return inPage(VisibleText(html), email)
}

// obfuscationPatterns builds the anti-scraping spellings of one specific
// address: every "." in its domain and its "@" are substituted, nothing is
// wildcarded. email must already be normalised.
func obfuscationPatterns(email string) []*regexp.Regexp {
	local, dom, ok := strings.Cut(email, "@")
	if !ok || local == "" || dom == "" {
		return nil
	}

	labels := strings.Split(dom, ".")
	for i, l := range labels {
		labels[i] = regexp.QuoteMeta(l)
	}
	q := regexp.QuoteMeta(local)

	return []*regexp.Regexp{
		// user [at] domain [dot] com
		regexp.MustCompile(`(?i)` + q + `\s*\[at\]\s*` + strings.Join(labels, `\s*\[dot\]\s*`)),
		// user (at) domain (dot) com
		regexp.MustCompile(`(?i)` + q + `\s*\(at\)\s*` + strings.Join(labels, `\s*\(dot\)\s*`)),
		// user AT domain DOT com
		regexp.MustCompile(`(?i)` + q + `\s+AT\s+` + strings.Join(labels, `\s+DOT\s+`)),
		// mailto: link
		regexp.MustCompile(`(?i)mailto:` + regexp.QuoteMeta(email)),
	}
}

func obfuscatedInPage(html, email string) bool {
	for _, re := range obfuscationPatterns(email) {
		if re.MatchString(html) {
			return true
		}
	}
	return false
}
