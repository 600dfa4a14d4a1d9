package classifier

import (
	"regexp"
	"strings"
)

// OutletType is a coarse category for the outlet a contact works for.
type OutletType string

const (
	OutletRadio    OutletType = "radio"
	OutletPlaylist OutletType = "playlist"
	OutletPodcast  OutletType = "podcast"
	OutletPress    OutletType = "press"
	OutletLabel    OutletType = "label"
	OutletPR       OutletType = "pr"
)

var outletRules = []struct {
	re   *regexp.Regexp
	kind OutletType
}{
	{regexp.MustCompile(`(?i)radio|fm\d|am\d|bbc\s*\d`), OutletRadio},
	{regexp.MustCompile(`(?i)playlist|spotify|apple\s*music`), OutletPlaylist},
	{regexp.MustCompile(`(?i)podcast|show|episode`), OutletPodcast},
	{regexp.MustCompile(`(?i)magazine|publication|review|blog|press`), OutletPress},
	{regexp.MustCompile(`(?i)label|records|music\s*group`), OutletLabel},
	{regexp.MustCompile(`(?i)pr\s|publicist|agency`), OutletPR},
}

// DetermineOutletType guesses the outlet category from its name and the
// domain it was found on. The second return is false when nothing matches.
func DetermineOutletType(outletName, sourceDomain string) (OutletType, bool) {
	combined := strings.ToLower(outletName + " " + sourceDomain)
	for _, r := range outletRules {
		if r.re.MatchString(combined) {
			return r.kind, true
		}
	}
	return "", false
}

// IsLikelyB2CDomain reports whether the email is on a consumer webmail domain.
func (c *Classifier) IsLikelyB2CDomain(email string) bool {
	return firstRegexp(c.b2cDomains, emailDomain(email)) != nil
}

// IsLikelyB2BDomain reports whether the email is on a known business domain,
// or on any non-consumer domain at all.
func (c *Classifier) IsLikelyB2BDomain(email string) bool {
	d := emailDomain(email)
	if firstRegexp(c.b2bDomains, d) != nil {
		return true
	}
	return d != "" && firstRegexp(c.b2cDomains, d) == nil
}

// ConfidenceLabel buckets a confidence value for display.
func ConfidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.7:
		return "High"
	case confidence >= 0.4:
		return "Medium"
	default:
		return "Low"
	}
}
