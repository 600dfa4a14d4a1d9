package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternTable holds the heuristic lists the classifier matches against.
// Domain lists are regular expressions matched against the email domain;
// every other list is a set of lower-case substrings.
type PatternTable struct {
	B2BDomains          []string `yaml:"b2b_domains"`
	B2CDomains          []string `yaml:"b2c_domains"`
	B2BRoles            []string `yaml:"b2b_roles"`
	B2CRoles            []string `yaml:"b2c_roles"`
	B2BOutlets          []string `yaml:"b2b_outlets"`
	SocialSources       []string `yaml:"social_sources"`
	ProfessionalSources []string `yaml:"professional_sources"`
	Weights             Weights  `yaml:"weights"`
}

// Weights is the scoring policy. The constants are not calibrated against
// data; they are configuration.
type Weights struct {
	EmailB2BDomain     float64 `yaml:"email_b2b_domain"`
	EmailB2CDomain     float64 `yaml:"email_b2c_domain"`
	RoleB2B            float64 `yaml:"role_b2b"`
	RoleB2C            float64 `yaml:"role_b2c"`
	OutletB2B          float64 `yaml:"outlet_b2b"`
	SourceSocial       float64 `yaml:"source_social"`
	SourceProfessional float64 `yaml:"source_professional"`
	NameArtist         float64 `yaml:"name_artist"`

	// UnknownBelow is the absolute total weight under which the result is Unknown.
	UnknownBelow float64 `yaml:"unknown_below"`
	// ConfidenceScale divides the absolute total weight; the result is capped at 1.
	ConfidenceScale float64 `yaml:"confidence_scale"`
}

// DefaultWeights returns the stock scoring policy.
func DefaultWeights() Weights {
	return Weights{
		EmailB2BDomain:     0.8,
		EmailB2CDomain:     -0.6,
		RoleB2B:            0.6,
		RoleB2C:            -0.7,
		OutletB2B:          0.7,
		SourceSocial:       -0.3,
		SourceProfessional: 0.4,
		NameArtist:         -0.4,
		UnknownBelow:       0.3,
		ConfidenceScale:    2,
	}
}

// DefaultPatternTable returns the built-in music-industry tables.
func DefaultPatternTable() PatternTable {
	return PatternTable{
		B2BDomains: []string{
			// radio
			`bbc\.(co\.uk|com)`,
			`radio[0-9]*\.`,
			`\.(radio|fm|am)\.`,
			`capitalfm`,
			`heartradiou?k`,
			`globalradio`,
			`absolute(radio)?`,
			`kisstfm`,
			// media
			`nme\.com`,
			`pitchfork`,
			`rollingstone`,
			`billboard`,
			`stereogum`,
			`consequence`,
			`spin\.com`,
			`diymagazine`,
			`thequietus`,
			`loudandquiet`,
			`crackmagazine`,
			`clashmusic`,
			// labels
			`records?\.`,
			`music\.(co\.uk|com)`,
			`entertainment\.`,
			`publishing\.`,
			// agencies and PR
			`pr\.com`,
			`publicity`,
			`agency`,
			`management`,
			// platforms
			`spotify`,
			`apple(music)?`,
			`amazon(music)?`,
			`deezer`,
			`tidal`,
			`soundcloud`,
			`bandcamp`,
		},
		B2CDomains: []string{
			`gmail\.com`,
			`yahoo\.(com|co\.uk)`,
			`hotmail\.(com|co\.uk)`,
			`outlook\.(com|co\.uk)`,
			`icloud\.com`,
			`live\.(com|co\.uk)`,
			`aol\.com`,
			`protonmail\.com`,
			`me\.com`,
			`btinternet\.com`,
			`sky\.com`,
			`virgin\.net`,
			`talktalk\.net`,
		},
		B2BRoles: []string{
			"producer", "presenter", "host", "dj", "editor", "journalist",
			"writer", "critic", "reviewer", "a&r", "scout", "manager", "agent",
			"publicist", "pr ", "marketing", "promoter", "booker", "curator",
			"programmer", "director", "head of", "chief", "lead", "senior",
			"coordinator", "playlist",
		},
		B2CRoles: []string{
			"artist", "musician", "singer", "songwriter", "rapper", "vocalist",
			"band member", "performer", "composer", "instrumentalist", "solo",
			"independent", "unsigned",
		},
		B2BOutlets: []string{
			"radio", "station", "fm", "am", "bbc", "magazine", "publication",
			"blog", "website", "label", "records", "agency", "pr firm",
			"publicity", "playlist", "podcast", "show", "programme", "channel",
			"network",
		},
		SocialSources:       []string{"instagram", "twitter", "tiktok", "facebook"},
		ProfessionalSources: []string{"linkedin", "/about", "/contact", "/team"},
		Weights:             DefaultWeights(),
	}
}

// LoadPatternTable reads a YAML pattern file. Lists left empty in the file
// keep their defaults, as does the weights block when omitted.
func LoadPatternTable(path string) (PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternTable{}, fmt.Errorf("read pattern table: %w", err)
	}

	var t PatternTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return PatternTable{}, fmt.Errorf("parse pattern table: %w", err)
	}
	return t.withDefaults(), nil
}

func (t PatternTable) withDefaults() PatternTable {
	d := DefaultPatternTable()
	if len(t.B2BDomains) == 0 {
		t.B2BDomains = d.B2BDomains
	}
	if len(t.B2CDomains) == 0 {
		t.B2CDomains = d.B2CDomains
	}
	if len(t.B2BRoles) == 0 {
		t.B2BRoles = d.B2BRoles
	}
	if len(t.B2CRoles) == 0 {
		t.B2CRoles = d.B2CRoles
	}
	if len(t.B2BOutlets) == 0 {
		t.B2BOutlets = d.B2BOutlets
	}
	if len(t.SocialSources) == 0 {
		t.SocialSources = d.SocialSources
	}
	if len(t.ProfessionalSources) == 0 {
		t.ProfessionalSources = d.ProfessionalSources
	}
	if t.Weights == (Weights{}) {
		t.Weights = d.Weights
	}
	if t.Weights.ConfidenceScale <= 0 {
		t.Weights.ConfidenceScale = d.Weights.ConfidenceScale
	}
	return t
}
