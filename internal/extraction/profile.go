package extraction

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

const referenceDateLayout = "2006-01-02"

// Profile is the domain guidance injected into the extraction prompt.
type Profile struct {
	Name           string   `yaml:"name"`
	ReferenceDate  string   `yaml:"reference_date"`
	SpecialtyTerms []string `yaml:"specialty_terms"`
	Guidance       []string `yaml:"guidance"`
}

// DefaultProfile returns the embedded general-practice profile.
func DefaultProfile() Profile {
	p, err := parseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("extraction: embedded profile is invalid: %v", err))
	}
	return p
}

// LoadProfile reads a YAML profile from path. An empty path yields the default.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("extraction: read profile: %w", err)
	}
	p, err := parseProfile(data)
	if err != nil {
		return Profile{}, fmt.Errorf("extraction: parse profile %s: %w", path, err)
	}
	return p, nil
}

func parseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	if len(p.Guidance) == 0 {
		return Profile{}, fmt.Errorf("profile has no guidance lines")
	}
	if p.ReferenceDate != "" {
		if _, err := time.Parse(referenceDateLayout, p.ReferenceDate); err != nil {
			return Profile{}, fmt.Errorf("reference_date must be YYYY-MM-DD: %w", err)
		}
	}
	return p, nil
}

// WithReferenceDate returns a copy pinned to date (YYYY-MM-DD). Blank keeps
// the profile unchanged.
func (p Profile) WithReferenceDate(date string) (Profile, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return p, nil
	}
	if _, err := time.Parse(referenceDateLayout, date); err != nil {
		return p, fmt.Errorf("extraction: reference date must be YYYY-MM-DD: %w", err)
	}
	p.ReferenceDate = date
	return p, nil
}

// today resolves the date relative expressions are anchored to.
func (p Profile) today(now time.Time) string {
	if p.ReferenceDate != "" {
		return p.ReferenceDate
	}
	return now.Format(referenceDateLayout)
}

func (p Profile) renderGuidance(now time.Time) []string {
	quoted := make([]string, 0, len(p.SpecialtyTerms))
	for _, term := range p.SpecialtyTerms {
		quoted = append(quoted, fmt.Sprintf("%q", term))
	}
	r := strings.NewReplacer(
		"{{today}}", p.today(now),
		"{{specialties}}", strings.Join(quoted, ", "),
	)
	lines := make([]string, 0, len(p.Guidance))
	for _, line := range p.Guidance {
		lines = append(lines, r.Replace(line))
	}
	return lines
}
