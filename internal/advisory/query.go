package advisory

import "strings"

// Profile describes the person a scheme search is for. Every field is free
// text as entered by the user.
type Profile struct {
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	State         string `json:"state"`
	IncomeBracket string `json:"income_bracket"`
	Occupation    string `json:"occupation"`
	Category      string `json:"category"`
}

func (p Profile) missing() []string {
	var out []string
	for _, f := range []struct{ name, value string }{
		{"age", p.Age},
		{"gender", p.Gender},
		{"state", p.State},
		{"income_bracket", p.IncomeBracket},
		{"occupation", p.Occupation},
		{"category", p.Category},
	} {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// schemeQuery builds a search for government schemes matching p.
func schemeQuery(p Profile) string {
	terms := []string{"government schemes for"}
	add := func(prefix, v string) {
		if v = strings.TrimSpace(v); v != "" {
			terms = append(terms, prefix+v)
		}
	}
	add("", p.Occupation)
	add("", p.Category)
	add("", p.Gender)
	add("age ", p.Age)
	add("income ", p.IncomeBracket)
	add("in ", p.State)
	terms = append(terms, "India")
	return strings.Join(terms, " ")
}

// lawyerQuery builds a search for lawyers handling issue near location.
func lawyerQuery(issue, location string) string {
	issue = strings.TrimSpace(issue)
	location = strings.TrimSpace(location)
	if location == "" {
		location = "India"
	}
	return issue + " lawyer in " + location
}
