package appointment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Context holds the values collected for one booking. An empty string (or an
// empty symptom list) means the slot is absent.
//
// Symptoms are kept as an ordered list; every other consumer sees them joined
// with ", ".
type Context struct {
	DoctorSpecialty string
	PreferredDate   string
	PreferredTime   string
	PatientName     string
	PatientAge      string
	PatientPhone    string
	Reason          string
	Symptoms        []string
}

// FieldValue pairs a field with its rendered value.
type FieldValue struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
}

// Get returns the rendered value of f, or "" when absent.
func (c Context) Get(f Field) string {
	switch f {
	case FieldDoctorSpecialty:
		return c.DoctorSpecialty
	case FieldPreferredDate:
		return c.PreferredDate
	case FieldPreferredTime:
		return c.PreferredTime
	case FieldPatientName:
		return c.PatientName
	case FieldPatientAge:
		return c.PatientAge
	case FieldPatientPhone:
		return c.PatientPhone
	case FieldReason:
		return c.Reason
	case FieldSymptoms:
		return c.SymptomText()
	default:
		return ""
	}
}

// set writes a scalar slot. Symptoms go through setSymptoms.
func (c *Context) set(f Field, value string) {
	switch f {
	case FieldDoctorSpecialty:
		c.DoctorSpecialty = value
	case FieldPreferredDate:
		c.PreferredDate = value
	case FieldPreferredTime:
		c.PreferredTime = value
	case FieldPatientName:
		c.PatientName = value
	case FieldPatientAge:
		c.PatientAge = value
	case FieldPatientPhone:
		c.PatientPhone = value
	case FieldReason:
		c.Reason = value
	case FieldSymptoms:
		c.Symptoms = NormalizeSymptoms(value)
	}
}

// IsEmpty reports whether f has no value.
func (c Context) IsEmpty(f Field) bool {
	if f == FieldSymptoms {
		return len(c.Symptoms) == 0
	}
	return c.Get(f) == ""
}

// SymptomText joins the symptom list the way it is shown and stored downstream.
func (c Context) SymptomText() string {
	return strings.Join(c.Symptoms, ", ")
}

// Clone returns a deep copy so callers can mutate without aliasing the
// symptom slice.
func (c Context) Clone() Context {
	out := c
	if c.Symptoms != nil {
		out.Symptoms = append([]string(nil), c.Symptoms...)
	}
	return out
}

// Collected lists every non-empty field in schema order.
func (c Context) Collected() []FieldValue {
	var out []FieldValue
	for _, f := range allFields {
		if c.IsEmpty(f) {
			continue
		}
		out = append(out, FieldValue{Field: f, Value: c.Get(f)})
	}
	return out
}

// CollectedMap is Collected keyed by field name, for JSON responses.
func (c Context) CollectedMap() map[string]string {
	out := make(map[string]string)
	for _, fv := range c.Collected() {
		out[string(fv.Field)] = fv.Value
	}
	return out
}

// MarshalJSON writes every schema field in order, null when absent.
func (c Context) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range allFields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(f))
		buf.Write(key)
		buf.WriteByte(':')
		if c.IsEmpty(f) {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(c.Get(f))
		if err != nil {
			return nil, fmt.Errorf("appointment: marshal %s: %w", f, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the shape produced by MarshalJSON as well as the
// looser shapes the oracle returns: numbers for scalar slots and either a
// string or a list for symptoms. Unknown keys are ignored.
func (c *Context) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("appointment: context must be a JSON object")
	}
	var out Context
	for key, value := range raw {
		f, ok := ParseField(key)
		if !ok {
			continue
		}
		if f == FieldSymptoms {
			out.Symptoms = NormalizeSymptoms(value)
			continue
		}
		out.set(f, scalarString(value))
	}
	*c = out
	return nil
}

// NormalizeSymptoms converts whatever shape a symptom value arrives in into
// an ordered list of trimmed, non-empty entries.
func NormalizeSymptoms(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
		return nil
	case []string:
		var out []string
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range v {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := scalarString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

func scalarString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	case []any:
		return strings.Join(NormalizeSymptoms(v), ", ")
	default:
		return ""
	}
}
