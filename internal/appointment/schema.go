package appointment

import "strings"

// Field names a slot the intake flow collects.
type Field string

const (
	FieldDoctorSpecialty Field = "doctor_specialty"
	FieldPreferredDate   Field = "preferred_date"
	FieldPreferredTime   Field = "preferred_time"
	FieldPatientName     Field = "patient_name"
	FieldPatientAge      Field = "patient_age"
	FieldPatientPhone    Field = "patient_phone"
	FieldReason          Field = "reason"
	FieldSymptoms        Field = "symptoms"
)

// allFields is the declared schema order. Display, JSON output and the
// missing-field list all follow it.
var allFields = []Field{
	FieldDoctorSpecialty,
	FieldPreferredDate,
	FieldPreferredTime,
	FieldPatientName,
	FieldPatientAge,
	FieldPatientPhone,
	FieldReason,
	FieldSymptoms,
}

var requiredFields = map[Field]bool{
	FieldDoctorSpecialty: true,
	FieldPreferredDate:   true,
	FieldPreferredTime:   true,
	FieldPatientName:     true,
	FieldReason:          true,
}

// AllFields returns every recognized field in schema order.
func AllFields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// RequiredFields returns the fields that must be filled before a booking can
// complete, in schema order.
func RequiredFields() []Field {
	out := make([]Field, 0, len(requiredFields))
	for _, f := range allFields {
		if requiredFields[f] {
			out = append(out, f)
		}
	}
	return out
}

// IsRequired reports whether f blocks completion while empty.
func IsRequired(f Field) bool {
	return requiredFields[f]
}

// ParseField maps a raw key (as returned by the oracle) to a known field.
func ParseField(raw string) (Field, bool) {
	key := Field(strings.ToLower(strings.TrimSpace(raw)))
	for _, f := range allFields {
		if f == key {
			return f, true
		}
	}
	return "", false
}

// Label renders the field for the "collected so far" block:
// doctor_specialty -> "Doctor Specialty".
func (f Field) Label() string {
	words := strings.Split(string(f), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Phrase renders the field inline in prose: doctor_specialty -> "doctor specialty".
func (f Field) Phrase() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// Phrases joins the prose form of each field with ", ".
func Phrases(fields []Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Phrase())
	}
	return strings.Join(parts, ", ")
}
