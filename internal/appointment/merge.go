package appointment

// Merge copies every non-empty extracted value into a slot of dst that is
// still empty. Filled slots are never overwritten, so the first value heard
// for a field wins for the rest of the conversation. When symptoms are known
// but no reason was given, the symptoms double as the reason.
func Merge(dst *Context, extracted Context) {
	if dst == nil {
		return
	}
	for _, f := range allFields {
		if extracted.IsEmpty(f) || !dst.IsEmpty(f) {
			continue
		}
		if f == FieldSymptoms {
			dst.Symptoms = append([]string(nil), extracted.Symptoms...)
			continue
		}
		dst.set(f, extracted.Get(f))
	}
	applyReasonFallback(dst)
}

// AppendSymptoms adds symptoms reported after the required fields were
// collected. Unlike Merge it extends an existing value:
// "cough" + ["fever"] renders as "cough, fever".
func AppendSymptoms(dst *Context, symptoms []string) {
	if dst == nil {
		return
	}
	extra := NormalizeSymptoms(symptoms)
	if len(extra) == 0 {
		return
	}
	dst.Symptoms = append(dst.Symptoms, extra...)
	applyReasonFallback(dst)
}

func applyReasonFallback(c *Context) {
	if len(c.Symptoms) > 0 && c.Reason == "" {
		c.Reason = c.SymptomText()
	}
}

// MissingRequired returns, in schema order, the required fields that are
// still empty. It is recomputed on every call.
func MissingRequired(c Context) []Field {
	var missing []Field
	for _, f := range allFields {
		if requiredFields[f] && c.IsEmpty(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// AllFilled reports whether every schema field, optional ones included, has
// a value.
func AllFilled(c Context) bool {
	for _, f := range allFields {
		if c.IsEmpty(f) {
			return false
		}
	}
	return true
}
