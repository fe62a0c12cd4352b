package form

// Snapshot maps field names to their values at one instant. It is never
// updated in place; take a new one for every input event.
type Snapshot map[string]Value

// Text returns the textual value of name and whether it was present.
func (s Snapshot) Text(name string) (string, bool) {
	v, ok := s[name]
	if !ok || v.Kind == FieldCheckbox {
		return "", false
	}
	return v.Text, true
}

// Bool returns the state of a lone checkbox.
func (s Snapshot) Bool(name string) (bool, bool) {
	v, ok := s[name]
	if !ok || v.Kind != FieldCheckbox || v.IsGroup() {
		return false, false
	}
	return v.Checked, true
}

// List returns the checked values of a checkbox group.
func (s Snapshot) List(name string) ([]string, bool) {
	v, ok := s[name]
	if !ok || !v.IsGroup() {
		return nil, false
	}
	return v.Values, true
}

// Plain flattens the snapshot into JSON-friendly values: strings, booleans
// and string lists. Useful for logging.
func (s Snapshot) Plain() map[string]interface{} {
	out := make(map[string]interface{}, len(s))
	for name, v := range s {
		switch {
		case v.IsGroup():
			out[name] = v.Values
		case v.Kind == FieldCheckbox:
			out[name] = v.Checked
		default:
			out[name] = v.Text
		}
	}
	return out
}
