package domain

// Value reads a protocol field that may hold a scalar, an embedded object, or
// a set of either. Protocol activities permit both forms for actor, object,
// target, type, and addressing fields, so every membership check has to treat
// a single string and a set containing it the same way.
type Value struct {
	raw any
}

// ValueOf wraps a decoded JSON field.
func ValueOf(raw any) Value {
	return Value{raw: raw}
}

// Raw returns the underlying decoded form.
func (v Value) Raw() any {
	return v.raw
}

// IsZero reports whether the field was absent.
func (v Value) IsZero() bool {
	return v.raw == nil
}

// IDs flattens the field into its referenced ids. A plain string is one id, an
// embedded object contributes its own declared id, and an array contributes
// each element's ids in order.
func (v Value) IDs() []string {
	return appendIDs(nil, v.raw)
}

// Contains reports whether the field references id, either directly, as a set
// member, or through an embedded object's declared id.
func (v Value) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, ref := range v.IDs() {
		if ref == id {
			return true
		}
	}
	return false
}

// ContainsAny reports whether the field references any id in the list.
func (v Value) ContainsAny(ids []string) bool {
	for _, id := range ids {
		if v.Contains(id) {
			return true
		}
	}
	return false
}

// First returns the first referenced id, or "" when the field is empty.
func (v Value) First() string {
	ids := v.IDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func appendIDs(out []string, raw any) []string {
	switch value := raw.(type) {
	case string:
		if value != "" {
			out = append(out, value)
		}
	case map[string]any:
		if id, ok := value["id"].(string); ok && id != "" {
			out = append(out, id)
		}
	case Payload:
		if id := value.ID(); id != "" {
			out = append(out, id)
		}
	case []any:
		for _, item := range value {
			out = appendIDs(out, item)
		}
	case []string:
		for _, item := range value {
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// WithoutID returns the raw field form with every reference to id removed and
// reports whether anything remains. Removing the last reference yields nil.
func (v Value) WithoutID(id string) (any, bool) {
	switch value := v.raw.(type) {
	case string:
		if value == id {
			return nil, false
		}
		return value, value != ""
	case map[string]any:
		if embedded, ok := value["id"].(string); ok && embedded == id {
			return nil, false
		}
		return value, true
	case []any:
		kept := make([]any, 0, len(value))
		for _, item := range value {
			itemIDs := appendIDs(nil, item)
			if len(itemIDs) == 1 && itemIDs[0] == id {
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) == 0 {
			return nil, false
		}
		if len(kept) == 1 {
			return kept[0], true
		}
		return kept, true
	}
	return v.raw, v.raw != nil
}
