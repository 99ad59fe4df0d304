package docstore

import "time"

// Apply resolves write directives in src against dst and returns dst. With
// merge set, nested Fields values merge recursively into existing maps;
// otherwise nested values replace the stored value wholesale. now is the
// resolved server timestamp for this write. Backends that evaluate writes in
// Go (memstore, gormstore) share this so directive semantics cannot drift.
func Apply(dst Fields, src Fields, merge bool, now time.Time) Fields {
	if dst == nil {
		dst = Fields{}
	}
	for key, value := range src {
		switch v := value.(type) {
		case ServerTimestamp:
			dst[key] = now
		case Increment:
			dst[key] = AsInt64(dst[key]) + v.By
		case ArrayUnion:
			dst[key] = unionValues(AsSlice(dst[key]), v.Values)
		case ArrayRemove:
			dst[key] = removeValues(AsSlice(dst[key]), v.Values)
		case Fields:
			dst[key] = applyNested(dst[key], v, merge, now)
		case map[string]any:
			dst[key] = applyNested(dst[key], Fields(v), merge, now)
		default:
			dst[key] = value
		}
	}
	return dst
}

func applyNested(existing any, src Fields, merge bool, now time.Time) Fields {
	var child Fields
	if merge {
		child = asFields(existing)
	}
	return Apply(child, src, merge, now)
}

func asFields(v any) Fields {
	switch m := v.(type) {
	case Fields:
		return m
	case map[string]any:
		child := make(Fields, len(m))
		for k, val := range m {
			child[k] = val
		}
		return child
	default:
		return nil
	}
}

func unionValues(existing []any, add []any) []any {
	for _, v := range add {
		if !containsValue(existing, v) {
			existing = append(existing, v)
		}
	}
	return existing
}

func removeValues(existing []any, drop []any) []any {
	kept := existing[:0]
	for _, v := range existing {
		if !containsValue(drop, v) {
			kept = append(kept, v)
		}
	}
	return kept
}

func containsValue(values []any, target any) bool {
	for _, v := range values {
		if equalValue(v, target) {
			return true
		}
	}
	return false
}

// Clone deep-copies a field map so snapshots handed to subscribers cannot
// alias store-internal state.
func Clone(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case Fields:
			out[k] = Clone(t)
		case map[string]any:
			out[k] = Clone(Fields(t))
		case []any:
			cp := make([]any, len(t))
			copy(cp, t)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
