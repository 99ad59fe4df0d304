package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Match reports whether a document's fields satisfy every condition of a
// query. Used by the backends that filter in Go.
func Match(fields Fields, conds []Cond) bool {
	for _, c := range conds {
		if !matchCond(fields, c) {
			return false
		}
	}
	return true
}

func matchCond(fields Fields, c Cond) bool {
	got := lookupField(fields, c.Field)
	switch c.Op {
	case OpEqual:
		return equalValue(got, c.Value)
	case OpArrayContains:
		return containsValue(AsSlice(got), c.Value)
	case OpIn:
		return containsValue(AsSlice(c.Value), got)
	default:
		return false
	}
}

// lookupField resolves dotted paths ("author.uid") through nested maps.
func lookupField(fields Fields, path string) any {
	var cur any = fields
	rest := path
	for rest != "" {
		key := rest
		if i := indexByte(rest, '.'); i >= 0 {
			key, rest = rest[:i], rest[i+1:]
		} else {
			rest = ""
		}
		m := asFields(cur)
		if m == nil {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func equalValue(a, b any) bool {
	if ta, ok := asTimeValue(a); ok {
		tb, ok := asTimeValue(b)
		return ok && ta.Equal(tb)
	}
	switch a.(type) {
	case int, int32, int64, float32, float64:
		switch b.(type) {
		case int, int32, int64, float32, float64:
			return AsInt64(a) == AsInt64(b)
		}
	}
	return reflect.DeepEqual(a, b)
}

// SortDocs orders documents by the named field, ties broken by document id
// so ordering stays deterministic when server timestamps collide.
func SortDocs(docs []Document, orderBy string, desc bool) {
	if orderBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		a := lookupField(docs[i].Fields, orderBy)
		b := lookupField(docs[j].Fields, orderBy)
		if cmp := compareValues(a, b); cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if desc {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].ID < docs[j].ID
	})
}

func compareValues(a, b any) int {
	if ta, ok := asTimeValue(a); ok {
		tb, _ := asTimeValue(b)
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}
	switch a.(type) {
	case int, int32, int64, float32, float64:
		na, nb := AsInt64(a), AsInt64(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := AsString(a), AsString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

// Value coercions. Backends normalize differently (JSON gives float64 and
// RFC 3339 strings, the mongo driver gives primitive types converted before
// they reach here), so consumers read fields through these instead of raw
// type assertions.

func AsString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func AsInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}

func AsTime(v any) time.Time {
	t, _ := asTimeValue(v)
	return t
}

func asTimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

func AsSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}

func AsStringSlice(v any) []string {
	raw := AsSlice(v)
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		out = append(out, AsString(e))
	}
	return out
}

// AsFields reads a nested map field; nil when the value is not a map.
func AsFields(v any) Fields {
	return asFields(v)
}

// AsCountMap reads a map-of-counters field such as unreadCounts.
func AsCountMap(v any) map[string]int64 {
	m := asFields(v)
	out := make(map[string]int64, len(m))
	for k, val := range m {
		out[k] = AsInt64(val)
	}
	return out
}
