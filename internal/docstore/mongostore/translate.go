package mongostore

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialdesk/internal/docstore"
)

// translateUpdate maps a Fields write onto Mongo update operators. With
// merge set, nested maps flatten to dotted paths so sibling keys survive;
// without it, nested values are $set wholesale, matching the contract's
// partial-overwrite semantics.
func translateUpdate(fields docstore.Fields, merge bool) bson.M {
	set := bson.M{}
	inc := bson.M{}
	currentDate := bson.M{}
	addToSet := bson.M{}
	pullAll := bson.M{}

	var walk func(prefix string, fs docstore.Fields)
	walk = func(prefix string, fs docstore.Fields) {
		for key, value := range fs {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			switch v := value.(type) {
			case docstore.ServerTimestamp:
				currentDate[path] = true
			case docstore.Increment:
				inc[path] = v.By
			case docstore.ArrayUnion:
				addToSet[path] = bson.M{"$each": v.Values}
			case docstore.ArrayRemove:
				pullAll[path] = v.Values
			case docstore.Fields:
				if merge {
					walk(path, v)
				} else {
					set[path] = resolveValue(v)
				}
			case map[string]any:
				if merge {
					walk(path, docstore.Fields(v))
				} else {
					set[path] = resolveValue(docstore.Fields(v))
				}
			default:
				set[path] = value
			}
		}
	}
	walk("", fields)

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(currentDate) > 0 {
		update["$currentDate"] = currentDate
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pullAll) > 0 {
		update["$pullAll"] = pullAll
	}
	return update
}

// resolveValue prepares a nested map for wholesale $set. Directives inside
// a replaced map cannot use update operators, so increments degrade to
// their literal delta and timestamps are left to the caller; in practice
// the application never nests directives under a non-merge write.
func resolveValue(fields docstore.Fields) bson.M {
	out := bson.M{}
	for key, value := range fields {
		switch v := value.(type) {
		case docstore.Increment:
			out[key] = v.By
		case docstore.Fields:
			out[key] = resolveValue(v)
		case map[string]any:
			out[key] = resolveValue(docstore.Fields(v))
		default:
			out[key] = value
		}
	}
	return out
}

// translateWhere maps query conditions onto a Mongo filter. Equality on an
// array field is Mongo's native membership test, which is exactly the
// array-contains operator.
func translateWhere(conds []docstore.Cond) bson.M {
	filter := bson.M{}
	for _, c := range conds {
		switch c.Op {
		case docstore.OpEqual, docstore.OpArrayContains:
			filter[c.Field] = c.Value
		case docstore.OpIn:
			filter[c.Field] = bson.M{"$in": docstore.AsSlice(c.Value)}
		}
	}
	return filter
}

// rawToDocument normalizes driver types so consumers see the same shapes
// every backend produces: time.Time for timestamps, []any for arrays,
// Fields for nested maps.
func rawToDocument(raw bson.M) docstore.Document {
	id, _ := raw["_id"].(string)
	fields := docstore.Fields{}
	for key, value := range raw {
		if key == "_id" || key == parentField {
			continue
		}
		fields[key] = normalizeValue(value)
	}
	return docstore.Document{ID: id, Fields: fields}
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.A:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeValue(e)
		}
		return out
	case bson.M:
		out := docstore.Fields{}
		for k, e := range v {
			out[k] = normalizeValue(e)
		}
		return out
	case bson.D:
		out := docstore.Fields{}
		for _, e := range v {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case int32:
		return int64(v)
	default:
		return value
	}
}
