package graph

// State is the open-ended key-value mapping threaded through every node
// of a run. Values are whatever JSON deserialization or tool code put
// in them.
//
// Ownership rules: each run holds its own State, seeded as a copy of
// the caller's initial mapping. Tools receive the live State for
// reading but must not mutate it in place; their returned update is the
// sole channel for changes.
type State map[string]any

// Clone returns an independent top-level copy of the state.
//
// A top-level copy is sufficient for snapshot isolation here: the merge
// only ever rebinds top-level keys and the tool contract forbids
// in-place mutation of received values, so an earlier snapshot can
// never be altered by later steps.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge applies a partial update: every key in update is inserted or
// overwritten, keys not mentioned are left untouched. The merge is
// shallow and never removes keys.
func (s State) Merge(update map[string]any) {
	for k, v := range update {
		s[k] = v
	}
}

// truthy coerces an arbitrary state value to a boolean flag for
// conditional routing: present-and-truthy is true, absent or falsy is
// false. The falsy set mirrors what callers naturally produce over
// JSON: nil, false, zero numbers, empty strings, and empty collections.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case []any:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}
