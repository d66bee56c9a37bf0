package domain

// HandleReference stands in for a native handle on the caller side of the bridge.
// Only the worker that produced it can turn it back into a live object.
type HandleReference struct {
	Hash CacheKey `json:"hash"`
	Kind string   `json:"kind"`
}

// AsHandleReference recognises a handle reference in either its typed form or the
// generic map form produced by decoding JSON.
// The map form must carry exactly the string fields "hash" and "kind".
func AsHandleReference(v any) (HandleReference, bool) {
	switch ref := v.(type) {
	case HandleReference:
		return ref, true
	case *HandleReference:
		if ref == nil {
			return HandleReference{}, false
		}
		return *ref, true
	case map[string]any:
		if len(ref) != 2 {
			return HandleReference{}, false
		}
		hash, ok := ref["hash"].(string)
		if !ok {
			return HandleReference{}, false
		}
		kind, ok := ref["kind"].(string)
		if !ok || kind == "" {
			return HandleReference{}, false
		}
		key, err := ParseCacheKey(hash)
		if err != nil {
			return HandleReference{}, false
		}
		return HandleReference{Hash: key, Kind: kind}, true
	default:
		return HandleReference{}, false
	}
}

// Member is a named native handle inside an Assembly.
type Member struct {
	Name   string
	Handle any
}

// Assembly is a composite kernel result: a grouping handle, its named member
// handles, and any plain data that goes with them.
type Assembly struct {
	Aggregate any
	Members   []Member
	Data      any
}

// MemberRef is the reply form of a Member.
type MemberRef struct {
	Name string          `json:"name"`
	Ref  HandleReference `json:"ref"`
}

// AssemblyRef is the reply form of an Assembly.
type AssemblyRef struct {
	Aggregate HandleReference `json:"aggregate"`
	Members   []MemberRef     `json:"members"`
	Data      any             `json:"data,omitempty"`
}
