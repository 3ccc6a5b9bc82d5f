// Package structdiff computes field-level structural deltas between two
// typed trees. Values are canonicalized through their JSON form first, so
// any pair of values with the same JSON shape can be compared regardless of
// the Go types they started as.
package structdiff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Change is one leaf-level difference. Path uses dotted map keys and
// bracketed slice indexes, e.g. "tags.owner" or "members[2]".
type Change struct {
	Path   string
	Before any
	After  any
}

// Diff returns the changes needed to turn before into after. A nil result
// means the two trees are structurally identical.
func Diff(before, after any) ([]Change, error) {
	b, err := canonicalize(before)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing before value: %w", err)
	}
	a, err := canonicalize(after)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing after value: %w", err)
	}
	var changes []Change
	walk("", b, a, &changes)
	return changes, nil
}

// Equal reports whether two trees are structurally identical.
func Equal(x, y any) (bool, error) {
	changes, err := Diff(x, y)
	if err != nil {
		return false, err
	}
	return len(changes) == 0, nil
}

// Canonical returns the canonical JSON encoding of v: map keys sorted, so
// equal trees encode equally.
func Canonical(v any) ([]byte, error) {
	c, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return marshalCanonical(c)
}

// Hash returns a stable content hash of the canonical form of v, suitable
// for drift snapshots.
func Hash(v any) (string, error) {
	c, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	raw, err := marshalCanonical(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// marshalCanonical emits JSON with map keys in sorted order so equal trees
// hash equally.
func marshalCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	case []any:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			buf = append(buf, eb...)
		}
		return append(buf, ']'), nil
	default:
		return json.Marshal(v)
	}
}

func walk(path string, before, after any, changes *[]Change) {
	bm, bIsMap := before.(map[string]any)
	am, aIsMap := after.(map[string]any)
	if bIsMap && aIsMap {
		keys := make(map[string]struct{}, len(bm)+len(am))
		for k := range bm {
			keys[k] = struct{}{}
		}
		for k := range am {
			keys[k] = struct{}{}
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)
		for _, k := range sorted {
			bv, bOK := bm[k]
			av, aOK := am[k]
			child := k
			if path != "" {
				child = path + "." + k
			}
			switch {
			case bOK && aOK:
				walk(child, bv, av, changes)
			case bOK:
				if !isEmpty(bv) {
					*changes = append(*changes, Change{Path: child, Before: bv, After: nil})
				}
			default:
				if !isEmpty(av) {
					*changes = append(*changes, Change{Path: child, Before: nil, After: av})
				}
			}
		}
		return
	}

	bs, bIsSlice := before.([]any)
	as, aIsSlice := after.([]any)
	if bIsSlice && aIsSlice {
		max := len(bs)
		if len(as) > max {
			max = len(as)
		}
		for i := 0; i < max; i++ {
			child := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case i < len(bs) && i < len(as):
				walk(child, bs[i], as[i], changes)
			case i < len(bs):
				*changes = append(*changes, Change{Path: child, Before: bs[i], After: nil})
			default:
				*changes = append(*changes, Change{Path: child, Before: nil, After: as[i]})
			}
		}
		return
	}

	if !cmp.Equal(before, after) {
		*changes = append(*changes, Change{Path: path, Before: before, After: after})
	}
}

// isEmpty treats nil, "", empty maps and empty slices as absent: a missing
// key and an empty value must not count as drift.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}
