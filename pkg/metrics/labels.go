package metrics

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LabelSet is an immutable set of key/value labels. Two label sets are
// equal iff they hold the same pairs; insertion order never matters.
// The zero value is the empty label set.
type LabelSet struct {
	keys []string
	vals []string
}

// NewLabelSet copies m into a LabelSet. A nil or empty map yields the
// empty set.
func NewLabelSet(m map[string]string) LabelSet {
	if len(m) == 0 {
		return LabelSet{}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return LabelSet{keys: keys, vals: vals}
}

// Len returns the number of labels.
func (ls LabelSet) Len() int {
	return len(ls.keys)
}

// Get returns the value for key k.
func (ls LabelSet) Get(k string) (string, bool) {
	i := sort.SearchStrings(ls.keys, k)
	if i < len(ls.keys) && ls.keys[i] == k {
		return ls.vals[i], true
	}
	return "", false
}

// Map returns a fresh map holding the labels.
func (ls LabelSet) Map() map[string]string {
	m := make(map[string]string, len(ls.keys))
	for i, k := range ls.keys {
		m[k] = ls.vals[i]
	}
	return m
}

// Canonical returns the deterministic string form "k1=v1,k2=v2" with
// keys sorted. It is the identity used for series fingerprints.
func (ls LabelSet) Canonical() string {
	if len(ls.keys) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range ls.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(ls.vals[i])
	}
	return b.String()
}

// String implements fmt.Stringer.
func (ls LabelSet) String() string {
	return "{" + ls.Canonical() + "}"
}

// Equal reports whether both sets hold exactly the same pairs.
func (ls LabelSet) Equal(other LabelSet) bool {
	if len(ls.keys) != len(other.keys) {
		return false
	}
	for i := range ls.keys {
		if ls.keys[i] != other.keys[i] || ls.vals[i] != other.vals[i] {
			return false
		}
	}
	return true
}

// Contains reports whether ls is a superset of sub: every pair in sub
// is present in ls with the same value. The empty set is contained in
// every set, which is what makes an empty query filter match all
// series under a name.
func (ls LabelSet) Contains(sub LabelSet) bool {
	for i, k := range sub.keys {
		v, ok := ls.Get(k)
		if !ok || v != sub.vals[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the label set as a plain JSON object.
func (ls LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ls.Map())
}

// UnmarshalJSON decodes a JSON object into the label set.
func (ls *LabelSet) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ls = NewLabelSet(m)
	return nil
}

// SeriesID computes the stable fingerprint for a (name, labels) pair.
// The 0xff separator cannot appear between a metric name and a label
// key, so distinct pairs cannot collide by concatenation.
func SeriesID(name string, labels LabelSet) uint64 {
	d := xxhash.New()
	d.WriteString(name)
	d.Write([]byte{0xff})
	d.WriteString(labels.Canonical())
	return d.Sum64()
}
