package types

import (
	"sort"
)

// Wildcard matches any value of an attribute key in a filter.
const Wildcard = "*"

// Attribute is a key/value annotation of a scene graph entity,
// e.g. {"name", "kitchen_table"} or {"rsg:agent_policy", "send no Atoms"}.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewAttribute creates an Attribute.
func NewAttribute(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Attributes is a collection of attributes. Duplicate keys are allowed and
// the order carries no meaning.
type Attributes []Attribute

// Attrs builds Attributes from alternating key/value strings.
// A trailing key without value is paired with the empty string.
//
// Example:
//
//	attrs := types.Attrs("name", "table", "shape", "box")
func Attrs(kv ...string) Attributes {
	out := make(Attributes, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		value := ""
		if i+1 < len(kv) {
			value = kv[i+1]
		}
		out = append(out, Attribute{Key: kv[i], Value: value})
	}
	return out
}

// Has reports whether the collection holds exactly this key/value pair.
func (a Attributes) Has(key, value string) bool {
	for _, attr := range a {
		if attr.Key == key && attr.Value == value {
			return true
		}
	}
	return false
}

// Values returns every value stored under key, in collection order.
func (a Attributes) Values(key string) []string {
	var out []string
	for _, attr := range a {
		if attr.Key == key {
			out = append(out, attr.Value)
		}
	}
	return out
}

// Get returns the first value stored under key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Contains reports whether a is a superset of filter: every filter pair must
// be present in a. A filter value of Wildcard matches any value for the key.
// The empty filter is contained in every collection.
func (a Attributes) Contains(filter Attributes) bool {
	for _, want := range filter {
		found := false
		for _, have := range a {
			if have.Key != want.Key {
				continue
			}
			if want.Value == Wildcard || have.Value == want.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. A nil collection clones to an empty one.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Sorted returns a copy ordered by key, then value.
func (a Attributes) Sorted() Attributes {
	out := a.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// Equal reports whether a and b hold the same pairs with the same
// multiplicity, ignoring order.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := a.Sorted(), b.Sorted()
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
