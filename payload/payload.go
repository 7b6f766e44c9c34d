// Package payload has the small amount of JSON plumbing that the REST
// and Gateway sides share: field maps where some fields may be
// deliberately left out.
package payload

import "encoding/json"

type absent struct{}

// Absent marks a field that should not be sent at all.  That's
// different from nil, which is sent as JSON null.
var Absent interface{} = absent{}

// Fields is a JSON object whose Absent values are dropped when it is
// marshaled.
type Fields map[string]interface{}

// Clean returns a copy of the fields without the Absent ones.
func (fs Fields) Clean() map[string]interface{} {
	acc := make(map[string]interface{}, len(fs))
	for k, v := range fs {
		if v == Absent {
			continue
		}
		acc[k] = v
	}
	return acc
}

func (fs Fields) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Clean())
}

// Opt returns Absent if p is nil and *p otherwise.  It's a convenience
// for building Fields out of optional struct fields.
func Opt[T any](p *T) interface{} {
	if p == nil {
		return Absent
	}
	return *p
}
