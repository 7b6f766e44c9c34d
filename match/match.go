/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package match implements a small pattern matcher for Gateway
// events.
//
// A pattern is JSON-like data.  A map matches a map that has at least
// the pattern's keys with matching values.  An array is a set: each
// pattern element must match a different element of the fact.
// Strings starting with '?' are variables.  A variable matches
// anything the first time and then must match the same value again.
// The variable "?" matches anything and isn't bound.  A variable
// starting with "??" is optional: its key may be missing.
//
// For example, the pattern
//
//	{"t":"MESSAGE_CREATE","d":{"guild_id":"?g","mentions":[{"id":"?me"}]}}
//
// with bindings {"?me":"42"} matches messages in any guild that
// mention user 42.
package match

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/Comcast/cordial/gateway"
)

// Bindings is a map from variables (strings starting with a '?') to
// their values.
type Bindings map[string]interface{}

// Copy makes a shallow copy of the Bindings.
func (bs Bindings) Copy() Bindings {
	acc := make(Bindings, len(bs))
	for k, v := range bs {
		acc[k] = v
	}
	return acc
}

// IsVariable reports if the string represents a pattern variable.
func IsVariable(s string) bool {
	return strings.HasPrefix(s, "?")
}

func isOptional(x interface{}) bool {
	s, is := x.(string)
	return is && strings.HasPrefix(s, "??")
}

// fudge casts numbers to float64s so that Go values match JSON ones.
func fudge(x interface{}) interface{} {
	switch vv := x.(type) {
	case float32:
		return float64(vv)
	case int:
		return float64(vv)
	case int32:
		return float64(vv)
	case int64:
		return float64(vv)
	case json.Number:
		if f, err := vv.Float64(); err == nil {
			return f
		}
	}
	return x
}

// Match attempts to match the fact against the pattern given initial
// bindings, which aren't modified.  The bindings returned include the
// initial ones.
func Match(pattern, fact interface{}, bs Bindings) (Bindings, bool) {
	if bs == nil {
		bs = Bindings{}
	}
	return match(pattern, fact, bs.Copy())
}

// match may modify bs.
func match(pattern, fact interface{}, bs Bindings) (Bindings, bool) {
	pattern = fudge(pattern)
	fact = fudge(fact)

	switch p := pattern.(type) {
	case nil:
		return bs, fact == nil

	case string:
		if !IsVariable(p) {
			s, is := fact.(string)
			return bs, is && s == p
		}
		if p == "?" {
			return bs, true
		}
		if bound, have := bs[p]; have {
			return bs, reflect.DeepEqual(fudge(bound), fact)
		}
		bs[p] = fact
		return bs, true

	case bool, float64:
		return bs, p == fact

	case map[string]interface{}:
		f, is := fact.(map[string]interface{})
		if !is {
			return bs, false
		}
		for k, pv := range p {
			fv, have := f[k]
			if !have {
				if isOptional(pv) {
					continue
				}
				return bs, false
			}
			var ok bool
			if bs, ok = match(pv, fv, bs); !ok {
				return bs, false
			}
		}
		return bs, true

	case []interface{}:
		f, is := fact.([]interface{})
		if !is {
			return bs, false
		}
		used := make([]bool, len(f))
		return matchSet(p, f, used, bs)
	}

	return bs, false
}

// matchSet matches each pattern element against a distinct unused
// fact element, backtracking as needed.
func matchSet(ps, fs []interface{}, used []bool, bs Bindings) (Bindings, bool) {
	if len(ps) == 0 {
		return bs, true
	}
	for i, f := range fs {
		if used[i] {
			continue
		}
		ext, ok := match(ps[0], f, bs.Copy())
		if !ok {
			continue
		}
		used[i] = true
		if ext, ok = matchSet(ps[1:], fs, used, ext); ok {
			return ext, true
		}
		used[i] = false
	}
	return bs, false
}

// Pattern matches Gateway events.  The fact is {"t":TYPE, "s":SEQ,
// "d":DATA}.
type Pattern struct {
	pattern  interface{}
	Bindings Bindings
}

// Compile normalizes x (typically from a configuration file) into a
// Pattern.
func Compile(x interface{}) (*Pattern, error) {
	js, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	var p interface{}
	if err = json.Unmarshal(js, &p); err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	return &Pattern{pattern: p}, nil
}

// Event returns the bindings if the event matches.  A nil Pattern
// matches every event.
func (p *Pattern) Event(e *gateway.Event) (Bindings, bool, error) {
	if p == nil {
		return Bindings{}, true, nil
	}
	var d interface{}
	if 0 < len(e.Data) {
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, false, err
		}
	}
	fact := map[string]interface{}{
		"t": e.Type,
		"s": float64(e.Seq),
		"d": d,
	}
	bs, ok := Match(p.pattern, fact, p.Bindings)
	if !ok {
		return nil, false, nil
	}
	return bs, true, nil
}
