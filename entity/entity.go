/* Copyright 2026 Comcast Cable Communications Management, LLC
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

// Package entity turns REST responses into typed objects.
//
// Every object keeps the fields this package knows about plus Extra,
// which holds any other keys the server sent, untouched.  Objects that
// can act (a Guild can ban a member, for example) carry the Handle
// they were made with and call back through it.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Comcast/cordial/rest"
)

// Handle is what entities use to talk to the server.  A
// *rest.Dispatcher is a Handle, and so is a *client.Client.
type Handle interface {
	DispatchInto(ctx context.Context, req *rest.Request, out interface{}) error
}

// Extra holds keys an entity type doesn't know about.
type Extra map[string]json.RawMessage

var knownKeys sync.Map // reflect.Type -> map[string]bool

// keysOf returns the JSON keys of a struct type, including those of
// embedded structs.
func keysOf(t reflect.Type) map[string]bool {
	if ks, have := knownKeys.Load(t); have {
		return ks.(map[string]bool)
	}
	ks := make(map[string]bool)
	collectKeys(t, ks)
	knownKeys.Store(t, ks)
	return ks
}

func collectKeys(t reflect.Type, acc map[string]bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if f.Anonymous && tag == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectKeys(ft, acc)
			}
			continue
		}
		if !f.IsExported() || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = f.Name
		}
		acc[name] = true
	}
}

// unmarshal decodes raw into known (a pointer to a struct) and returns
// the keys known's type doesn't have.
//
// known's type must not have its own UnmarshalJSON.  Callers use a
// local alias type to shed it.
func unmarshal(raw []byte, known interface{}) (Extra, error) {
	if err := json.Unmarshal(raw, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	ks := keysOf(reflect.TypeOf(known).Elem())
	var extra Extra
	for k, v := range all {
		if ks[k] {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[k] = v
	}
	return extra, nil
}

// Build makes an entity of type T from raw JSON and gives it the
// handle if it wants one.
func Build[T any](h Handle, raw []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(raw, &x); err != nil {
		return nil, fmt.Errorf("%w: %v", rest.MalformedResponse, err)
	}
	if a, is := interface{}(&x).(attacher); is {
		a.attach(h)
	}
	return &x, nil
}

type attacher interface {
	attach(h Handle)
}

// get fetches a single entity.
func Fetch[T any](ctx context.Context, h Handle, req *rest.Request) (*T, error) {
	var raw json.RawMessage
	if err := h.DispatchInto(ctx, req, &raw); err != nil {
		return nil, err
	}
	return Build[T](h, raw)
}

// list fetches an array of entities.
func FetchAll[T any](ctx context.Context, h Handle, req *rest.Request) ([]*T, error) {
	var raws []json.RawMessage
	if err := h.DispatchInto(ctx, req, &raws); err != nil {
		return nil, err
	}
	acc := make([]*T, 0, len(raws))
	for _, raw := range raws {
		x, err := Build[T](h, raw)
		if err != nil {
			return nil, err
		}
		acc = append(acc, x)
	}
	return acc, nil
}
