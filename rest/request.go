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

package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Request describes one REST call.
type Request struct {
	Method string
	Route  string

	// Query is appended to the URL.  It isn't part of the route, so
	// it doesn't affect rate limiting.
	Query url.Values

	// Body is sent as JSON unless it's already []byte, string or
	// json.RawMessage.  nil means no body.
	Body interface{}

	// ExpectedCode, if not zero, is the only status code that
	// isn't an error.
	ExpectedCode int

	// RaiseOnError makes Dispatch return an *HTTPError for an
	// unexpected status instead of the decoded body.
	RaiseOnError bool

	// Headers override the standard headers.
	Headers http.Header

	// BaseURL overrides the Dispatcher's base URL.
	BaseURL string
}

// NewRequest makes a Request that raises on error.
func NewRequest(method, route string, body interface{}) *Request {
	return &Request{
		Method:       method,
		Route:        route,
		Body:         body,
		RaiseOnError: true,
	}
}

// WithHeader sets a header override and returns the request.
func (r *Request) WithHeader(name, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	r.Headers.Set(name, value)
	return r
}

// Expect sets ExpectedCode and returns the request.
func (r *Request) Expect(code int) *Request {
	r.ExpectedCode = code
	return r
}

// failed reports whether the response counts as an error for this
// request.
func (r *Request) failed(resp *Response) bool {
	if r.ExpectedCode != 0 && resp.StatusCode != r.ExpectedCode {
		return true
	}
	return 400 <= resp.StatusCode
}

func (r *Request) encodeBody() ([]byte, error) {
	switch vv := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return vv, nil
	case json.RawMessage:
		return vv, nil
	case string:
		return []byte(vv), nil
	default:
		js, err := json.Marshal(vv)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encoding body: %w", r.Method, r.Route, err)
		}
		return js, nil
	}
}

// Response is what came back from the server.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode parses the body into out.  An empty body leaves out alone.
func (r *Response) Decode(out interface{}) error {
	if len(r.Body) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("%w: %v", MalformedResponse, err)
	}
	return nil
}

// Value returns the body decoded as generic JSON, or nil if the body
// is empty.
func (r *Response) Value() (interface{}, error) {
	var x interface{}
	if err := r.Decode(&x); err != nil {
		return nil, err
	}
	return x, nil
}

// Rate-limit response headers.
const (
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderResetAfter = "X-RateLimit-Reset-After"
	HeaderGlobal     = "X-RateLimit-Global"
	HeaderRetryAfter = "Retry-After"
)

// limitHeaders extracts the remaining count and reset time, if both
// are present.
func (r *Response) limitHeaders(now time.Time) (int, time.Time, bool) {
	rem := r.Header.Get(HeaderRemaining)
	after := r.Header.Get(HeaderResetAfter)
	if rem == "" || after == "" {
		return 0, time.Time{}, false
	}
	n, err := strconv.Atoi(rem)
	if err != nil {
		return 0, time.Time{}, false
	}
	secs, err := strconv.ParseFloat(after, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return n, now.Add(seconds(secs)), true
}

// throttle is the body of a 429 response.
type throttle struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// parseThrottle reads retry_after and global from the body, falling
// back to the headers when the body isn't usable.
func (r *Response) parseThrottle() (time.Duration, bool) {
	var t throttle
	if err := json.Unmarshal(r.Body, &t); err == nil && 0 < t.RetryAfter {
		return seconds(t.RetryAfter), t.Global
	}
	global := r.Header.Get(HeaderGlobal) == "true"
	if s := r.Header.Get(HeaderRetryAfter); s != "" {
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return seconds(secs), global
		}
	}
	return DefaultRetryAfter, global
}

func seconds(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
