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
	"errors"
	"fmt"
)

var (
	// RetriesExhausted is wrapped by the error Dispatch returns when
	// the server keeps answering 429 past the retry budget.
	RetriesExhausted = errors.New("rate limit retries exhausted")

	// MalformedResponse is wrapped by the error Dispatch returns
	// when a response body isn't the JSON we expected.
	MalformedResponse = errors.New("malformed response")
)

// HTTPError is an unexpected status code or a transport failure.
//
// Callers can use errors.As to get at the details:
//
//	var httpErr *rest.HTTPError
//	if errors.As(err, &httpErr) && httpErr.StatusCode == 404 { ... }
type HTTPError struct {
	Method string `json:"method"`
	Route  string `json:"route"`

	// StatusCode is the HTTP status, or 0 if the request never
	// got a response.
	StatusCode int `json:"statusCode"`

	// Code is the platform's error code from the body, if any.
	Code int `json:"code"`

	// Message is the platform's error message from the body, if
	// any.
	Message string `json:"message"`

	// Raw is the raw response body.
	Raw []byte `json:"-"`

	// Err is the transport error when StatusCode is 0.
	Err error `json:"-"`
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Route, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d (code %d): %s", e.Method, e.Route, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Route, e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// newHTTPError builds an HTTPError from a response, picking up the
// platform's {code, message} body when there is one.
func newHTTPError(req *Request, resp *Response) *HTTPError {
	e := &HTTPError{
		Method:     req.Method,
		Route:      req.Route,
		StatusCode: resp.StatusCode,
		Raw:        resp.Body,
	}
	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		e.Code = body.Code
		e.Message = body.Message
	}
	return e
}

// IsHTTPStatus checks whether err is an *HTTPError with the given
// status code.
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == status
	}
	return false
}
