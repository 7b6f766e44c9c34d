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

// Package rest turns a method, route and body into an HTTP call that
// always goes through a ratelimit.Governor first.
//
// A 429 never reaches the caller.  The Dispatcher records the window
// with the Governor and tries again, up to MaxRetries times.  Other
// unexpected statuses come back as *HTTPError when the request asks
// for that.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Comcast/cordial/ratelimit"
	"github.com/Comcast/cordial/util"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the REST API root.
	DefaultBaseURL = "https://discord.com/api/v10"

	// DefaultMaxRetries is the number of 429 retries before
	// Dispatch gives up.
	DefaultMaxRetries = 5

	// DefaultTimeout bounds each HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryAfter is used when a 429 doesn't say how long to
	// wait.
	DefaultRetryAfter = time.Second

	// Version is reported in the default User-Agent.
	Version = "0.3.0"
)

// DefaultUserAgent follows the platform's required format.
var DefaultUserAgent = fmt.Sprintf("DiscordBot (https://github.com/Comcast/cordial, %s)", Version)

// Config holds what's needed to make a Dispatcher.
type Config struct {
	// Token is the bot token.  Required.
	Token string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// HTTPClient is used for all requests.  If nil, a client with
	// Timeout is made.
	HTTPClient *http.Client

	// Timeout is used only when HTTPClient is nil.  Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// Governor defaults to a new, private Governor.
	Governor *ratelimit.Governor

	// MaxRetries is the 429 retry budget.  Zero means
	// DefaultMaxRetries and a negative value disables retries.
	MaxRetries int

	Logger *zerolog.Logger
	Debug  bool
}

// Dispatcher issues governed REST calls.  A Dispatcher is safe for
// concurrent use.
type Dispatcher struct {
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	governor   *ratelimit.Governor
	maxRetries int
	logger     zerolog.Logger
	debug      bool
}

// NewDispatcher makes a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("rest: Token is required")
	}

	d := &Dispatcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		governor:   cfg.Governor,
		maxRetries: cfg.MaxRetries,
		logger:     util.Component(cfg.Logger, "rest"),
		debug:      cfg.Debug,
	}
	if d.baseURL == "" {
		d.baseURL = DefaultBaseURL
	}
	if d.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		d.httpClient = &http.Client{Timeout: timeout}
	}
	if d.governor == nil {
		d.governor = ratelimit.NewGovernor(ratelimit.WithLogger(cfg.Logger))
	}
	switch {
	case d.maxRetries == 0:
		d.maxRetries = DefaultMaxRetries
	case d.maxRetries < 0:
		d.maxRetries = 0
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	d.headers = http.Header{
		"Authorization": []string{"Bot " + cfg.Token},
		"User-Agent":    []string{ua},
		"Content-Type":  []string{"application/json"},
	}

	return d, nil
}

// Governor returns the Governor that gates this Dispatcher.
func (d *Dispatcher) Governor() *ratelimit.Governor {
	return d.governor
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.debug {
		d.logger.Debug().Msgf(format, args...)
	}
}

// Dispatch makes the request and returns the decoded JSON body, or nil
// if the body was empty.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (interface{}, error) {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Value()
}

// DispatchInto makes the request and decodes the body into out.
func (d *Dispatcher) DispatchInto(ctx context.Context, req *Request, out interface{}) error {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Do makes the request and returns the raw Response.
//
// Do waits on the Governor before every attempt, absorbs up to
// MaxRetries 429 responses, and registers bucket ids it hears about.
func (d *Dispatcher) Do(ctx context.Context, req *Request) (*Response, error) {
	body, err := req.encodeBody()
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if err := d.governor.Check(ctx, req.Route); err != nil {
			return nil, err
		}

		resp, err := d.send(ctx, req, body)
		if err != nil {
			return nil, &HTTPError{
				Method: req.Method,
				Route:  req.Route,
				Err:    err,
			}
		}
		d.logf("%s %s -> %d %s", req.Method, req.Route, resp.StatusCode, resp.Body)

		// Register the bucket before recording any 429 so that
		// the window lands on the bucket the route shares.
		if id := resp.Header.Get(HeaderBucket); id != "" && !d.governor.IsKnownRoute(req.Route) {
			d.governor.RegisterBucket(req.Route, id)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter, global := resp.parseThrottle()
			key := req.Route
			if global {
				key = ratelimit.GlobalKey
			}
			d.governor.SetLimit(ctx, key, time.Now().Add(retryAfter))

			if d.maxRetries <= attempt {
				return nil, fmt.Errorf("%s %s after %d attempts: %w",
					req.Method, req.Route, attempt+1, RetriesExhausted)
			}
			d.logger.Debug().Str("route", req.Route).Dur("retryAfter", retryAfter).
				Bool("global", global).Int("attempt", attempt+1).Msg("retrying after 429")
			continue
		}

		if remaining, resetAt, ok := resp.limitHeaders(time.Now()); ok {
			d.governor.Update(req.Route, remaining, resetAt)
		}

		if req.RaiseOnError && req.failed(resp) {
			return nil, newHTTPError(req, resp)
		}
		return resp, nil
	}
}

// send does one HTTP round trip.
func (d *Dispatcher) send(ctx context.Context, req *Request, body []byte) (*Response, error) {
	base := d.baseURL
	if req.BaseURL != "" {
		base = strings.TrimRight(req.BaseURL, "/")
	}
	url := base + "/" + strings.TrimLeft(req.Route, "/")
	if 0 < len(req.Query) {
		url += "?" + req.Query.Encode()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, url, r)
	if err != nil {
		return nil, err
	}
	for k, vs := range d.headers {
		hreq.Header[k] = vs
	}
	for k, vs := range req.Headers {
		hreq.Header[http.CanonicalHeaderKey(k)] = vs
	}

	hresp, err := d.httpClient.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	bs, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       bs,
	}, nil
}
