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

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Comcast/cordial/util"

	"github.com/rs/zerolog"
)

// GlobalKey is the reserved key for the account-wide limit.
const GlobalKey = "global"

// Unknown is the Remaining value of a bucket whose limit hasn't been
// reported yet.
const Unknown = -1

// Bucket is a server-defined throttling window shared by one or more
// routes.
type Bucket struct {
	// ID is the server's opaque bucket identifier, or the route
	// itself for a bucket created by a 429 before any id was
	// known.
	ID string `json:"id"`

	// ResetAt is when the window reopens.
	ResetAt time.Time `json:"resetAt"`

	// Remaining is the number of requests left in the window or
	// Unknown.
	Remaining int `json:"remaining"`

	// LastSeen is the last time a response touched this bucket.
	LastSeen time.Time `json:"lastSeen"`
}

// Exhausted reports whether the bucket blocks requests at the given
// time.
func (b Bucket) Exhausted(now time.Time) bool {
	return b.Remaining == 0 && b.ResetAt.After(now)
}

// Governor tracks route-to-bucket assignments and the windows of
// those buckets.  A Governor is safe for concurrent use.
type Governor struct {
	// Debug turns on chatty logging.
	Debug bool

	mu      sync.Mutex
	routes  map[string]string
	buckets map[string]*Bucket
	global  Bucket

	store    Store
	recorder Recorder
	ttl      time.Duration
	logger   zerolog.Logger

	now func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithStore shares limit windows through the given Store.
func WithStore(s Store) Option {
	return func(g *Governor) {
		g.store = s
	}
}

// WithRecorder injects a metrics backend.
func WithRecorder(r Recorder) Option {
	return func(g *Governor) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithBucketTTL enables eviction of idle buckets by Sweep.  Zero (the
// default) keeps every bucket forever.
func WithBucketTTL(ttl time.Duration) Option {
	return func(g *Governor) {
		g.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(g *Governor) {
		g.logger = util.Component(l, "ratelimit")
	}
}

// NewGovernor makes a Governor with no known routes.
func NewGovernor(opts ...Option) *Governor {
	g := &Governor{
		routes:   make(map[string]string, 64),
		buckets:  make(map[string]*Bucket, 64),
		global:   Bucket{ID: GlobalKey, Remaining: Unknown},
		recorder: &NoOpRecorder{},
		logger:   util.Component(nil, "ratelimit"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Governor) debugf(format string, args ...interface{}) {
	if g.Debug {
		g.logger.Debug().Msgf(format, args...)
	}
}

// Check blocks until neither the global limit nor the bucket that
// governs the route is in effect.  Check returns ctx.Err() if the
// context is done first.
func (g *Governor) Check(ctx context.Context, route string) error {
	var (
		start  = g.now()
		waited bool
	)
	for {
		until, key := g.blockedUntil(ctx, route)
		d := until.Sub(g.now())
		if d <= 0 {
			if waited {
				g.recorder.Observe(MetricWait, g.now().Sub(start).Seconds(),
					map[string]string{"key": key})
			}
			return nil
		}
		waited = true
		g.debugf("Check %s blocked by %s for %s", route, key, d)

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		// Loop: the window might have been extended while we
		// slept.
	}
}

// blockedUntil returns the latest instant that blocks the route along
// with the key (bucket id or GlobalKey) responsible.
func (g *Governor) blockedUntil(ctx context.Context, route string) (time.Time, string) {
	g.mu.Lock()
	now := g.now()
	var (
		until time.Time
		key   string
	)
	if g.global.Exhausted(now) {
		until, key = g.global.ResetAt, GlobalKey
	}
	id := g.bucketID(route)
	if b, have := g.buckets[id]; have && b.Exhausted(now) && b.ResetAt.After(until) {
		until, key = b.ResetAt, id
	}
	g.mu.Unlock()

	if g.store == nil {
		return until, key
	}

	for _, k := range []string{GlobalKey, id} {
		at, err := g.store.Reset(ctx, k)
		if err != nil {
			g.logger.Warn().Err(err).Str("key", k).Msg("shared store read failed")
			continue
		}
		if at.After(until) {
			until, key = at, k
		}
	}
	return until, key
}

// bucketID returns the id of the bucket for the route.  Routes with no
// known bucket are their own bucket.
//
// Caller must hold g.mu.
func (g *Governor) bucketID(route string) string {
	if id, have := g.routes[route]; have {
		return id
	}
	return route
}

// bucket gets or creates the bucket with the given id.
//
// Caller must hold g.mu.
func (g *Governor) bucket(id string) *Bucket {
	b, have := g.buckets[id]
	if !have {
		b = &Bucket{
			ID:        id,
			Remaining: Unknown,
		}
		g.buckets[id] = b
	}
	return b
}

// RegisterBucket records that the route is governed by the bucket.
// Registering the same pair again does nothing.
//
// If the route had a route-keyed bucket from an earlier 429, its
// window moves to the real bucket.
func (g *Governor) RegisterBucket(route, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, have := g.routes[route]; have && current == id {
		return
	}
	g.debugf("RegisterBucket %s -> %s", route, id)
	g.routes[route] = id
	b := g.bucket(id)
	b.LastSeen = g.now()

	if route == id {
		return
	}
	if pending, have := g.buckets[route]; have {
		if pending.ResetAt.After(b.ResetAt) {
			b.ResetAt = pending.ResetAt
			b.Remaining = pending.Remaining
		}
		delete(g.buckets, route)
	}
}

// IsKnownRoute reports whether the route has been registered.
func (g *Governor) IsKnownRoute(route string) bool {
	g.mu.Lock()
	_, have := g.routes[route]
	g.mu.Unlock()
	return have
}

// SetLimit records that the route's bucket (or the global limit when
// key is GlobalKey) is closed until resetAt.  A window never shrinks:
// an earlier resetAt than the one already recorded is ignored.
func (g *Governor) SetLimit(ctx context.Context, key string, resetAt time.Time) {
	g.mu.Lock()
	var b *Bucket
	if key == GlobalKey {
		b = &g.global
	} else {
		b = g.bucket(g.bucketID(key))
	}
	if resetAt.After(b.ResetAt) || !b.ResetAt.After(g.now()) {
		b.ResetAt = resetAt
	}
	b.Remaining = 0
	b.LastSeen = g.now()
	id := b.ID
	resetAt = b.ResetAt
	g.mu.Unlock()

	g.recorder.Add(MetricLimited, 1, map[string]string{"key": id})
	g.logger.Info().Str("bucket", id).Str("route", key).Time("reset", resetAt).Msg("rate limited")

	if g.store != nil {
		if err := g.store.SetReset(ctx, id, resetAt); err != nil {
			g.logger.Warn().Err(err).Str("key", id).Msg("shared store write failed")
		}
	}
}

// Update records the remaining request count and reset time reported
// with an ordinary response for the route.  A remaining count of zero
// closes the bucket until resetAt.  A closed window that ends after
// resetAt is kept: responses to requests that were already in flight
// can't reopen it.
func (g *Governor) Update(route string, remaining int, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b := g.bucket(g.bucketID(route))
	if b.Exhausted(now) && resetAt.Before(b.ResetAt) {
		b.LastSeen = now
		return
	}
	b.Remaining = remaining
	b.ResetAt = resetAt
	b.LastSeen = now
}

// Bucket returns a copy of the bucket governing the route.
func (g *Governor) Bucket(route string) (Bucket, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, have := g.buckets[g.bucketID(route)]
	if !have {
		return Bucket{}, false
	}
	return *b, true
}

// Global returns a copy of the global limit.
func (g *Governor) Global() Bucket {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.global
}

// Sweep drops buckets whose window has passed and that have not been
// seen for the configured TTL, along with the routes that point to
// them.  Sweep returns the number of buckets dropped.
func (g *Governor) Sweep(now time.Time) int {
	if g.ttl <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for id, b := range g.buckets {
		if b.ResetAt.After(now) || now.Sub(b.LastSeen) < g.ttl {
			continue
		}
		delete(g.buckets, id)
		n++
	}
	for route, id := range g.routes {
		if _, have := g.buckets[id]; !have {
			delete(g.routes, route)
		}
	}
	if 0 < n {
		g.recorder.Add(MetricEvicted, float64(n), nil)
		g.debugf("Sweep evicted %d buckets", n)
	}
	return n
}

// Janitor calls Sweep every interval until the context is done.
func (g *Governor) Janitor(ctx context.Context, interval time.Duration) {
	if g.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.Sweep(now)
		}
	}
}
