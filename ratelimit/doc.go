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

// Package ratelimit provides the Governor that every outgoing REST
// call passes through before it reaches the network.
//
// The server groups routes into buckets.  A bucket is identified by
// an opaque string that the server reports in a response header, and
// two routes that look unrelated can share one.  The Governor
// remembers which bucket governs each route and when each bucket
// (or the account-wide global limit) next becomes free:
//
//	if err := g.Check(ctx, route); err != nil {
//	    return err // ctx was cancelled while waiting
//	}
//	// ... issue the request ...
//	g.RegisterBucket(route, bucketID)
//	g.SetLimit(ctx, route, resetAt) // after a 429
//
// Check is the only backpressure point.  It blocks the calling
// goroutine until the global window and the route's bucket window
// have both passed.  There is no queue and no priority.
//
// # Buckets
//
// A Bucket is created lazily: the first time a response for a route
// carries a bucket id, or the first time a route without a known
// bucket gets a 429.  In the latter case the bucket is keyed by the
// route itself until the real id shows up, at which point any pending
// window moves to the real bucket.
//
// A bucket blocks only while it is exhausted (Remaining is 0) and its
// ResetAt is in the future.  A 429 marks the bucket exhausted.
// Update lets the caller feed the remaining/reset headers from every
// response so that the Governor can hold requests back before the
// server has to say no.
//
// Buckets are never deleted unless a TTL is configured with
// WithBucketTTL, in which case Sweep (or Janitor) drops buckets whose
// window has passed and that have not been seen for the TTL.
//
// # Sharing
//
// Several processes using one token share one set of server-side
// buckets.  A Store (for example RedisStore) lets Governors in
// different processes see each other's 429 windows.  The Store is
// consulted in addition to local state, and Store errors are logged
// and otherwise ignored: the Governor fails open.
package ratelimit
