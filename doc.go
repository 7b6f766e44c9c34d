// Package cordial is a client for a chat platform's bot APIs: a
// Gateway session (package 'gateway') and rate-limited REST calls
// (packages 'rest' and 'ratelimit'), put together in package
// 'client'.
//
// A small command-line bot is in `cmd/cordial`.
package cordial
