// Package models holds the rate limiting vocabulary shared by stores and the
// HTTP middleware.
package models

import (
	"net/http"
	"time"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassRead   Class = "read"
	ClassWrite  Class = "write"
	ClassUpload Class = "upload"
)

// ClassOf buckets a request: evidence uploads, other mutations, reads.
func ClassOf(r *http.Request) Class {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	}
	if r.URL.Path == "/evidence" {
		return ClassUpload
	}
	return ClassWrite
}

// Limit allows Requests per sliding Window. A zero Requests disables the class.
type Limit struct {
	Requests int
	Window   time.Duration
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is in seconds and only set when not allowed.
	RetryAfter int
}

// RetryAfterSeconds rounds the wait until resetAt up to whole seconds.
func RetryAfterSeconds(now, resetAt time.Time) int {
	wait := resetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	secs := int(wait / time.Second)
	if wait%time.Second != 0 {
		secs++
	}
	return secs
}

type ExceededResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	RetryAfter  int    `json:"retry_after"`
}
