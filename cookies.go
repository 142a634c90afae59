// Copyright 2020 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cookies reads and modifies browser cookies extracted from
// locally-installed web browsers.
package cookies

import (
	"strings"
	"time"
)

// C is a format-independent representation of a browser cookie.
type C struct {
	Name   string
	Value  string
	Domain string
	Path   string

	Expires  time.Time // if zero, the cookie is a session cookie
	Created  time.Time
	Flags    Flags
	SameSite SameSite
}

// IsSession reports whether c has no expiration, i.e., is a session cookie.
func (c C) IsSession() bool { return c.Expires.IsZero() }

// SameSite describes a first-party cookie policy. The integer values match
// the tri-state-plus-unspecified encoding used by Chromium's samesite
// column: none=0, lax=1, strict=2, unspecified=-1.
type SameSite int

// Enumerators for SameSite policies.
const (
	Unspecified SameSite = iota - 1 // unknown or unspecified policy
	None                            // unrestricted; sent to all origins
	Lax                             // top-level navigations and 3rd-party GET requests
	Strict                          // first-party context only
)

var sameSiteStrings = map[SameSite]string{
	Unspecified: "Unspecified",
	None:        "None",
	Lax:         "Lax",
	Strict:      "Strict",
}

func (s SameSite) String() string {
	if str, ok := sameSiteStrings[s]; ok {
		return str
	}
	return "Unspecified"
}

// Int returns the raw tri-state-plus-unspecified integer encoding of s.
func (s SameSite) Int() int { return int(s) }

// Flags represents the optional flags that can be set on a cookie.
type Flags struct {
	Secure   bool // only send this cookie on an encrypted connection
	HTTPOnly bool // do not expose this cookie to scripts
}

// An Editor maps between format-specific representation of a cookie and the
// format-independent version.
type Editor interface {
	// Get returns a format-independent representation of the receiver.
	Get() C

	// Set updates the contents of the receiver to match c.
	// It reports an error if c cannot be represented in the format.
	Set(c C) error
}

// An Action specifies the disposition of a cookie processed by the callback to
// the Scan method of a Store.
type Action int

// Values for the Action enumeration.
const (
	Keep    Action = 1 + iota // keep the cookie in the store, unmodified
	Update                    // keep the cookie in the store, with modifications
	Discard                   // discard the cookie from the store
)

var actionStrings = [...]string{"Invalid", "Keep", "Update", "Discard"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionStrings) {
		return actionStrings[0]
	}
	return actionStrings[a]
}

// A ScanFunc is a callback to scan each cookie in a store.
type ScanFunc func(Editor) (Action, error)

// Store is the interface for a collection of cookies.
type Store interface {
	// Scan calls f for each cookie in the store.
	//
	// If f reports an error, scanning stops and that error is returned to the
	// caller of Scan. Otherwise, the cookie is handled according to the Action
	// reported by f.
	//
	// if f returns Discard, the cookie is removed from the store.
	//
	// If f returns Update, the cookie is updated with any modifications made by
	// f via the Editor interface.
	//
	// If f returns Keep, the cookie is retained as-presented, and any
	// modifications made by f are discarded.
	//
	// If f returns an unknown Action value, Scan must report an error.
	Scan(f ScanFunc) error

	// Commit commits any pending modifications to persistent storage.
	Commit() error
}

// DomainMatches reports whether cookieDomain is admitted by the domain
// filter want. An empty want admits everything. Otherwise cookieDomain
// matches if, once a leading "." has been stripped from both sides and
// compared case-insensitively, it equals an entry of want or ends with "."
// followed by that entry (so "notexample.com" does not match "example.com").
func DomainMatches(cookieDomain string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	host := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	for _, d := range want {
		suffix := strings.ToLower(strings.TrimPrefix(d, "."))
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Filter returns the subset of cs whose Domain is admitted by domains,
// preserving order. A nil or empty domains admits every cookie.
func Filter(cs []C, domains []string) []C {
	if len(domains) == 0 {
		return cs
	}
	out := make([]C, 0, len(cs))
	for _, c := range cs {
		if DomainMatches(c.Domain, domains) {
			out = append(out, c)
		}
	}
	return out
}

// ReadAll drains every cookie from s without modification and returns them
// in store order. It is a convenience wrapper around Scan for callers that
// only want to read, never to mutate.
func ReadAll(s Store) ([]C, error) {
	var out []C
	err := s.Scan(func(e Editor) (Action, error) {
		out = append(out, e.Get())
		return Keep, nil
	})
	return out, err
}
