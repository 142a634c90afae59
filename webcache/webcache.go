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

//go:build webcache

// Package webcache reads cookies out of the legacy Internet Explorer / Edge
// WebCacheV01.dat container, an Extensible Storage Engine (ESE) database.
// It is excluded from ordinary builds by the "webcache" build tag: most
// callers only need the Chromium, Firefox, and Safari extractors, and the
// ESE format is a niche addition kept for completeness.
package webcache

import (
	"fmt"
	"strings"
	"time"

	"github.com/browserutils/ese"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/cookieserr"
)

// cookiesTable is the ESE table WebCacheV01.dat stores cookie entries in.
const cookiesTable = "Cookies"

// Open opens the WebCacheV01.dat database at path and returns a Store over
// its Cookies table.
func Open(path string, opts *Options) (*Store, error) {
	db, err := ese.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", cookieserr.ErrDBNotFound, path, err)
	}
	return &Store{db: db, opts: opts.orDefault()}, nil
}

// Options are optional settings for a Store.
// A nil *Options is ready for use with default settings.
type Options struct {
	// Domains restricts results to cookies whose host matches one of these
	// suffixes (see cookies.DomainMatches). Empty admits everything.
	Domains []string
}

func (o *Options) orDefault() *Options {
	if o == nil {
		return &Options{}
	}
	return o
}

// A Store reads (read-only) the Cookies table of a WebCacheV01.dat file.
// IE/Edge-legacy cookies are not re-writable through this package: the ESE
// format's transaction log makes safe in-place modification out of scope,
// so Commit always returns nil and Scan rejects Update/Discard actions.
type Store struct {
	db   *ese.Database
	opts *Options
}

// Close releases the underlying ESE database handle.
func (s *Store) Close() error { return s.db.Close() }

// Scan implements part of the cookies.Store interface. Only the Keep
// action is meaningful; Update and Discard report an error since this
// package does not support writing.
func (s *Store) Scan(f cookies.ScanFunc) error {
	table, err := s.db.Table(cookiesTable)
	if err != nil {
		return fmt.Errorf("%w: %v", cookieserr.ErrSchemaMismatch, err)
	}

	rows, err := table.Rows()
	if err != nil {
		return fmt.Errorf("%w: %v", cookieserr.ErrSchemaMismatch, err)
	}
	for _, row := range rows {
		c, err := decodeRow(row)
		if err != nil {
			continue // malformed row; skip rather than abort the whole scan
		}
		if !cookies.DomainMatches(c.Domain, s.opts.Domains) {
			continue
		}
		act, err := f(&readOnlyEditor{c: c})
		if err != nil {
			return err
		}
		if act != cookies.Keep {
			return fmt.Errorf("webcache: %v not supported for IE/Edge-legacy cookies", act)
		}
	}
	return nil
}

// Commit implements part of the cookies.Store interface; this package is
// read-only, so Commit is a no-op.
func (s *Store) Commit() error { return nil }

type readOnlyEditor struct{ c cookies.C }

func (e *readOnlyEditor) Get() cookies.C { return e.c }
func (e *readOnlyEditor) Set(cookies.C) error {
	return fmt.Errorf("webcache: cookies are read-only")
}

// decodeRow maps one ESE Cookies-table row to a cookies.C. The exact column
// set is the same one Internet Explorer's WinINet layer uses: RDomain (the
// reversed domain name, e.g. "moc.elpmaxe"), Name, Value (opaque, stored as
// "name=value; attrs" text), and two FILETIME-ish columns for expiry and
// last-modified.
func decodeRow(row map[string]any) (cookies.C, error) {
	rdomain, _ := row["RDomain"].(string)
	name, _ := row["Name"].(string)
	value, _ := row["Value"].(string)
	if name == "" {
		return cookies.C{}, fmt.Errorf("%w: empty cookie name", cookieserr.ErrFormatCorrupt)
	}

	var expires time.Time
	if raw, ok := row["ExpiryTime"].(int64); ok && raw != 0 {
		expires = filetimeToTime(raw)
	}
	var created time.Time
	if raw, ok := row["LastModified"].(int64); ok && raw != 0 {
		created = filetimeToTime(raw)
	}

	return cookies.C{
		Name:    name,
		Value:   trimValue(value),
		Domain:  reverseDomain(rdomain),
		Path:    "/",
		Expires: expires,
		Created: created,
	}, nil
}

// reverseDomain undoes WebCacheV01.dat's reversed-domain indexing key, e.g.
// "moc.elpmaxe" becomes "example.com".
func reverseDomain(rdomain string) string {
	parts := strings.Split(rdomain, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	for i, p := range parts {
		b := []byte(p)
		for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
			b[l], b[r] = b[r], b[l]
		}
		parts[i] = string(b)
	}
	return strings.Join(parts, ".")
}

// trimValue strips the "name=" prefix WebCacheV01.dat stores the raw
// Set-Cookie value with, if present.
func trimValue(v string) string {
	if i := strings.IndexByte(v, '='); i >= 0 {
		return v[i+1:]
	}
	return v
}

// the Windows FILETIME epoch, 1601-01-01T00:00:00Z, in 100ns ticks since
// the Unix epoch is 116444736000000000.
const filetimeToUnixTicks = 116444736000000000

func filetimeToTime(ticks int64) time.Time {
	unixTicks := ticks - filetimeToUnixTicks
	sec := unixTicks / 1e7
	nsec := (unixTicks % 1e7) * 100
	return time.Unix(sec, nsec).UTC()
}
