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

// Package chromedb supports reading and modifying a Chromium-family
// cookies database (Chrome, Chromium, Brave, Edge): it understands the
// v10/v11/v20 encrypted_value schemes and the plaintext legacy column.
package chromedb

import (
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/cookieserr"
	"github.com/corvidae/cookiejar/secret"
	"github.com/corvidae/cookiejar/sqlitereader"
)

const (
	readCookiesStmtBase = `
SELECT
  rowid, name, value, encrypted_value, host_key, path,
  expires_utc, creation_utc,
  is_secure, is_httponly, samesite
FROM cookies`

	writeCookieStmt = `
UPDATE cookies SET
  name = $name,
  %[1]s = $value,
  host_key = $host,
  path = $path,
  expires_utc = $expires,
  creation_utc = $created,
  is_secure = $secure,
  is_httponly = $httponly,
  samesite = $samesite
WHERE rowid = $rowid;`

	dropCookieStmt = `DELETE FROM cookies WHERE rowid = $rowid;`

	// The Chrome timestamp epoch in seconds, 1601-01-01T00:00:00Z.
	chromeEpoch = 11644473600

	v10Prefix = "v10"
	v11Prefix = "v11"
	v20Prefix = "v20"

	// appBoundHostBindingLen is the size of the domain/path-bound "host
	// nonce" Chromium v20 plaintexts are prefixed with; it is discarded.
	appBoundHostBindingLen = 32
)

// Open opens the Chromium cookie database at the specified path, using
// sqlitereader so a database the browser still holds open is copied and
// reopened rather than failing outright.
func Open(path string, opts *Options) (*Store, error) {
	h, err := sqlitereader.Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		handle: h,
		opts:   opts.orDefault(),
	}, nil
}

// Options provide optional settings for opening a Chromium cookie database.
// A nil *Options is ready for use, and provides empty values (no
// decryption key, every cookie admitted).
type Options struct {
	// Passphrase, if set and Key is not, derives a 16-byte key locally using
	// PBKDF2-HMAC-SHA1 with Chromium's fixed salt, used for v10 rows (when
	// LegacyKey is unset) and for v11 rows — the legacy path, kept
	// for callers who only have a raw passphrase (as macOS/Linux do) and
	// not a resolved secret.MasterKey.
	Passphrase string
	Iterations int // PBKDF2 iterations for Passphrase; 0 picks a default by OS

	// Key is the resolved non-legacy master key for the platform's primary
	// secret store: Keychain-derived on macOS (v10), secret-service/KWallet
	// -derived on Linux (v11), or DPAPI-derived on Windows (v10). It takes
	// precedence over Passphrase.
	Key secret.MasterKey

	// LegacyKey is the resolved Linux v10 key, derived from Chromium's
	// hardcoded "peanuts" fallback passphrase (secret.Hardcoded). Unlike
	// Key, it never depends on a running secret-service/KWallet daemon and
	// is always resolvable, so it is tracked separately: a database can
	// contain both v10 rows written before a secret-service backend became
	// available and v11 rows written after, and each needs its own key.
	// Unused on macOS/Windows, where only one key scheme applies.
	LegacyKey secret.MasterKey

	// AppBoundKey is the resolved Windows v20 app-bound master key.
	AppBoundKey secret.MasterKey

	// DPAPIUnwrap unwraps a whole-blob DPAPI-encrypted cookie value (the
	// "no prefix" case on Windows). It is nil on non-Windows builds; the
	// Windows façade wires it to the platform DPAPI call so this package
	// stays buildable everywhere.
	DPAPIUnwrap func([]byte) ([]byte, error)

	// OS overrides runtime.GOOS for the purpose of cipher dispatch; used by
	// tests that synthesize cookies for a platform other than the host.
	OS string

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

func (o *Options) os() string {
	if o.OS != "" {
		return o.OS
	}
	return runtime.GOOS
}

// legacyKey derives a key from Passphrase, if set and Key is not
// already populated.
func (o *Options) legacyKey() []byte {
	if o.Key.Len != 0 || o.Passphrase == "" {
		return nil
	}
	iter := o.Iterations
	if iter <= 0 {
		switch o.os() {
		case "darwin":
			iter = 1003
		default:
			iter = 1
		}
	}
	return cipher.DeriveKey(o.Passphrase, iter, 16)
}

// v10Key returns the key for the v10 prefix. On Linux this is always the
// hardcoded-"peanuts" LegacyKey, independent of whichever secret-service
// backend Key was resolved from, since Chromium never uses the
// secret-service key for v10 rows. On macOS and Windows there is only one
// applicable key scheme, so Key (or a Passphrase override) serves both.
func (o *Options) v10Key() []byte {
	if o.os() == "linux" {
		if o.LegacyKey.Len != 0 {
			return o.LegacyKey.Bytes()
		}
		return o.legacyKey()
	}
	if o.Key.Len != 0 {
		return o.Key.Bytes()
	}
	return o.legacyKey()
}

// v11Key returns the secret-service/KWallet-derived key for the v11 prefix
// (Linux only).
func (o *Options) v11Key() []byte {
	if o.Key.Len != 0 {
		return o.Key.Bytes()
	}
	return o.legacyKey()
}

// A Store connects to a collection of cookies stored in an SQLite database
// using the Chromium cookie schema.
type Store struct {
	handle *sqlitereader.Handle
	opts   *Options
}

// Close releases the underlying database handle (and any temporary copy).
func (s *Store) Close() error { return s.handle.Close() }

// Scan satisfies part of the cookies.Store interface.
func (s *Store) Scan(f cookies.ScanFunc) error {
	cs, err := s.readCookies()
	if err != nil {
		return err
	}

	tx, err := s.handle.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range cs {
		act, err := f(c)
		if err != nil {
			return err
		}
		switch act {
		case cookies.Keep:
			continue
		case cookies.Update:
			if err := s.writeCookie(tx, c); err != nil {
				return err
			}
		case cookies.Discard:
			if err := s.dropCookie(tx, c); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown action %v", act)
		}
	}
	return tx.Commit()
}

// Commit satisfies part of the cookies.Store interface.
func (s *Store) Commit() error { return nil }

// readCookies reads all the cookies in the database, applying the domain
// filter at the SQL level as an optimization (advisory only — every row is
// re-checked after decoding, since LIKE over host_key is not equivalent to
// the suffix rule).
func (s *Store) readCookies() ([]*Cookie, error) {
	query, args := s.readCookiesQuery()
	rows, err := s.handle.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cookieserr.ErrSchemaMismatch, err)
	}
	defer rows.Close()

	var cs []*Cookie
	for rows.Next() {
		var rowID, expiresUTC, creationUTC, isSecure, isHTTPOnly, sameSite int64
		var name, value, hostKey, path string
		var encValue []byte
		if err := rows.Scan(&rowID, &name, &value, &encValue, &hostKey, &path,
			&expiresUTC, &creationUTC, &isSecure, &isHTTPOnly, &sameSite); err != nil {
			return nil, err
		}

		if !cookies.DomainMatches(hostKey, s.opts.Domains) {
			continue // post-decode re-check: the SQL LIKE match was advisory only
		}

		plaintext, err := s.decryptValue(value, encValue)
		if err != nil {
			log.Printf("chromedb: skipping cookie %q for %q: %v", name, hostKey, err)
			continue
		}

		cs = append(cs, &Cookie{
			C: cookies.C{
				Name:    name,
				Value:   plaintext,
				Domain:  hostKey,
				Path:    path,
				Expires: timestampToTime(expiresUTC),
				Created: timestampToTime(creationUTC),
				Flags: cookies.Flags{
					Secure:   isSecure != 0,
					HTTPOnly: isHTTPOnly != 0,
				},
				SameSite: decodeSitePolicy(sameSite),
			},
			rowID: rowID,
		})
	}
	return cs, nil
}

func (s *Store) readCookiesQuery() (string, []any) {
	if len(s.opts.Domains) == 0 {
		return readCookiesStmtBase + ";", nil
	}
	var clauses []string
	var args []any
	for _, d := range s.opts.Domains {
		clauses = append(clauses, "host_key LIKE ?")
		args = append(args, "%"+strings.TrimPrefix(d, "."))
	}
	return readCookiesStmtBase + " WHERE " + strings.Join(clauses, " OR ") + ";", args
}

// decryptValue returns the plaintext for a single row. If encValue is
// empty, value is the plaintext already (legacy schema). Otherwise the
// first 3 bytes of encValue select the cipher suite per (prefix, OS).
func (s *Store) decryptValue(value string, encValue []byte) (string, error) {
	if len(encValue) == 0 {
		return value, nil
	}
	if len(encValue) < 3 {
		return "", fmt.Errorf("%w: encrypted_value too short", cookieserr.ErrFormatCorrupt)
	}
	prefix := string(encValue[:3])
	body := encValue[3:]
	osName := s.opts.os()

	switch {
	case prefix == v10Prefix && osName == "windows":
		return s.decryptGCM(body, s.opts.v10Key())

	case prefix == v20Prefix && osName == "windows":
		return s.decryptAppBoundV20(body)

	case prefix == v10Prefix: // Linux: hardcoded-peanuts key; macOS: Keychain-derived key
		return decryptCBC(body, s.opts.v10Key())

	case prefix == v11Prefix: // Linux only: AES-CBC-PKCS7, secret-service-derived key
		return decryptCBC(body, s.opts.v11Key())

	default:
		if osName == "windows" && s.opts.DPAPIUnwrap != nil {
			plain, err := s.opts.DPAPIUnwrap(encValue)
			if err != nil {
				return "", fmt.Errorf("%w: DPAPI unwrap: %v", cookieserr.ErrDecryptFailed, err)
			}
			return string(plain), nil
		}
		return string(encValue), nil
	}
}

func decryptCBC(body, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: no decryption key available", cookieserr.ErrKeyStoreMissing)
	}
	plain, err := cipher.AESCBCPKCS7Decrypt(key, cipher.FixedIV, body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cookieserr.ErrDecryptFailed, err)
	}
	return string(plain), nil
}

func (s *Store) decryptGCM(body, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: no decryption key available", cookieserr.ErrKeyStoreMissing)
	}
	if len(body) < 12+16 {
		return "", fmt.Errorf("%w: v10 body too short for AES-GCM", cookieserr.ErrFormatCorrupt)
	}
	iv, ct := body[:12], body[12:]
	plain, err := cipher.AESGCMDecrypt(key, iv, ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cookieserr.ErrDecryptFailed, err)
	}
	return string(plain), nil
}

func (s *Store) decryptAppBoundV20(body []byte) (string, error) {
	key := s.opts.AppBoundKey.Bytes()
	if len(key) == 0 {
		return "", fmt.Errorf("%w: no app-bound key available", cookieserr.ErrKeyStoreMissing)
	}
	if len(body) < 1+12+16 {
		return "", fmt.Errorf("%w: v20 body too short", cookieserr.ErrFormatCorrupt)
	}
	// flag[1] || iv[12] || ct-with-tag
	iv := body[1:13]
	ct := body[13:]
	plain, err := cipher.AESGCMDecrypt(key, iv, ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", cookieserr.ErrDecryptFailed, err)
	}
	if len(plain) < appBoundHostBindingLen {
		return "", fmt.Errorf("%w: v20 plaintext too short for host-binding prefix", cookieserr.ErrFormatCorrupt)
	}
	return string(plain[appBoundHostBindingLen:]), nil
}

// dropCookie deletes c from the database.
func (s *Store) dropCookie(tx *sql.Tx, c *Cookie) error {
	_, err := tx.Exec(dropCookieStmt, sql.Named("rowid", c.rowID))
	return err
}

// writeCookie writes the current state of c to the store.
func (s *Store) writeCookie(tx *sql.Tx, c *Cookie) error {
	var column, query string
	var value any
	key := s.opts.v10Key()
	if len(key) == 0 {
		column = "value"
		value = c.Value
	} else if enc, err := cipher.AESCBCPKCS7Encrypt(key, cipher.FixedIV, []byte(c.Value)); err != nil {
		return fmt.Errorf("encrypting value: %w", err)
	} else {
		column = "encrypted_value"
		value = append([]byte(v10Prefix), enc...)
	}
	query = fmt.Sprintf(writeCookieStmt, column)

	_, err := tx.Exec(query,
		sql.Named("rowid", c.rowID),
		sql.Named("name", c.Name),
		sql.Named("host", c.Domain),
		sql.Named("path", c.Path),
		sql.Named("expires", timeToTimestamp(c.Expires)),
		sql.Named("created", timeToTimestamp(c.Created)),
		sql.Named("secure", boolToInt(c.Flags.Secure)),
		sql.Named("httponly", boolToInt(c.Flags.HTTPOnly)),
		sql.Named("samesite", encodeSitePolicy(c.SameSite)),
		sql.Named("value", value),
	)
	return err
}

// A Cookie represents a single cookie from a Chromium database.
//
// Values are automatically decrypted according to the Store's Options. If
// no decryption key is available for an encrypted row, that row is skipped
// entirely rather than surfaced with placeholder content, per the
// extraction pipeline's best-effort row semantics.
type Cookie struct {
	cookies.C

	rowID int64
}

// Get satisfies part of the cookies.Editor interface.
func (c *Cookie) Get() cookies.C { return c.C }

// Set satisfies part of the cookies.Editor interface.
func (c *Cookie) Set(o cookies.C) error { c.C = o; return nil }

// decodeSitePolicy maps a Chromium SameSite column value to the generic enum.
func decodeSitePolicy(v int64) cookies.SameSite {
	switch v {
	case 0:
		return cookies.None
	case 1:
		return cookies.Lax
	case 2:
		return cookies.Strict
	default:
		return cookies.Unspecified
	}
}

// encodeSitePolicy maps a generic SameSite policy to the Chromium column value.
func encodeSitePolicy(p cookies.SameSite) int64 {
	switch p {
	case cookies.None:
		return 0
	case cookies.Lax:
		return 1
	case cookies.Strict:
		return 2
	default:
		return -1 // unspecified
	}
}

// timestampToTime converts a value in microseconds since the Chrome epoch
// to a time in UTC. A zero input (session cookie) converts to the zero
// time.Time, matching cookies.C.IsSession.
func timestampToTime(usec int64) time.Time {
	if usec == 0 {
		return time.Time{}
	}
	sec := usec/1e6 - chromeEpoch
	if sec < 0 {
		sec = 0
	}
	nano := (usec % 1e6) * 1000
	return time.Unix(sec, nano).In(time.UTC)
}

// timeToTimestamp converts a time value to microseconds since the Chrome
// epoch. The zero time.Time converts back to 0 (session cookie).
func timeToTimestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	sec := t.Unix() + chromeEpoch
	usec := int64(t.Nanosecond()) / 1000
	return sec*1e6 + usec
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
