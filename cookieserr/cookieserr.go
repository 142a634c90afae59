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

// Package cookieserr defines the sentinel error values shared by every
// extractor so callers can classify a failure with errors.Is regardless of
// which store or platform produced it.
package cookieserr

import "errors"

// Sentinel errors for the extraction pipeline. Wrap these with fmt.Errorf's
// %w verb to add call-site context; never replace them with bespoke errors,
// so errors.Is keeps working across packages.
var (
	// ErrProfileNotFound means the caller-supplied BrowserProfile does not
	// resolve to an existing browser installation.
	ErrProfileNotFound = errors.New("cookieserr: browser profile not found")

	// ErrDBNotFound means the cookie database file does not exist at the
	// expected path.
	ErrDBNotFound = errors.New("cookieserr: cookie database not found")

	// ErrDBLockedAfterCopy means the database was locked and a copy-based
	// retry was attempted, but the copy could still not be opened.
	ErrDBLockedAfterCopy = errors.New("cookieserr: cookie database locked even after copy")

	// ErrSchemaMismatch means the database does not have the columns the
	// extractor expects.
	ErrSchemaMismatch = errors.New("cookieserr: cookie database schema mismatch")

	// ErrKeyStoreDenied means the OS secret store refused access (e.g. the
	// app-bound decryption requires administrator rights that were not
	// granted). This is not necessarily fatal to the caller: v10 cookies
	// may still be readable even when v20 key resolution is denied.
	ErrKeyStoreDenied = errors.New("cookieserr: key store access denied")

	// ErrKeyStoreMissing means no secret store was available at all (no
	// keychain, no libsecret/kwallet service, no Local State file).
	ErrKeyStoreMissing = errors.New("cookieserr: key store not available")

	// ErrDecryptFailed means a single cookie value's ciphertext or
	// authentication tag did not verify under the resolved key. Per the
	// propagation policy, this is row-scoped: callers log and skip, they do
	// not abort the whole extraction.
	ErrDecryptFailed = errors.New("cookieserr: cookie value decryption failed")

	// ErrFormatCorrupt means a binary format (Cookies.binarycookies, WebCache
	// ESE pages) failed to parse.
	ErrFormatCorrupt = errors.New("cookieserr: cookie file format is corrupt")

	// ErrUnsupportedPlatform means the requested operation has no
	// implementation on runtime.GOOS.
	ErrUnsupportedPlatform = errors.New("cookieserr: unsupported platform")
)
