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

// Package secret resolves the master key Chromium uses to encrypt cookie
// values, one platform-specific provider at a time: Windows DPAPI and
// App-Bound Encryption, macOS Keychain Services, and Linux
// libsecret/KWallet with a hardcoded fallback passphrase.
package secret

import "github.com/corvidae/cookiejar/cookieserr"

// Source identifies which provider produced a MasterKey.
type Source int

// Enumerators for Source.
const (
	SourceUnknown Source = iota
	SourceDPAPI
	SourceAppBoundV20
	SourceKeychain
	SourceGnomeLibsecret
	SourceKWallet
	SourceHardcodedPeanuts
)

var sourceStrings = [...]string{
	"unknown", "dpapi", "app_bound_v20", "keychain",
	"gnome_libsecret", "kwallet", "hardcoded_peanuts",
}

func (s Source) String() string {
	if s < 0 || int(s) >= len(sourceStrings) {
		return sourceStrings[0]
	}
	return sourceStrings[s]
}

// MasterKey is opaque 32-byte symmetric key material, tagged with the
// provider that produced it. Chromium's v10/v11 keys are 16 bytes; they are
// stored left-aligned in Key with the remainder zero, and callers must
// slice with Len, never assume the full 32 bytes are key material.
type MasterKey struct {
	Key    [32]byte
	Len    int
	Source Source
}

// Bytes returns the valid key material, Len bytes long.
func (k MasterKey) Bytes() []byte { return k.Key[:k.Len] }

// NewMasterKey copies key into a MasterKey tagged with source. It panics if
// key is longer than 32 bytes, which should never happen for any provider
// in this package.
func NewMasterKey(key []byte, source Source) MasterKey {
	if len(key) > 32 {
		panic("secret: key material exceeds 32 bytes")
	}
	var mk MasterKey
	copy(mk.Key[:], key)
	mk.Len = len(key)
	mk.Source = source
	return mk
}

// Zero overwrites the key material in place. Callers should defer Zero on
// every MasterKey they resolve, per the "held in memory for the duration of
// the call and zeroized before return" resource model.
func (k *MasterKey) Zero() {
	for i := range k.Key {
		k.Key[i] = 0
	}
	k.Len = 0
}

// Profile is the minimal subset of a BrowserProfile descriptor a Resolver
// needs: the channel name (e.g. "Chrome", "Chromium", "Brave") used to
// address a platform secret store symbolically, and the directories that
// hold a Local State / encrypted-key file on Windows.
type Profile struct {
	Channel         string
	DataDirs        []string
	KeychainService string // macOS: defaults to "<Channel> Safe Storage"
	KeychainAccount string // macOS: defaults to Channel
}

// Resolver resolves the MasterKey for a browser profile. Implementations
// must not retain any reference to profile or the resolved key beyond the
// call; there is no process-wide mutable state in this package.
type Resolver interface {
	Resolve(profile Profile) (MasterKey, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(Profile) (MasterKey, error)

// Resolve calls f(profile).
func (f ResolverFunc) Resolve(profile Profile) (MasterKey, error) { return f(profile) }

// Chain tries each Resolver in order and returns the first success. If
// every resolver fails, Chain returns the last error observed unchanged, so
// the caller can still classify it with errors.Is against cookieserr.
type Chain []Resolver

// Resolve implements Resolver. An empty Chain reports ErrKeyStoreMissing.
func (c Chain) Resolve(profile Profile) (MasterKey, error) {
	var lastErr error = cookieserr.ErrKeyStoreMissing
	for _, r := range c {
		key, err := r.Resolve(profile)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return MasterKey{}, lastErr
}
