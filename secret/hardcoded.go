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

package secret

import "github.com/corvidae/cookiejar/cipher"

// hardcodedPassphrase is Chromium's Linux fallback passphrase when no
// secret-service or KWallet backend is available.
const hardcodedPassphrase = "peanuts"

// Hardcoded always succeeds, deriving the Chromium v10 key from the literal
// passphrase "peanuts" with a single PBKDF2 iteration. It is not part of any
// DefaultChain: callers resolve it on its own for the v10 legacy key. It is
// the only resolver this package implements that is available
// cross-platform (it participates in tests on every OS).
type Hardcoded struct{}

// Resolve implements Resolver.
func (Hardcoded) Resolve(Profile) (MasterKey, error) {
	key := cipher.DeriveKey(hardcodedPassphrase, 1, 16)
	return NewMasterKey(key, SourceHardcodedPeanuts), nil
}
