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

//go:build linux

package secret

// DefaultChain returns the platform resolver chain used to obtain the v11
// Chromium key on Linux: libsecret, then KWallet. Chromium's v10 key is
// always the hardcoded "peanuts" passphrase (see Hardcoded), independent of
// whether a secret-service backend is running, so it is never part of this
// chain — a caller needs both keys, not whichever one resolves first.
func DefaultChain() Chain {
	return Chain{Libsecret{}, KWallet{}}
}
