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

//go:build darwin

package secret

import (
	"fmt"

	"github.com/keybase/go-keychain"

	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/cookieserr"
)

// macIterations is the PBKDF2 iteration count Chromium uses on macOS.
const macIterations = 1003

// Keychain resolves the Chromium v10 master key by reading the login
// Keychain's "<Channel> Safe Storage" generic password item and applying
// PBKDF2-HMAC-SHA1 with Chromium's fixed salt.
type Keychain struct{}

// Resolve implements Resolver.
func (Keychain) Resolve(profile Profile) (MasterKey, error) {
	service := profile.KeychainService
	if service == "" {
		service = profile.Channel + " Safe Storage"
	}
	account := profile.KeychainAccount
	if account == "" {
		account = profile.Channel
	}

	query := keychain.NewItem()
	query.SetSecClass(keychain.SecClassGenericPassword)
	query.SetService(service)
	query.SetAccount(account)
	query.SetMatchLimit(keychain.MatchLimitOne)
	query.SetReturnData(true)

	results, err := keychain.QueryItem(query)
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: querying keychain for %q/%q: %v", cookieserr.ErrKeyStoreDenied, service, account, err)
	}
	if len(results) == 0 {
		return MasterKey{}, fmt.Errorf("%w: no keychain item for %q/%q", cookieserr.ErrKeyStoreMissing, service, account)
	}

	passphrase := string(results[0].Data)
	key := cipher.DeriveKey(passphrase, macIterations, 16)
	return NewMasterKey(key, SourceKeychain), nil
}
