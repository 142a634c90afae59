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

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corvidae/cookiejar/cookieserr"
)

// localState models the subset of Chromium's "Local State" JSON file this
// package needs.
type localState struct {
	OSCrypt struct {
		EncryptedKey        string `json:"encrypted_key"`
		AppBoundEncryptedKey string `json:"app_bound_encrypted_key"`
	} `json:"os_crypt"`
}

const (
	dpapiTag    = "DPAPI"
	appBoundTag = "APPB"
)

// readLocalState loads and parses Local State from the first of dataDirs
// that contains it.
func readLocalState(dataDirs []string) (localState, error) {
	var ls localState
	for _, dir := range dataDirs {
		path := filepath.Join(dir, "Local State")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return ls, fmt.Errorf("reading %q: %w", path, err)
		}
		if err := json.Unmarshal(data, &ls); err != nil {
			return ls, fmt.Errorf("parsing %q: %w", path, err)
		}
		return ls, nil
	}
	return ls, fmt.Errorf("%w: no Local State in %v", cookieserr.ErrKeyStoreMissing, dataDirs)
}

// decodeEncryptedKey base64-decodes s and strips the given ASCII tag
// ("DPAPI" or "APPB") from its front.
func decodeEncryptedKey(s, tag string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decoding encrypted key: %w", err)
	}
	if len(raw) < len(tag) || string(raw[:len(tag)]) != tag {
		return nil, fmt.Errorf("%w: encrypted key missing %q tag", cookieserr.ErrKeyStoreMissing, tag)
	}
	return raw[len(tag):], nil
}
