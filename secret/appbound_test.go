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
	"bytes"
	"testing"

	"github.com/corvidae/cookiejar/cipher"
)

func TestUnwrapAppBoundKeyRoundTrip(t *testing.T) {
	wantKey := bytes.Repeat([]byte{0x42}, 32)
	iv := bytes.Repeat([]byte{0x01}, 12)

	ct, err := cipher.AESGCMEncrypt(appBoundWrapKey[:], iv, wantKey)
	if err != nil {
		t.Fatalf("AESGCMEncrypt failed: %v", err)
	}

	payload := append([]byte{0x01}, iv...) // flag || iv || ct(incl. tag)
	payload = append(payload, ct...)

	got, err := unwrapAppBoundKey(payload)
	if err != nil {
		t.Fatalf("unwrapAppBoundKey failed: %v", err)
	}
	if !bytes.Equal(got, wantKey) {
		t.Errorf("unwrapAppBoundKey = %x, want %x", got, wantKey)
	}
}

func TestUnwrapAppBoundKeyWrongLength(t *testing.T) {
	if _, err := unwrapAppBoundKey([]byte{1, 2, 3}); err == nil {
		t.Error("unwrapAppBoundKey succeeded on truncated payload")
	}
}
