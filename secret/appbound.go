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
	"fmt"

	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/cookieserr"
)

// appBoundWrapKey is the AES-256 key used to unwrap the per-profile
// app-bound cookie key after the double DPAPI unwrap.
//
// This is placeholder key material (the bytes 0x00 through 0x1f), not the
// constant Chromium's elevation service uses, so real v20 cookies are not
// decrypted: AppBoundV20.Resolve runs the full DPAPI double unwrap and then
// fails at this final unwrap step with ErrDecryptFailed rather than
// returning wrong key material.
var appBoundWrapKey = [32]byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17,
	0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f,
}

// unwrapAppBoundKey decrypts the inner app-bound payload produced by the
// double DPAPI unwrap. Layout: flag[1] || iv[12] || ciphertext(32) || tag[16].
func unwrapAppBoundKey(payload []byte) ([]byte, error) {
	const (
		flagLen = 1
		ivLen   = 12
		tagLen  = 16
		keyLen  = 32
	)
	want := flagLen + ivLen + keyLen + tagLen
	if len(payload) != want {
		return nil, fmt.Errorf("%w: app-bound payload is %d bytes, want %d", cookieserr.ErrFormatCorrupt, len(payload), want)
	}
	iv := payload[flagLen : flagLen+ivLen]
	ct := payload[flagLen+ivLen:]

	key, err := cipher.AESGCMDecrypt(appBoundWrapKey[:], iv, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping app-bound key: %v", cookieserr.ErrDecryptFailed, err)
	}
	return key, nil
}
