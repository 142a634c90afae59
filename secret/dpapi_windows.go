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

//go:build windows

package secret

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/corvidae/cookiejar/cookieserr"
)

var (
	modcrypt32               = windows.NewLazySystemDLL("crypt32.dll")
	procCryptUnprotectData   = modcrypt32.NewProc("CryptUnprotectData")
	procCryptProtectData     = modcrypt32.NewProc("CryptProtectData")
)

// cryptBlob mirrors the Win32 DATA_BLOB structure.
type cryptBlob struct {
	cbData uint32
	pbData *byte
}

func newBlob(data []byte) cryptBlob {
	if len(data) == 0 {
		return cryptBlob{}
	}
	return cryptBlob{cbData: uint32(len(data)), pbData: &data[0]}
}

func (b cryptBlob) bytes() []byte {
	if b.cbData == 0 {
		return nil
	}
	return unsafe.Slice(b.pbData, int(b.cbData))
}

// dpapiUnprotect calls CryptUnprotectData under the current user's scope
// (or, with localMachine set, at machine/SYSTEM scope) and returns the
// decrypted plaintext. The Windows heap buffer allocated by the API is
// freed with LocalFree after copying the plaintext out.
func dpapiUnprotect(data []byte, localMachine bool) ([]byte, error) {
	in := newBlob(data)
	var out cryptBlob

	var flags uintptr
	const cryptprotectUIForbidden = 0x1
	const cryptprotectLocalMachine = 0x4
	flags = cryptprotectUIForbidden
	if localMachine {
		flags |= cryptprotectLocalMachine
	}

	r, _, err := procCryptUnprotectData.Call(
		uintptr(unsafe.Pointer(&in)),
		0, // ppszDataDescr
		0, // pOptionalEntropy
		0, // pvReserved
		0, // pPromptStruct
		flags,
		uintptr(unsafe.Pointer(&out)),
	)
	if r == 0 {
		return nil, fmt.Errorf("%w: CryptUnprotectData: %v", cookieserr.ErrKeyStoreDenied, err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.pbData)))

	plaintext := make([]byte, out.cbData)
	copy(plaintext, out.bytes())
	return plaintext, nil
}

// dpapiProtect calls CryptProtectData under the current user's scope. It is
// provided for completeness of the symmetric API; this package only reads
// cookies, and nothing in the module calls it.
func dpapiProtect(data []byte) ([]byte, error) {
	in := newBlob(data)
	var out cryptBlob

	r, _, err := procCryptProtectData.Call(
		uintptr(unsafe.Pointer(&in)),
		0, 0, 0, 0, 0,
		uintptr(unsafe.Pointer(&out)),
	)
	if r == 0 {
		return nil, fmt.Errorf("%w: CryptProtectData: %v", cookieserr.ErrKeyStoreDenied, err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.pbData)))

	ciphertext := make([]byte, out.cbData)
	copy(ciphertext, out.bytes())
	return ciphertext, nil
}

// DPAPI resolves the Chromium v10 master key by reading Local State's
// os_crypt.encrypted_key, stripping the "DPAPI" tag, and unwrapping the
// remainder with CryptUnprotectData at the current user's scope.
type DPAPI struct{}

// Resolve implements Resolver.
func (DPAPI) Resolve(profile Profile) (MasterKey, error) {
	ls, err := readLocalState(profile.DataDirs)
	if err != nil {
		return MasterKey{}, err
	}
	if ls.OSCrypt.EncryptedKey == "" {
		return MasterKey{}, fmt.Errorf("%w: os_crypt.encrypted_key missing", cookieserr.ErrKeyStoreMissing)
	}
	wrapped, err := decodeEncryptedKey(ls.OSCrypt.EncryptedKey, dpapiTag)
	if err != nil {
		return MasterKey{}, err
	}
	key, err := dpapiUnprotect(wrapped, false)
	if err != nil {
		return MasterKey{}, err
	}
	return NewMasterKey(key, SourceDPAPI), nil
}

// AppBoundV20 resolves the Chromium >=127 "app-bound" v20 master key:
// os_crypt.app_bound_encrypted_key is stripped of its "APPB" tag, unwrapped
// with CryptUnprotectData at SYSTEM scope and then again at user scope, and
// the inner payload (flag byte, 12-byte IV, AES-GCM ciphertext, 16-byte tag)
// is decrypted with the hardcoded elevation-service AES key to recover the
// 32-byte cookie key.
type AppBoundV20 struct{}

// Resolve implements Resolver. Because the SYSTEM-scope unwrap requires
// administrator rights, a permission failure here is reported as
// ErrKeyStoreDenied, not a fatal condition for v10 extraction.
func (AppBoundV20) Resolve(profile Profile) (MasterKey, error) {
	ls, err := readLocalState(profile.DataDirs)
	if err != nil {
		return MasterKey{}, err
	}
	if ls.OSCrypt.AppBoundEncryptedKey == "" {
		return MasterKey{}, fmt.Errorf("%w: os_crypt.app_bound_encrypted_key missing", cookieserr.ErrKeyStoreMissing)
	}
	wrapped, err := decodeEncryptedKey(ls.OSCrypt.AppBoundEncryptedKey, appBoundTag)
	if err != nil {
		return MasterKey{}, err
	}

	systemUnwrapped, err := dpapiUnprotect(wrapped, true)
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: SYSTEM-scope unwrap requires administrator rights: %v", cookieserr.ErrKeyStoreDenied, err)
	}
	userUnwrapped, err := dpapiUnprotect(systemUnwrapped, false)
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: user-scope unwrap: %v", cookieserr.ErrKeyStoreDenied, err)
	}

	key, err := unwrapAppBoundKey(userUnwrapped)
	if err != nil {
		return MasterKey{}, err
	}
	return NewMasterKey(key, SourceAppBoundV20), nil
}
