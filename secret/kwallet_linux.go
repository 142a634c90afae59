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

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/cookieserr"
)

// kwalletDests are tried in order: KWallet 6, then the legacy KWallet 5 bus
// name, since either may be running depending on the Plasma version.
var kwalletDests = []struct {
	dest, path string
}{
	{"org.kde.kwalletd6", "/modules/kwalletd6"},
	{"org.kde.kwalletd5", "/modules/kwalletd5"},
}

// KWallet resolves the Chromium v11 master key from KDE's KWallet service
// over D-Bus, as a fallback when no GNOME libsecret service answers.
type KWallet struct{}

// Resolve implements Resolver.
func (KWallet) Resolve(profile Profile) (MasterKey, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: connecting to session bus: %v", cookieserr.ErrKeyStoreMissing, err)
	}
	defer conn.Close()

	appName := "chromium-cookie-extraction"
	folder := "Chrome Keys"
	entry := profile.Channel

	for _, d := range kwalletDests {
		wallet := conn.Object(d.dest, dbus.ObjectPath(d.path))

		var handle int32
		if err := wallet.Call("org.kde.KWallet.open", 0, "kdewallet", int64(0), appName).
			Store(&handle); err != nil {
			continue
		}

		var pw string
		if err := wallet.Call("org.kde.KWallet.readPassword", 0, handle, folder, entry, appName).
			Store(&pw); err != nil || pw == "" {
			continue
		}

		key := cipher.DeriveKey(pw, 1, 16)
		return NewMasterKey(key, SourceKWallet), nil
	}
	return MasterKey{}, fmt.Errorf("%w: no kwalletd5/6 service answered", cookieserr.ErrKeyStoreMissing)
}
