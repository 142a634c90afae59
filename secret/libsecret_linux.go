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
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/cookieserr"
)

const (
	secretServiceDest = "org.freedesktop.secrets"
	secretServicePath = "/org/freedesktop/secrets"

	schemaV2 = "chrome_libsecret_os_crypt_password_v2"
	schemaV1 = "chrome_libsecret_os_crypt_password_v1"
)

// Libsecret resolves the Chromium v11 master key from the freedesktop
// Secret Service (GNOME Keyring and compatible backends) over D-Bus.
//
// Probe order is schema v2 before v1, and application "chrome" before
// "chromium" — this order is unspecified by upstream Chromium when
// multiple schemas return different passwords, so it is documented here.
// A lookup that fails for one candidate moves on to the next. The first
// password found is returned without being checked against any ciphertext;
// if it then fails to decrypt cookies, the later candidates are not tried.
type Libsecret struct{}

// candidateApps are tried in order for the libsecret "application" attribute.
var candidateApps = []string{"chrome", "chromium"}

// Resolve implements Resolver. It returns the first password found across
// (schema, application) pairs in probe order; it does not itself validate
// the password against a ciphertext, since that is the extractor's job.
func (Libsecret) Resolve(profile Profile) (MasterKey, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return MasterKey{}, fmt.Errorf("%w: connecting to session bus: %v", cookieserr.ErrKeyStoreMissing, err)
	}
	defer conn.Close()

	service := conn.Object(secretServiceDest, dbus.ObjectPath(secretServicePath))

	for _, schema := range []string{schemaV2, schemaV1} {
		for _, app := range candidateApps {
			attrs := map[string]string{
				"xdg:schema":  schema,
				"application": app,
			}
			pw, err := searchSecretService(service, attrs)
			if err != nil {
				continue // try next candidate; per spec, failures here are non-terminal
			}
			key := cipher.DeriveKey(pw, 1, 16)
			return NewMasterKey(key, SourceGnomeLibsecret), nil
		}
	}
	return MasterKey{}, fmt.Errorf("%w: no libsecret item matched chrome_libsecret_os_crypt_password_v1/v2", cookieserr.ErrKeyStoreMissing)
}

// searchSecretService calls SearchItems and Unlock/GetSecrets on the
// Secret Service D-Bus object to recover a single passphrase matching attrs.
func searchSecretService(service dbus.BusObject, attrs map[string]string) (string, error) {
	var unlocked, locked []dbus.ObjectPath
	if err := service.Call("org.freedesktop.Secret.Service.SearchItems", 0, attrs).
		Store(&unlocked, &locked); err != nil {
		return "", err
	}
	items := append(unlocked, locked...)
	if len(items) == 0 {
		return "", fmt.Errorf("no matching secret items")
	}

	if len(locked) > 0 {
		var dismissed []dbus.ObjectPath
		var prompt dbus.ObjectPath
		if err := service.Call("org.freedesktop.Secret.Service.Unlock", 0, locked).
			Store(&dismissed, &prompt); err != nil {
			return "", err
		}
	}

	session, err := openSecretSession(service)
	if err != nil {
		return "", err
	}

	type secretStruct struct {
		Session     dbus.ObjectPath
		Parameters  []byte
		Value       []byte
		ContentType string
	}
	var secrets map[dbus.ObjectPath]secretStruct
	if err := service.Call("org.freedesktop.Secret.Service.GetSecrets", 0, items, session).
		Store(&secrets); err != nil {
		return "", err
	}
	for _, item := range items {
		if s, ok := secrets[item]; ok && len(s.Value) > 0 {
			return strings.TrimRight(string(s.Value), "\x00"), nil
		}
	}
	return "", fmt.Errorf("no secret value returned")
}

// openSecretSession opens a plain (unencrypted) Secret Service session,
// which is sufficient for a local D-Bus transport.
func openSecretSession(service dbus.BusObject) (dbus.ObjectPath, error) {
	var output dbus.Variant
	var session dbus.ObjectPath
	if err := service.Call("org.freedesktop.Secret.Service.OpenSession", 0, "plain", dbus.MakeVariant("")).
		Store(&output, &session); err != nil {
		return "", err
	}
	return session, nil
}
