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

package chromedb_test

import (
	"database/sql"
	"flag"
	"path/filepath"
	"testing"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/chromedb"
	"github.com/corvidae/cookiejar/cipher"
	"github.com/corvidae/cookiejar/secret"

	_ "modernc.org/sqlite"
)

var (
	inputFile = flag.String("input", "", "Input Chrome cookie database")
	dbSecret  = flag.String("passphrase", "", "Passphrase for encrypted values")
	doUpdate  = flag.Bool("update", false, "Update cookies in-place")
)

func TestManual(t *testing.T) {
	if *inputFile == "" {
		t.Skip("Skipping test since no -input is specified")
	}
	s, err := chromedb.Open(*inputFile, &chromedb.Options{
		Passphrase: *dbSecret,
	})
	if err != nil {
		t.Fatalf("Opening database: %v", err)
	}
	defer s.Close()

	var numCookies int
	if err := s.Scan(func(e cookies.Editor) (cookies.Action, error) {
		numCookies++
		c := e.Get()
		t.Logf("-- Cookie %d:\n"+
			"  domain=%q name=%q value=%q\n"+
			"  secure=%v http_only=%v samesite=%v\n"+
			"  created=%v | expires=%v",
			numCookies,
			c.Domain, c.Name, c.Value,
			c.Flags.Secure, c.Flags.HTTPOnly, c.SameSite,
			c.Created, c.Expires,
		)
		if *doUpdate {
			return cookies.Update, nil
		}
		return cookies.Keep, nil
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit failed; %v", err)
	}

	t.Logf("Found %d cookies", numCookies)
}

const createCookiesSchema = `
CREATE TABLE cookies (
  rowid INTEGER PRIMARY KEY,
  name TEXT, value TEXT, encrypted_value BLOB,
  host_key TEXT, path TEXT,
  expires_utc INTEGER, creation_utc INTEGER,
  is_secure INTEGER, is_httponly INTEGER, samesite INTEGER
);`

type row struct {
	name, value, host, path string
	encValue                []byte
	secure, httpOnly         bool
	sameSite                 int64
}

func makeDB(t *testing.T, rows []row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Cookies")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(createCookiesSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO cookies
			(name, value, encrypted_value, host_key, path, expires_utc, creation_utc, is_secure, is_httponly, samesite)
			VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
			r.name, r.value, r.encValue, r.host, r.path, boolInt(r.secure), boolInt(r.httpOnly), r.sameSite); err != nil {
			t.Fatalf("insert row %q: %v", r.name, err)
		}
	}
	return path
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func TestScanPlaintextAndV10Linux(t *testing.T) {
	key := cipher.DeriveKey("peanuts", 1, 16)
	enc, err := cipher.AESCBCPKCS7Encrypt(key, cipher.FixedIV, []byte("secretvalue"))
	if err != nil {
		t.Fatalf("AESCBCPKCS7Encrypt failed: %v", err)
	}
	path := makeDB(t, []row{
		{name: "plain", value: "hello", host: "example.com", path: "/"},
		{name: "enc", encValue: append([]byte("v10"), enc...), host: "example.com", path: "/", secure: true},
	})

	s, err := chromedb.Open(path, &chromedb.Options{
		LegacyKey: secret.NewMasterKey(key, secret.SourceHardcodedPeanuts),
		OS:        "linux",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadAll returned %d cookies, want 2", len(got))
	}
	byName := map[string]cookies.C{}
	for _, c := range got {
		byName[c.Name] = c
	}
	if byName["plain"].Value != "hello" {
		t.Errorf("plain value = %q, want hello", byName["plain"].Value)
	}
	if byName["enc"].Value != "secretvalue" {
		t.Errorf("enc value = %q, want secretvalue", byName["enc"].Value)
	}
	if !byName["enc"].Flags.Secure {
		t.Error("enc cookie should be Secure")
	}
}

func TestScanSkipsRowWithoutKey(t *testing.T) {
	path := makeDB(t, []row{
		{name: "enc", encValue: append([]byte("v10"), make([]byte, 32)...), host: "example.com", path: "/"},
	})

	s, err := chromedb.Open(path, &chromedb.Options{OS: "linux"}) // no key configured
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAll returned %d cookies, want 0 (row should be skipped)", len(got))
	}
}

func TestScanAppliesDomainFilter(t *testing.T) {
	path := makeDB(t, []row{
		{name: "a", value: "1", host: "example.com", path: "/"},
		{name: "b", value: "2", host: "other.net", path: "/"},
		{name: "c", value: "3", host: "sub.example.com", path: "/"},
	})

	s, err := chromedb.Open(path, &chromedb.Options{Domains: []string{"example.com"}, OS: "linux"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadAll returned %d cookies, want 2", len(got))
	}
	for _, c := range got {
		if c.Domain != "example.com" && c.Domain != "sub.example.com" {
			t.Errorf("unexpected cookie for domain %q passed the filter", c.Domain)
		}
	}
}

func TestScanWindowsV10GCM(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	iv := make([]byte, 12)
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	ct, err := cipher.AESGCMEncrypt(key, iv, []byte("winvalue"))
	if err != nil {
		t.Fatalf("AESGCMEncrypt failed: %v", err)
	}
	body := append([]byte("v10"), iv...)
	body = append(body, ct...)
	path := makeDB(t, []row{
		{name: "w", encValue: body, host: "example.com", path: "/"},
	})

	s, err := chromedb.Open(path, &chromedb.Options{
		Key: secret.NewMasterKey(key, secret.SourceDPAPI),
		OS:  "windows",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 || got[0].Value != "winvalue" {
		t.Fatalf("ReadAll = %+v, want single cookie with value winvalue", got)
	}
}

func TestScanWindowsAppBoundV20(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 2)
	}
	iv := make([]byte, 12)
	for i := range iv {
		iv[i] = byte(i + 3)
	}
	hostBinding := make([]byte, 32)
	for i := range hostBinding {
		hostBinding[i] = byte(i + 5)
	}
	plaintext := append(append([]byte{}, hostBinding...), []byte("boundvalue")...)
	ct, err := cipher.AESGCMEncrypt(key, iv, plaintext)
	if err != nil {
		t.Fatalf("AESGCMEncrypt failed: %v", err)
	}
	body := append([]byte("v20"), byte(3)) // flag byte, value is unused by decryptAppBoundV20
	body = append(body, iv...)
	body = append(body, ct...)
	path := makeDB(t, []row{
		{name: "w20", encValue: body, host: "example.com", path: "/"},
	})

	s, err := chromedb.Open(path, &chromedb.Options{
		AppBoundKey: secret.NewMasterKey(key, secret.SourceAppBoundV20),
		OS:          "windows",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 || got[0].Value != "boundvalue" {
		t.Fatalf("ReadAll = %+v, want single cookie with value boundvalue (host-binding prefix stripped)", got)
	}
}

func TestScanWindowsV10AndV20TogetherNeedBothKeys(t *testing.T) {
	dpapiKey := make([]byte, 32)
	for i := range dpapiKey {
		dpapiKey[i] = byte(i)
	}
	v10IV := make([]byte, 12)
	for i := range v10IV {
		v10IV[i] = byte(i + 1)
	}
	v10CT, err := cipher.AESGCMEncrypt(dpapiKey, v10IV, []byte("oldvalue"))
	if err != nil {
		t.Fatalf("AESGCMEncrypt (v10) failed: %v", err)
	}
	v10Body := append([]byte("v10"), v10IV...)
	v10Body = append(v10Body, v10CT...)

	appBoundKey := make([]byte, 32)
	for i := range appBoundKey {
		appBoundKey[i] = byte(i + 9)
	}
	v20IV := make([]byte, 12)
	for i := range v20IV {
		v20IV[i] = byte(i + 11)
	}
	hostBinding := make([]byte, 32)
	v20Plain := append(append([]byte{}, hostBinding...), []byte("newvalue")...)
	v20CT, err := cipher.AESGCMEncrypt(appBoundKey, v20IV, v20Plain)
	if err != nil {
		t.Fatalf("AESGCMEncrypt (v20) failed: %v", err)
	}
	v20Body := append([]byte("v20"), byte(3))
	v20Body = append(v20Body, v20IV...)
	v20Body = append(v20Body, v20CT...)

	path := makeDB(t, []row{
		{name: "old", encValue: v10Body, host: "example.com", path: "/"},
		{name: "new", encValue: v20Body, host: "example.com", path: "/"},
	})

	s, err := chromedb.Open(path, &chromedb.Options{
		Key:         secret.NewMasterKey(dpapiKey, secret.SourceDPAPI),
		AppBoundKey: secret.NewMasterKey(appBoundKey, secret.SourceAppBoundV20),
		OS:          "windows",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	byName := map[string]cookies.C{}
	for _, c := range got {
		byName[c.Name] = c
	}
	if byName["old"].Value != "oldvalue" {
		t.Errorf("old (v10/DPAPI) value = %q, want oldvalue", byName["old"].Value)
	}
	if byName["new"].Value != "newvalue" {
		t.Errorf("new (v20/app-bound) value = %q, want newvalue", byName["new"].Value)
	}
}

func TestScanLinuxV10AndV11NeedDistinctKeys(t *testing.T) {
	legacyKey := cipher.DeriveKey("peanuts", 1, 16)
	v10Enc, err := cipher.AESCBCPKCS7Encrypt(legacyKey, cipher.FixedIV, []byte("oldvalue"))
	if err != nil {
		t.Fatalf("AESCBCPKCS7Encrypt (v10) failed: %v", err)
	}
	secretServiceKey := make([]byte, 16)
	for i := range secretServiceKey {
		secretServiceKey[i] = byte(i + 1)
	}
	v11Enc, err := cipher.AESCBCPKCS7Encrypt(secretServiceKey, cipher.FixedIV, []byte("newvalue"))
	if err != nil {
		t.Fatalf("AESCBCPKCS7Encrypt (v11) failed: %v", err)
	}
	path := makeDB(t, []row{
		{name: "old", encValue: append([]byte("v10"), v10Enc...), host: "example.com", path: "/"},
		{name: "new", encValue: append([]byte("v11"), v11Enc...), host: "example.com", path: "/"},
	})

	// A single resolved secret-service key must not collapse the two
	// schemes: the legacy peanuts key still has to decrypt the v10 row.
	s, err := chromedb.Open(path, &chromedb.Options{
		LegacyKey: secret.NewMasterKey(legacyKey, secret.SourceHardcodedPeanuts),
		Key:       secret.NewMasterKey(secretServiceKey, secret.SourceGnomeLibsecret),
		OS:        "linux",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	byName := map[string]cookies.C{}
	for _, c := range got {
		byName[c.Name] = c
	}
	if byName["old"].Value != "oldvalue" {
		t.Errorf("old (v10/peanuts) value = %q, want oldvalue", byName["old"].Value)
	}
	if byName["new"].Value != "newvalue" {
		t.Errorf("new (v11/secret-service) value = %q, want newvalue", byName["new"].Value)
	}
}

func TestDecodeEncodeSiteRoundTrip(t *testing.T) {
	path := makeDB(t, []row{
		{name: "s", value: "v", host: "example.com", path: "/", sameSite: 2},
	})
	s, err := chromedb.Open(path, &chromedb.Options{OS: "linux"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if got[0].SameSite != cookies.Strict {
		t.Errorf("SameSite = %v, want Strict", got[0].SameSite)
	}
}
