// Copyright 2023 Michael J. Fromberger. All Rights Reserved.
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

package firefox_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/firefox"

	_ "modernc.org/sqlite"
)

const createMozCookiesSchema = `
CREATE TABLE moz_cookies (
  id INTEGER PRIMARY KEY,
  name TEXT, value TEXT, host TEXT, path TEXT,
  expiry INTEGER, creationTime INTEGER,
  isSecure INTEGER, isHttpOnly INTEGER, sameSite INTEGER
);`

func makeDB(t *testing.T, rows [][]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(createMozCookiesSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO moz_cookies
			(name, value, host, path, expiry, creationTime, isSecure, isHttpOnly, sameSite)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, r...); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	return path
}

func TestScanReadsCookies(t *testing.T) {
	path := makeDB(t, [][]any{
		{"sid", "abc123", "example.com", "/", 2000000000, 1690000000000000, 1, 1, 2},
		{"pref", "dark", "other.net", "/", 0, 1690000000000000, 0, 0, 0},
	})

	s, err := firefox.Open(path, nil)
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
	if sid := byName["sid"]; sid.SameSite != cookies.Strict || !sid.Flags.Secure || !sid.Flags.HTTPOnly {
		t.Errorf("sid cookie = %+v, want Strict/Secure/HTTPOnly", sid)
	}
	if pref := byName["pref"]; !pref.IsSession() {
		t.Errorf("pref cookie should be a session cookie (expiry=0), got Expires=%v", pref.Expires)
	}
}

func TestScanAppliesDomainFilter(t *testing.T) {
	path := makeDB(t, [][]any{
		{"a", "1", "example.com", "/", 0, 0, 0, 0, 0},
		{"b", "2", "other.net", "/", 0, 0, 0, 0, 0},
	})

	s, err := firefox.Open(path, &firefox.Options{Domains: []string{"example.com"}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 || got[0].Domain != "example.com" {
		t.Fatalf("ReadAll = %+v, want single cookie for example.com", got)
	}
}

func TestScanDiscard(t *testing.T) {
	path := makeDB(t, [][]any{
		{"a", "1", "example.com", "/", 0, 0, 0, 0, 0},
	})

	s, err := firefox.Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.Scan(func(e cookies.Editor) (cookies.Action, error) {
		return cookies.Discard, nil
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	got, err := cookies.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAll returned %d cookies after Discard, want 0", len(got))
	}
}
