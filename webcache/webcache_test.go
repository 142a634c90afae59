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

//go:build webcache

package webcache

import (
	"testing"
)

func TestReverseDomain(t *testing.T) {
	cases := []struct{ in, want string }{
		{"moc.elpmaxe", "example.com"},
		{"moc.bus.elpmaxe", "example.sub.com"},
	}
	for _, c := range cases {
		if got := reverseDomain(c.in); got != c.want {
			t.Errorf("reverseDomain(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTrimValue(t *testing.T) {
	if got := trimValue("sid=abc123"); got != "abc123" {
		t.Errorf("trimValue = %q, want abc123", got)
	}
	if got := trimValue("noequals"); got != "noequals" {
		t.Errorf("trimValue = %q, want noequals", got)
	}
}

func TestDecodeRow(t *testing.T) {
	row := map[string]any{
		"RDomain": "moc.elpmaxe",
		"Name":    "sid",
		"Value":   "sid=abc123",
	}
	c, err := decodeRow(row)
	if err != nil {
		t.Fatalf("decodeRow failed: %v", err)
	}
	if c.Domain != "example.com" || c.Name != "sid" || c.Value != "abc123" {
		t.Errorf("decodeRow = %+v, want domain=example.com name=sid value=abc123", c)
	}
}

func TestDecodeRowRejectsEmptyName(t *testing.T) {
	if _, err := decodeRow(map[string]any{"RDomain": "moc.elpmaxe"}); err == nil {
		t.Error("decodeRow succeeded with no Name column")
	}
}

func TestFiletimeToTime(t *testing.T) {
	// 2021-01-01T00:00:00Z in Windows FILETIME ticks.
	const ft = 132539328000000000
	got := filetimeToTime(ft)
	if got.Year() != 2021 || got.Month() != 1 || got.Day() != 1 {
		t.Errorf("filetimeToTime(%d) = %v, want 2021-01-01", ft, got)
	}
}
