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

package profile_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/corvidae/cookiejar/cookieserr"
	"github.com/corvidae/cookiejar/profile"
)

func TestDiscoverUnknownChannel(t *testing.T) {
	if _, err := profile.Discover("Some Browser Nobody Ships"); !errors.Is(err, cookieserr.ErrProfileNotFound) {
		t.Errorf("Discover error = %v, want ErrProfileNotFound", err)
	}
}

// TestDiscoverFindsRealHomeLayout exercises profile discovery against a
// synthetic $HOME so it does not depend on a real browser being installed.
// It only covers the Linux layout since that is what this test runner's
// runtime.GOOS will be in practice; other OS layouts are not exercised.
// TestSecretProfileAdapts below checks the descriptor adapter without
// touching the filesystem.
func TestDiscoverFindsRealHomeLayout(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("this synthetic layout targets linux")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "google-chrome", "Default")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cookies"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := profile.Discover("Google Chrome")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Discover returned %d profiles, want 1: %+v", len(got), got)
	}
	if got[0].DBPath != filepath.Join(dir, "Cookies") {
		t.Errorf("DBPath = %q, want %q", got[0].DBPath, filepath.Join(dir, "Cookies"))
	}
}

func TestSecretProfileAdapts(t *testing.T) {
	p := profile.Profile{
		ChannelName:  "Google Chrome",
		DataDir:      "/home/u/.config/google-chrome/Default",
		KeychainSvc:  "Chrome Safe Storage",
		KeychainUser: "Google Chrome",
	}
	sp := p.SecretProfile()
	if sp.Channel != "Google Chrome" || sp.KeychainService != "Chrome Safe Storage" {
		t.Errorf("SecretProfile = %+v, unexpected", sp)
	}
	if len(sp.DataDirs) != 1 || sp.DataDirs[0] != "/home/u/.config/google-chrome" {
		t.Errorf("SecretProfile.DataDirs = %v, want parent of profile dir", sp.DataDirs)
	}
}
