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

// Package profile discovers installed browser profiles and describes them
// with enough information for chromedb, firefox, and bincookie to locate
// and (for Chromium) decrypt their cookie stores. It is the thin façade
// layer the extraction core itself does not need to know about: the core
// consumes a Profile descriptor and never globs a filesystem itself.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/corvidae/cookiejar/cookieserr"
	"github.com/corvidae/cookiejar/secret"
)

// Family names the cookie-store family a Channel belongs to.
type Family int

// Values for the Family enumeration.
const (
	FamilyChromium Family = iota
	FamilyMozilla
	FamilySafari
)

// A Channel describes one browser release channel this package knows how
// to locate, independent of any particular user's installation.
type Channel struct {
	Name   string // e.g. "Google Chrome", "Brave-Browser"
	Family Family

	// candidateRoots are OS-specific glob patterns for the directory that
	// holds one or more profile directories (e.g. "Default", "Profile 1").
	// %s is replaced with the current user's home directory.
	candidateRoots map[string][]string

	// dbRelativePath is the cookie database's path relative to a profile
	// directory.
	dbRelativePath string

	// keychainService, if set, is the macOS Keychain service name queried
	// for this channel's Safe Storage passphrase.
	keychainService string
}

// Profile is a fully-resolved descriptor for one discovered browser profile,
// the input the extraction core consumes.
type Profile struct {
	ChannelName   string
	Family        Family
	OS            string
	DataDir       string // the profile directory itself, not its parent
	DBPath        string // absolute path to the cookie database
	KeychainSvc   string
	KeychainUser  string
}

// SecretProfile adapts p to the minimal shape secret.Resolver needs.
func (p Profile) SecretProfile() secret.Profile {
	return secret.Profile{
		Channel:         p.ChannelName,
		DataDirs:        []string{filepath.Dir(p.DataDir)},
		KeychainService: p.KeychainSvc,
		KeychainAccount: p.KeychainUser,
	}
}

var knownChannels = []Channel{
	{
		Name:   "Google Chrome",
		Family: FamilyChromium,
		candidateRoots: map[string][]string{
			"windows": {`%s\AppData\Local\Google\Chrome\User Data`},
			"darwin":  {"%s/Library/Application Support/Google/Chrome"},
			"linux":   {"%s/.config/google-chrome"},
		},
		dbRelativePath:  "Cookies",
		keychainService: "Chrome Safe Storage",
	},
	{
		Name:   "Chromium",
		Family: FamilyChromium,
		candidateRoots: map[string][]string{
			"windows": {`%s\AppData\Local\Chromium\User Data`},
			"darwin":  {"%s/Library/Application Support/Chromium"},
			"linux":   {"%s/.config/chromium"},
		},
		dbRelativePath:  "Cookies",
		keychainService: "Chromium Safe Storage",
	},
	{
		Name:   "Brave",
		Family: FamilyChromium,
		candidateRoots: map[string][]string{
			"windows": {`%s\AppData\Local\BraveSoftware\Brave-Browser\User Data`},
			"darwin":  {"%s/Library/Application Support/BraveSoftware/Brave-Browser"},
			"linux":   {"%s/.config/BraveSoftware/Brave-Browser"},
		},
		dbRelativePath:  "Cookies",
		keychainService: "Brave Safe Storage",
	},
	{
		Name:   "Microsoft Edge",
		Family: FamilyChromium,
		candidateRoots: map[string][]string{
			"windows": {`%s\AppData\Local\Microsoft\Edge\User Data`},
			"darwin":  {"%s/Library/Application Support/Microsoft Edge"},
			"linux":   {"%s/.config/microsoft-edge"},
		},
		dbRelativePath:  "Cookies",
		keychainService: "Microsoft Edge Safe Storage",
	},
	{
		Name:   "Firefox",
		Family: FamilyMozilla,
		candidateRoots: map[string][]string{
			"windows": {`%s\AppData\Roaming\Mozilla\Firefox\Profiles\*`},
			"darwin":  {"%s/Library/Application Support/Firefox/Profiles/*"},
			"linux":   {"%s/.mozilla/firefox/*"},
		},
		dbRelativePath: "cookies.sqlite",
	},
	{
		Name:   "Safari",
		Family: FamilySafari,
		candidateRoots: map[string][]string{
			"darwin": {"%s/Library/Cookies"},
		},
		dbRelativePath: "Cookies.binarycookies",
	},
}

// Discover enumerates every installed profile for the named channel (e.g.
// "Google Chrome"). An empty channel enumerates every known channel. Only
// profile directories that actually contain the channel's cookie database
// are returned.
func Discover(channel string) ([]Profile, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: resolving home directory: %v", cookieserr.ErrProfileNotFound, err)
	}

	var profiles []Profile
	for _, ch := range knownChannels {
		if channel != "" && ch.Name != channel {
			continue
		}
		roots, ok := ch.candidateRoots[runtime.GOOS]
		if !ok {
			continue
		}
		for _, pattern := range roots {
			glob := fmt.Sprintf(pattern, home)
			matches, err := filepath.Glob(glob)
			if err != nil {
				return nil, fmt.Errorf("%w: globbing %s: %v", cookieserr.ErrProfileNotFound, glob, err)
			}
			for _, root := range matches {
				profiles = append(profiles, profilesUnder(ch, root)...)
			}
		}
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: channel %q", cookieserr.ErrProfileNotFound, channel)
	}
	return profiles, nil
}

// profilesUnder returns every sub-directory of root that contains ch's
// cookie database; for Firefox/Safari, root is itself the profile
// directory, so it is checked directly as well as its children.
func profilesUnder(ch Channel, root string) []Profile {
	var out []Profile
	if p, ok := profileAt(ch, root); ok {
		out = append(out, p)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if p, ok := profileAt(ch, filepath.Join(root, e.Name())); ok {
			out = append(out, p)
		}
	}
	return out
}

func profileAt(ch Channel, dir string) (Profile, bool) {
	dbPath := filepath.Join(dir, ch.dbRelativePath)
	if _, err := os.Stat(dbPath); err != nil {
		return Profile{}, false
	}
	return Profile{
		ChannelName:  ch.Name,
		Family:       ch.Family,
		OS:           runtime.GOOS,
		DataDir:      dir,
		DBPath:       dbPath,
		KeychainSvc:  ch.keychainService,
		KeychainUser: ch.Name,
	}, true
}
