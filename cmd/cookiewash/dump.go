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

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/internal/washpolicy"
	"github.com/corvidae/cookiejar/profile"
	"github.com/corvidae/cookiejar/secret"
)

func newDumpCmd() *cobra.Command {
	var (
		channel    string
		domainsCSV string
		files      []string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Extract and print cookies from one or more browser profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			var domains []string
			if domainsCSV != "" {
				domains = strings.Split(domainsCSV, ",")
			}

			stores, err := collectStores(channel, files, domains)
			if err != nil {
				return err
			}

			for _, s := range stores {
				cs, err := cookies.ReadAll(s.store)
				if closer, ok := s.store.(interface{ Close() error }); ok {
					closer.Close()
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %q: %v\n", s.path, err)
					continue
				}
				for _, c := range cs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%v\t%v\n",
						c.Domain, c.Name, c.Value, c.Flags, c.SameSite)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Browser channel to discover (e.g. \"Google Chrome\"); empty discovers all known channels")
	cmd.Flags().StringVar(&domainsCSV, "domains", "", "Comma-separated list of domain suffixes to include (default: all)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "Explicit cookie store path(s); overrides --channel discovery")
	return cmd
}

type openStore struct {
	path  string
	store cookies.Store
}

// collectStores opens every store named by files, or every profile
// discovered for channel if files is empty. Chromium decryption keys are
// resolved only for discovered profiles; stores named by files are opened
// with no keys, so their encrypted values are not decrypted.
func collectStores(channel string, files, domains []string) ([]openStore, error) {
	if len(files) > 0 {
		var out []openStore
		for _, f := range files {
			s, err := washpolicy.OpenStore(f, washpolicy.StoreOptions{Domains: domains})
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %q: %v\n", f, err)
				continue
			}
			out = append(out, openStore{path: f, store: s})
		}
		return out, nil
	}

	profiles, err := profile.Discover(channel)
	if err != nil {
		return nil, err
	}

	var out []openStore
	for _, p := range profiles {
		opts := washpolicy.StoreOptions{Domains: domains}
		if p.Family == profile.FamilyChromium {
			resolveChromiumKeys(p, &opts)
		}
		s, err := washpolicy.OpenStore(p.DBPath, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %q: %v\n", p.DBPath, err)
			continue
		}
		out = append(out, openStore{path: p.DBPath, store: s})
	}
	return out, nil
}

// resolveChromiumKeys populates opts with every decryption key a Chromium
// profile might need. The hardcoded "peanuts" passphrase always resolves
// and is never the product of a race with another resolver, so it is
// fetched directly into LegacyKey rather than through DefaultChain. The
// platform chain's resolvers are then tried in order and each success is
// routed by its Source: an app-bound v20 key goes to AppBoundKey and the
// remaining resolvers are still tried; the first other key (DPAPI,
// Keychain, libsecret, KWallet) goes to Key and ends the search. A profile
// can need both an app-bound key for v20 rows and a DPAPI/legacy key for
// older v10 rows in the same database, so the two must never collapse into
// one field.
func resolveChromiumKeys(p profile.Profile, opts *washpolicy.StoreOptions) {
	sp := p.SecretProfile()
	if key, err := (secret.Hardcoded{}).Resolve(sp); err == nil {
		opts.LegacyKey = key
	}
	for _, r := range secret.DefaultChain() {
		key, err := r.Resolve(sp)
		if err != nil {
			continue
		}
		if key.Source == secret.SourceAppBoundV20 {
			opts.AppBoundKey = key
			continue
		}
		opts.Key = key
		break
	}
}
