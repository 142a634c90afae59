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

	"github.com/spf13/cobra"

	"github.com/corvidae/cookiejar"
	"github.com/corvidae/cookiejar/internal/report"
	"github.com/corvidae/cookiejar/internal/washpolicy"
)

func newWashCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "wash [cookie-file...]",
		Short: "Edit stored cookies to discard anything a policy file does not allow",
		Long: `Edit browser cookies to remove any that do not match the specified
policy rules. A policy consists of three types of rules:

  + <criteria>  Allow: admit cookies matching criteria
  - <criteria>  Deny: reject cookies matching criteria
  ! <criteria>  Keep: always retain cookies matching criteria, regardless
                of any Allow/Deny rule

If a cookie is matched by any Keep rule, it is explicitly retained.
Otherwise, if any Deny rule matches the cookie, it is discarded. Otherwise,
if no Allow rule matches the cookie, it is discarded.

If cookie files are named on the command line, they are processed in
preference to any files named in the configuration file. See
internal/washpolicy for the full configuration grammar.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := washpolicy.Open(os.ExpandEnv(configPath))
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			files := cfg.Files
			if len(args) != 0 {
				if len(cfg.Files) != 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s Skipping %d inputs listed in the config file\n",
						report.TagSkipped, len(cfg.Files))
				}
				files = args
			}

			if dryRun {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s This is a dry run; no changes will be made\n\n", report.TagDryRun)
			}

			for _, path := range files {
				path = os.ExpandEnv(path)
				if err := washOne(cmd, cfg, path, dryRun, verbose); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "$HOME/.cookierc", "Configuration file path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Process inputs but do not apply the changes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	return cmd
}

func washOne(cmd *cobra.Command, cfg *washpolicy.Config, path string, dryRun, verbose bool) error {
	s, err := washpolicy.OpenStore(path, washpolicy.StoreOptions{})
	if os.IsNotExist(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipping %q, file not found\n", path)
		return nil
	} else if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "Scanning %q\n", path)
	w := report.New(out, verbose)

	if err := s.Scan(func(e cookies.Editor) (cookies.Action, error) {
		ck := e.Get()
		var allowReason, denyReason string
		var allow, deny bool
		for _, rule := range cfg.Match(ck) {
			switch rule.Tag {
			case "!":
				w.Line(report.TagKept, ck, rule.Reason(), true)
				return cookies.Keep, nil
			case "-":
				deny = true
				denyReason = rule.Reason()
			case "+":
				allow = true
				allowReason = rule.Reason()
			}
		}
		if deny || !allow {
			w.Line(report.TagDiscarded, ck, denyReason, false)
			if dryRun {
				return cookies.Keep, nil
			}
			return cookies.Discard, nil
		}
		w.Line(report.TagAllowed, ck, allowReason, true)
		return cookies.Keep, nil
	}); err != nil {
		return fmt.Errorf("scanning %q: %w", path, err)
	}
	if err := s.Commit(); err != nil {
		return fmt.Errorf("committing %q: %w", path, err)
	}
	w.Flush(out)
	return nil
}
