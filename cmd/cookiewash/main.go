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

// Program cookiewash extracts and cleans up browser cookies.
//
// The dump subcommand extracts cookies from one or more cookie stores and
// prints them. The wash subcommand edits stored cookies to discard any not
// permitted by a user-specified policy; a policy consists of three types of
// rules: Allow, Deny, and Keep (see internal/washpolicy for the
// configuration file grammar).
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cookiewash",
		Short:         "Extract and wash browser cookies",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.AddCommand(newDumpCmd())
	cmd.AddCommand(newWashCmd())
	return cmd
}
