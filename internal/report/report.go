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

// Package report formats per-cookie wash decisions as a tabular report,
// the same emoji-tagged tabwriter layout the original washcookies tool
// printed to stderr.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/corvidae/cookiejar"
)

// Emoji tags for each wash disposition.
const (
	TagKept      = "✨"
	TagAllowed   = "🆗"
	TagDiscarded = "🚫"
	TagDryRun    = "☂️"
	TagSkipped   = "🚨"
)

// A Writer accumulates one tabular report across the cookies of a single
// store, flushed with Flush.
type Writer struct {
	tw               *tabwriter.Writer
	nKept, nDiscarded int
	verbose          bool
}

// New returns a Writer that writes its tabular report to w. If verbose is
// false, Line calls tagged TagKept are suppressed (matching the original
// tool's -v flag).
func New(w io.Writer, verbose bool) *Writer {
	return &Writer{
		tw:      tabwriter.NewWriter(w, 4, 8, 1, ' ', 0),
		verbose: verbose,
	}
}

// Line records one cookie's disposition. kept reports whether the cookie
// was ultimately retained, for the summary counts Flush prints.
func (r *Writer) Line(tag string, ck cookies.C, reason string, kept bool) {
	if kept {
		r.nKept++
	} else {
		r.nDiscarded++
	}
	if tag == TagKept && !r.verbose {
		return
	}
	fmt.Fprint(r.tw, " "+strings.Join([]string{tag, ck.Domain, ck.Name, reason}, "\t")+"\n")
}

// Flush writes any buffered lines and the summary count, then resets the
// counters for the next store.
func (r *Writer) Flush(w io.Writer) {
	r.tw.Flush()
	fmt.Fprintf(w, ">> TOTAL %d cookies; kept %d, discarded %d\n\n",
		r.nKept+r.nDiscarded, r.nKept, r.nDiscarded)
	r.nKept, r.nDiscarded = 0, 0
}
