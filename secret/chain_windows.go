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

//go:build windows

package secret

// DefaultChain returns the platform resolver chain used to obtain the
// Chromium key on Windows: app-bound v20 first (newest, strongest), falling
// back to plain DPAPI v10 when the app-bound unwrap is denied (e.g. no
// administrator rights) or the browser predates v20.
func DefaultChain() Chain {
	return Chain{AppBoundV20{}, DPAPI{}}
}
