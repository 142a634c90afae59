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

//go:build !linux && !darwin && !windows

package secret

import "github.com/corvidae/cookiejar/cookieserr"

// DefaultChain reports ErrUnsupportedPlatform on platforms with no known
// Chromium secret store integration.
func DefaultChain() Chain {
	return Chain{unsupportedResolver{}}
}

type unsupportedResolver struct{}

func (unsupportedResolver) Resolve(Profile) (MasterKey, error) {
	return MasterKey{}, cookieserr.ErrUnsupportedPlatform
}
