// Copyright 2026 The Hookwise Authors
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

// Package build holds version metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/Epiphytic/hookwise/internal/build.version=v0.3.0 \
//	    -X github.com/Epiphytic/hookwise/internal/build.Commit=$(git rev-parse --short HEAD)"
//
// A `go install` build falls back to the module version from build info.
package build

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// version is the ldflag-injected value before fallback.
var version = "dev"

// Commit is the short git commit hash.
var Commit = "unknown"

// Date is the UTC build timestamp.
var Date = "unknown"

// Version is the semantic version of this binary.
var Version = resolveVersion(version, debug.ReadBuildInfo)

func resolveVersion(stamped string, read func() (*debug.BuildInfo, bool)) string {
	if stamped != "dev" && stamped != "" {
		return stamped
	}
	if info, ok := read(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// String renders the full version line printed by `hookwise version`.
func String() string {
	return fmt.Sprintf("hookwise %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
