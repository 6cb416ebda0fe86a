/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import "fmt"

// Version is the current version of timetile.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/timetile/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the source revision, set the same way as Version.
var Commit = "unknown"

// String renders the version for logs and the CLI.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
