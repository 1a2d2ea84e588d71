// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode selects how the CLI renders its output.
type Mode string

const (
	// ModeStyled uses colors, icons and boxes.
	ModeStyled Mode = "styled"

	// ModePlain writes tab-separated text suitable for scripting and parsing.
	ModePlain Mode = "plain"
)

// ModeEnv overrides terminal detection when set to "styled" or "plain".
const ModeEnv = "NETFAB_OUTPUT"

// ParseMode converts a string to a Mode. Unknown values yield ModeStyled.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "machine", "quiet", "q":
		return ModePlain
	default:
		return ModeStyled
	}
}

// DetectMode picks the output mode for f.
//
// ModeEnv wins when set. Otherwise a terminal gets ModeStyled and anything
// else (a pipe, a file) gets ModePlain.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv(ModeEnv); env != "" {
		return ParseMode(env)
	}
	if f != nil && isTerminal(f.Fd()) {
		return ModeStyled
	}
	return ModePlain
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
