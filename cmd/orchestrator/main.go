// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator runs the mLab knowledge assistant.
//
// # Commands
//
//	orchestrator serve                  # HTTP API on server.port
//	orchestrator ask "Am I eligible?"   # one-shot answer in the terminal
//	orchestrator ask --category events  # one-shot category summary
//	orchestrator models                 # model trial order for the next request
//
// # Configuration
//
// Built-in defaults, then --config (YAML), then ASSISTANT_* environment
// variables. The Gemini key is read from GEMINI_API_KEY or
// VITE_GEMINI_API_KEY at request time.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
