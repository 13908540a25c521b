// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"io"

	"github.com/AleutianAI/mlab-assistant/pkg/ux"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

func renderReply(w io.Writer, prompt string, reply *datatypes.ChatReply) {
	p := ux.NewPrinter(w)
	p.Title(prompt)
	p.Box("", ux.Wrap(reply.Reply, 68), reply.Escalated)
	if len(reply.Options) > 0 {
		p.List(reply.Options)
	}
	if reply.Escalated {
		p.Status(ux.IconWarning, "escalated to support")
	}
	if reply.RequestID != "" {
		p.Muted("request " + reply.RequestID)
	}
}

func renderModels(w io.Writer, order []string, probed bool) {
	p := ux.NewPrinter(w)
	if probed {
		p.Title("Model trial order (probed)")
	} else {
		p.Title("Model trial order")
	}
	if len(order) == 0 {
		p.Status(ux.IconError, "no models available")
		return
	}
	p.List(order)
}
