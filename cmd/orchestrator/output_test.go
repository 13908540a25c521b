// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

func TestRenderReply_Plain(t *testing.T) {
	var buf bytes.Buffer
	renderReply(&buf, "Am I eligible?", &datatypes.ChatReply{Reply: "Yes.", RequestID: "r-1"})

	assert.Equal(t, "Am I eligible?\nYes.\nrequest r-1\n", buf.String())
}

func TestRenderReply_Escalated(t *testing.T) {
	var buf bytes.Buffer
	renderReply(&buf, "qwerty", &datatypes.ChatReply{Reply: "Escalated.", Escalated: true})

	assert.Contains(t, buf.String(), "escalated to support")
}

func TestRenderReply_Options(t *testing.T) {
	var buf bytes.Buffer
	renderReply(&buf, "hi", &datatypes.ChatReply{Reply: "Hello!", Options: []string{"programmes", "events"}})

	assert.Equal(t, "hi\nHello!\n1. programmes\n2. events\n", buf.String())
}

func TestRenderModels(t *testing.T) {
	var buf bytes.Buffer
	renderModels(&buf, []string{"gemini-2.0-flash", "gemini-pro"}, false)

	assert.Equal(t, "Model trial order\n1. gemini-2.0-flash\n2. gemini-pro\n", buf.String())
}

func TestRenderModels_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderModels(&buf, nil, true)

	assert.Contains(t, buf.String(), "no models available")
}

func TestAskCmd_RequiresInput(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()

	assert.Error(t, err)
}
