// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package composer builds LLM prompts from retrieved knowledge and decides
// when a generated reply must be handed to human support.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/AleutianAI/mlab-assistant/services/knowledge"
	"github.com/AleutianAI/mlab-assistant/services/llm"
)

// EscalationMarker is the token the model is instructed to include when a
// question is unclear or outside the provided knowledge.
const EscalationMarker = "escalated"

// EscalationReply replaces any reply that triggers escalation.
const EscalationReply = "I will pass this query to our mLab support team and will get back to you via email."

const chatTemplate = `You are an AI assistant for {{.organization}}.
Use the following data to answer questions: {{.data}}.
Rules:
- If asked about CodeTribe, explain it is a 6-month programme for youth.
- If asked about applications, mention the requirements (ID, CV, Grade 12).
- If the information is not in the data, tell them to email {{.support_email}}.
- Keep answers concise, friendly and professional.
- If the question is unclear or outside your knowledge, respond with something containing "{{.marker}}".`

const categoryTemplate = `You are an AI assistant for {{.organization}}.
The user selected this category: "{{.category}}".
Here is the knowledge base data: {{.data}}
Instructions:
- Summarise only the information relevant to the selected category.
- Keep it very short and professional.
- Do not use emojis.
- End by asking what else they would like to know.`

// Config sets the organization details quoted in prompts.
type Config struct {
	Organization string
	SupportEmail string
}

// DefaultConfig returns the production organization details.
func DefaultConfig() Config {
	return Config{
		Organization: "mLab South Africa",
		SupportEmail: "support@mlab.co.za",
	}
}

// Composer renders prompt templates. It holds no mutable state.
type Composer struct {
	cfg      Config
	chat     prompts.PromptTemplate
	category prompts.PromptTemplate
}

// New creates a Composer.
func New(cfg Config) *Composer {
	d := DefaultConfig()
	if cfg.Organization == "" {
		cfg.Organization = d.Organization
	}
	if cfg.SupportEmail == "" {
		cfg.SupportEmail = d.SupportEmail
	}
	return &Composer{
		cfg:      cfg,
		chat:     prompts.NewPromptTemplate(chatTemplate, []string{"organization", "data", "support_email", "marker"}),
		category: prompts.NewPromptTemplate(categoryTemplate, []string{"organization", "category", "data"}),
	}
}

// BuildInstructions renders the fixed rules with the serialized context.
func (c *Composer) BuildInstructions(rc knowledge.RelevantContext) (string, error) {
	data, err := serialize(rc)
	if err != nil {
		return "", err
	}
	return c.chat.Format(map[string]any{
		"organization":  c.cfg.Organization,
		"data":          data,
		"support_email": c.cfg.SupportEmail,
		"marker":        EscalationMarker,
	})
}

// BuildPrompt renders the full prompt: rules, context and the user's
// message.
func (c *Composer) BuildPrompt(rc knowledge.RelevantContext, userMessage string) (string, error) {
	instructions, err := c.BuildInstructions(rc)
	if err != nil {
		return "", err
	}
	return llm.ComposePrompt(instructions, userMessage), nil
}

// BuildCategoryInstructions renders the summary prompt for a menu category.
func (c *Composer) BuildCategoryInstructions(category string, rc knowledge.RelevantContext) (string, error) {
	data, err := serialize(rc)
	if err != nil {
		return "", err
	}
	return c.category.Format(map[string]any{
		"organization": c.cfg.Organization,
		"category":     category,
		"data":         data,
	})
}

// ShouldEscalate reports whether reply contains the escalation marker,
// ignoring case.
func ShouldEscalate(reply string) bool {
	return strings.Contains(strings.ToLower(reply), EscalationMarker)
}

func serialize(rc knowledge.RelevantContext) (string, error) {
	if rc == nil {
		rc = knowledge.RelevantContext{}
	}
	b, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("serialize knowledge context: %w", err)
	}
	return string(b), nil
}
