// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

// User-facing replies returned instead of generated text.
const (
	MsgEmptyGeneration = "I'm sorry, I couldn't generate a response. Please contact mLab support."

	MsgProviderSaturated = "Our AI service is temporarily overloaded. Please try again in a few moments, or contact mLab support for assistance."

	MsgHighDemand = "I'm currently experiencing high demand due to API rate limits across all available models. Please try again in a few moments, or contact mLab support for assistance."

	MsgModelsInaccessible = "I'm having trouble connecting to the AI service. The available models are not accessible with your current API key. Please contact mLab support."

	MsgConnectivity = "I'm experiencing a connection issue with my brain. Please try again in a moment."
)

// FallbackReason labels why a fixed reply was returned.
type FallbackReason string

const (
	ReasonNone               FallbackReason = ""
	ReasonEmpty              FallbackReason = "empty"
	ReasonSaturated          FallbackReason = "saturated"
	ReasonHighDemand         FallbackReason = "high_demand"
	ReasonModelsInaccessible FallbackReason = "models_inaccessible"
	ReasonConnectivity       FallbackReason = "connectivity"
)

var fallbackMessages = map[FallbackReason]string{
	ReasonEmpty:              MsgEmptyGeneration,
	ReasonSaturated:          MsgProviderSaturated,
	ReasonHighDemand:         MsgHighDemand,
	ReasonModelsInaccessible: MsgModelsInaccessible,
	ReasonConnectivity:       MsgConnectivity,
}

// IsFallback reports whether text is one of the fixed fallback replies.
func IsFallback(text string) bool {
	for _, msg := range fallbackMessages {
		if text == msg {
			return true
		}
	}
	return false
}
