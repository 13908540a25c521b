// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelector_ProbeOrdersPreferredFirst(t *testing.T) {
	p := &scriptedProvider{listed: []string{
		"gemini-1.5-flash", "custom-x", "gemini-2.5-flash", "custom-x", "text-embedding-004",
	}}
	s := NewSelector(p, nil, true, nil)

	got := s.SelectTrialOrder(context.Background(), "k")

	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-1.5-flash", "custom-x", "text-embedding-004"}, got)
}

func TestSelector_ProbeFailureUsesStaticList(t *testing.T) {
	p := &scriptedProvider{listErr: errors.New("403")}
	s := NewSelector(p, nil, true, nil)

	assert.Equal(t, DefaultPreferredModels, s.SelectTrialOrder(context.Background(), "k"))
	assert.Equal(t, 1, p.listCalls)
}

func TestSelector_ProbeEmptyUsesStaticList(t *testing.T) {
	p := &scriptedProvider{listed: []string{}}
	s := NewSelector(p, []string{"a", "b"}, true, nil)

	assert.Equal(t, []string{"a", "b"}, s.SelectTrialOrder(context.Background(), "k"))
}

func TestSelector_ProbeDisabled(t *testing.T) {
	p := &scriptedProvider{listed: []string{"x"}}
	s := NewSelector(p, []string{"a"}, false, nil)

	assert.Equal(t, []string{"a"}, s.SelectTrialOrder(context.Background(), "k"))
	assert.Zero(t, p.listCalls)
}

func TestSelector_PreferredIsCopied(t *testing.T) {
	s := NewSelector(&scriptedProvider{}, nil, false, nil)
	got := s.Preferred()
	got[0] = "mutated"
	assert.Equal(t, "gemini-2.5-flash", s.Preferred()[0])
}
