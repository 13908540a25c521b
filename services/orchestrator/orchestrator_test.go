// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mlab-assistant/pkg/config"
	"github.com/AleutianAI/mlab-assistant/services/llm"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/audit"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/composer"
	"github.com/AleutianAI/mlab-assistant/services/orchestrator/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// fakeProvider answers every prompt with a fixed reply.
type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) GenerateText(_ context.Context, _, _, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.reply, nil
}

func (p *fakeProvider) ListModels(context.Context, string) ([]string, error) {
	return []string{"gemini-2.0-flash", "gemini-exp"}, nil
}

func (p *fakeProvider) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

// newKnowledgeServer serves one record for every collection.
func newKnowledgeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":[{"source":%q,"min_age":18}],"pagination":{"hasMore":false}}`, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, knowledgeURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.GinMode = gin.TestMode
	cfg.Knowledge.BaseURL = knowledgeURL
	cfg.Knowledge.WarmCache = false
	cfg.Audit.FilePath = filepath.Join(t.TempDir(), "chatlog.json")
	cfg.Limits.RequestsPerSecond = 0
	return &cfg
}

func newTestService(t *testing.T, cfg *config.Config, provider llm.Provider) Service {
	t.Helper()
	svc, err := New(context.Background(), cfg,
		WithProvider(provider),
		WithKeys(llm.StaticKey("test-key")),
		WithRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func readAudit(t *testing.T, path string) []audit.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []audit.Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var r audit.Record
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		out = append(out, r)
	}
	return out
}

// =============================================================================
// New Tests
// =============================================================================

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Backend = "claude"

	_, err := New(context.Background(), &cfg, WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)
}

// =============================================================================
// End-to-End Tests
// =============================================================================

func TestService_ChatEndToEnd(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	provider := &fakeProvider{reply: "You must be between 18 and 35."}
	svc := newTestService(t, cfg, provider)

	w := postJSON(svc.Router(), "/chat", `{"message":"Am I eligible?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var reply datatypes.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "You must be between 18 and 35.", reply.Reply)

	prompt := provider.lastPrompt()
	assert.Contains(t, prompt, "/eligibility")
	assert.True(t, strings.HasSuffix(prompt, "User Message: Am I eligible?"))

	records := readAudit(t, cfg.Audit.FilePath)
	require.Len(t, records, 1)
	assert.Equal(t, audit.StatusSuccess, records[0].Status)
}

func TestService_ChatEscalation(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	svc := newTestService(t, cfg, &fakeProvider{reply: "I have escalated this."})

	w := postJSON(svc.Router(), "/chat", `{"message":"qwerty"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), composer.EscalationReply)
	assert.Equal(t, audit.StatusEscalated, readAudit(t, cfg.Audit.FilePath)[0].Status)
}

func TestService_AuditRedactsPersonalData(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	svc := newTestService(t, cfg, &fakeProvider{reply: "Thanks, we will be in touch."})

	w := postJSON(svc.Router(), "/chat", `{"message":"My email is lerato@example.com, am I eligible?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	records := readAudit(t, cfg.Audit.FilePath)
	require.Len(t, records, 1)
	assert.Equal(t, "My email is [EMAIL_ADDRESS], am I eligible?", records[0].Message)
}

func TestService_CategoryEndToEnd(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	provider := &fakeProvider{reply: "We run hubs in several provinces. What else would you like to know?"}
	svc := newTestService(t, cfg, provider)

	w := postJSON(svc.Router(), "/category", `{"category":"locations"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, provider.lastPrompt(), `The user selected this category: "locations"`)
	assert.Equal(t, audit.StatusCategoryUsed, readAudit(t, cfg.Audit.FilePath)[0].Status)
}

func TestService_MissingKeyIs500(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	svc, err := New(context.Background(), cfg,
		WithProvider(&fakeProvider{reply: "unused"}),
		WithKeys(llm.StaticKey("")),
		WithRegistry(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	defer svc.Close()

	w := postJSON(svc.Router(), "/chat", `{"message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), datatypes.TechnicalDifficultyReply)
}

func TestService_HealthAndMetrics(t *testing.T) {
	kb := newKnowledgeServer(t)
	svc := newTestService(t, testConfig(t, kb.URL), &fakeProvider{reply: "ok"})

	for _, path := range []string{"/health", "/metrics", "/greeting"} {
		w := httptest.NewRecorder()
		svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestService_TrialOrder(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	cfg.LLM.ProbeModels = true
	svc := newTestService(t, cfg, &fakeProvider{})

	order := svc.TrialOrder(context.Background())

	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-exp"}, order)
}

// =============================================================================
// Run Tests
// =============================================================================

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestService_RunShutsDownOnCancel(t *testing.T) {
	kb := newKnowledgeServer(t)
	cfg := testConfig(t, kb.URL)
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second
	svc := newTestService(t, cfg, &fakeProvider{reply: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
