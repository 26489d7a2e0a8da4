package server_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389-research/mail/internal/runtime"
	"github.com/2389-research/mail/internal/server"
)

func TestRoutes_StreamingMessageEmitsSSEFrames(t *testing.T) {
	agents := func(namespace string) map[string]runtime.Agent {
		return map[string]runtime.Agent{"supervisor": &scriptedAgent{}}
	}
	actions := func(namespace string) runtime.ActionExecutor { return noopActions{} }
	tm := server.NewTenantManager(agents, actions, nil, nil, "supervisor")
	srv := server.NewServer(&server.Config{SwarmName: "local", AuthToken: "admin-token"}, tm, nil, nil, "test")
	ts := httptest.NewServer(srv.Routes(server.NewIdentityOracle("", "")))
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"message": "hello", "stream": true})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/message", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer admin-token")
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST /message: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var frames int
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		frames++
		var ev runtime.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Errorf("unmarshal SSE frame: %v", err)
		}
	}
	if frames == 0 {
		t.Error("expected at least one SSE frame, got none")
	}
}
