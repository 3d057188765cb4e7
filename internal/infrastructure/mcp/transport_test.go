package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func TestMCPHTTPTransport(t *testing.T) {
	prevVersion, prevCommit, prevDate := Version, BuildCommit, BuildDate
	Version, BuildCommit, BuildDate = "test", "commit123", "2026-01-01"
	t.Cleanup(func() {
		Version, BuildCommit, BuildDate = prevVersion, prevCommit, prevDate
	})

	srv := newTestServer(t, "")
	addr := pickFreeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = srv.ServeHTTP(ctx, addr) }()
	waitForHTTP(t, addr, 5*time.Second)

	resp := sendJSONRPC(t, addr, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo":      map[string]any{"name": "critical-claude-test", "version": "0.0.0"},
			"capabilities":    map[string]any{},
		},
	})
	if resp.Error != nil {
		t.Fatalf("initialize error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatalf("initialize missing result")
	}
	var result map[string]any
	if err := json.Unmarshal(*resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	serverInfo := result["serverInfo"].(map[string]any)
	if serverInfo["version"] != "test" || serverInfo["name"] != "critical-claude" {
		t.Fatalf("unexpected server info: %v", serverInfo)
	}

	resp = sendJSONRPC(t, addr, jsonRPCRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("tools/list error: %v", resp.Error.Message)
	}
	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(*resp.Result, &tools); err != nil {
		t.Fatalf("unmarshal tools: %v", err)
	}
	found := false
	for _, tool := range tools.Tools {
		if tool.Name == "cc_change_state" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cc_change_state in %d tools", len(tools.Tools))
	}
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func waitForHTTP(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/health", addr)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not become healthy at %s", url)
}

func sendJSONRPC(t *testing.T, addr string, req jsonRPCRequest) jsonRPCResponse {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	url := fmt.Sprintf("http://%s/mcp", addr)
	httpResp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("http post: %v", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // best-effort close on read body

	var resp jsonRPCResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}
