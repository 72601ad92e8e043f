// Package integration contains integration tests for the Huddle server.
//
// These tests verify that the assembled system behaves correctly end to end,
// with real HTTP servers and WebSocket connections speaking the chat
// protocol.
package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/huddlechat/huddle/test/testhelpers"
)

// TestHealthEndpoint tests the health endpoint with the actual server
// configuration.
func TestHealthEndpoint(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	resp, err := http.Get(chat.HTTP.URL + "/")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if contentType := resp.Header.Get("Content-Type"); contentType != "text/plain" {
		t.Errorf("Expected content type text/plain, got %s", contentType)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(body) != "Huddle server is running!" {
		t.Errorf("Unexpected health response body: %q", body)
	}
}

// TestTestPageEndpoint verifies the built-in protocol test page is served.
func TestTestPageEndpoint(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	resp, err := http.Get(chat.HTTP.URL + "/test")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "set username") {
		t.Error("Test page does not reference the chat protocol")
	}
}

// TestMetricsEndpoint verifies the Prometheus endpoint responds.
func TestMetricsEndpoint(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	resp, err := http.Get(chat.HTTP.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

// TestWebSocketEndpointRejectsNonGet verifies the upgrade endpoint only
// accepts GET requests.
func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	resp, err := http.Post(chat.HTTP.URL+"/ws", "application/json", http.NoBody)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}
