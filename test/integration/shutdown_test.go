package integration

import (
	"testing"
	"time"

	"github.com/huddlechat/huddle/test/testhelpers"
)

// TestGracefulShutdown verifies the hub shuts down cleanly while clients are
// connected and participating.
func TestGracefulShutdown(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	alice := chat.Connect(t)
	bob := chat.Connect(t)
	testhelpers.Join(t, alice, "alice")
	testhelpers.Join(t, bob, "bob")

	start := time.Now()
	if err := chat.Hub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}

	testhelpers.ExpectClosed(t, alice)
	testhelpers.ExpectClosed(t, bob)
}

// TestShutdownWithNoClients verifies shutdown of an idle hub returns
// immediately.
func TestShutdownWithNoClients(t *testing.T) {
	chat := testhelpers.StartChatServer(t, nil)

	start := time.Now()
	if err := chat.Hub.Shutdown(time.Second); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}
}
