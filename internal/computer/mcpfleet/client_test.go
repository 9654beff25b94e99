package mcpfleet

import (
	"context"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

func stdioCfg(name, command string, args ...string) protocol.ServerConfig {
	return protocol.ServerConfig{
		Name:      name,
		Transport: protocol.TransportStdio,
		Stdio:     &protocol.StdioParams{Command: command, Args: args},
	}
}

// TestShutdownStdioReapsOnCleanExit covers spec §4.2 steps 3 and 6: closing
// stdin is enough for a well-behaved child (cat exits on EOF) to be reaped
// well inside the grace period, with no SIGTERM/SIGKILL needed.
func TestShutdownStdioReapsOnCleanExit(t *testing.T) {
	c := NewClient(stdioCfg("cat", "cat"))
	inner, err := c.connectStdio(context.Background())
	if err != nil {
		t.Fatalf("connectStdio: %v", err)
	}
	c.mu.Lock()
	c.inner = inner
	c.state = StateConnected
	c.mu.Unlock()

	pid := c.childProcess.Process.Pid

	start := time.Now()
	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= shutdownGrace {
		t.Fatalf("expected clean-exit shutdown well under the grace period, took %v", elapsed)
	}

	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("expected pid %d to be reaped after Shutdown", pid)
	}
}

// TestShutdownStdioEscalatesToSIGKILL covers spec §4.2 steps 4-5: a child
// that ignores SIGTERM must be SIGKILLed once the grace period elapses, and
// Shutdown must still return.
func TestShutdownStdioEscalatesToSIGKILL(t *testing.T) {
	c := NewClient(stdioCfg("stubborn", "sh", "-c", "trap '' TERM; sleep 30"))
	inner, err := c.connectStdio(context.Background())
	if err != nil {
		t.Fatalf("connectStdio: %v", err)
	}
	c.mu.Lock()
	c.inner = inner
	c.state = StateConnected
	c.mu.Unlock()

	pid := c.childProcess.Process.Pid

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- c.Shutdown() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected a non-nil error from killing the SIGTERM-ignoring child")
		}
	case <-time.After(shutdownGrace*2 + 2*time.Second):
		t.Fatalf("Shutdown did not escalate to SIGKILL within the expected window")
	}
	if elapsed := time.Since(start); elapsed < shutdownGrace {
		t.Fatalf("expected SIGKILL escalation to take at least the grace period, took %v", elapsed)
	}

	if err := syscall.Kill(pid, 0); err == nil {
		t.Fatalf("expected pid %d to be reaped after SIGKILL escalation", pid)
	}
}

// TestStdioConnectShutdownCycleLeak is the conformance test spec §4.2
// requires: repeated connect/shutdown cycles must leave no leaked process
// and no leaked background pump goroutine.
func TestStdioConnectShutdownCycleLeak(t *testing.T) {
	const cycles = 100

	runtime.GC()
	baseline := runtime.NumGoroutine()

	for i := 0; i < cycles; i++ {
		c := NewClient(stdioCfg("cat", "cat"))
		inner, err := c.connectStdio(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: connectStdio: %v", i, err)
		}
		c.mu.Lock()
		c.inner = inner
		c.state = StateConnected
		c.mu.Unlock()

		pid := c.childProcess.Process.Pid
		if err := c.Shutdown(); err != nil {
			t.Fatalf("cycle %d: Shutdown: %v", i, err)
		}
		if err := syscall.Kill(pid, 0); err == nil {
			t.Fatalf("cycle %d: pid %d still alive after Shutdown", i, pid)
		}
	}

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	after := runtime.NumGoroutine()
	if after > baseline+5 {
		t.Fatalf("goroutine count grew from %d to %d over %d cycles, suspected leak", baseline, after, cycles)
	}
}
