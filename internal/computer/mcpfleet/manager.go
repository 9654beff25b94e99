package mcpfleet

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// ChangeListener is notified of topology/state changes the signaling client
// turns into server:update_* emissions (spec §4.4 "Outbound change feeds").
// Implementations must not block.
type ChangeListener interface {
	OnToolListChanged()
	OnDesktopChanged()
}

// resolved is the internal (server, original tool name) pair an externally
// visible tool name maps to.
type resolved struct {
	server   string
	original string
}

// Manager owns the Computer's MCP client fleet: servers_config,
// active_clients, tool_mapping and alias_mapping (spec §4.2 "State").
// Generalizes the teacher's internal/mcp.Manager (single mutex,
// snapshot-then-I/O, diff-based Reload) from its two-transport world to the
// full alias/forbidden/conflict semantics spec §3/§4.2 require.
type Manager struct {
	AutoConnect   bool
	AutoReconnect bool

	mu            sync.Mutex
	configs       map[string]protocol.ServerConfig
	clients       map[string]*Client
	toolMapping   map[string]resolved // effective name -> (server, original)
	listeners     []ChangeListener
	records       *protocol.ToolCallRing
	reconnectStop map[string]context.CancelFunc
}

// NewManager creates an empty Manager. Call Initialize to populate it.
func NewManager() *Manager {
	return &Manager{
		AutoConnect:   true,
		configs:       make(map[string]protocol.ServerConfig),
		clients:       make(map[string]*Client),
		toolMapping:   make(map[string]resolved),
		records:       protocol.NewToolCallRing(10),
		reconnectStop: make(map[string]context.CancelFunc),
	}
}

// AddListener registers a ChangeListener. It takes the manager's lock, so it
// may be called concurrently with the mutators.
func (m *Manager) AddListener(l ChangeListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *Manager) notifyToolListChanged() {
	m.mu.Lock()
	ls := append([]ChangeListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range ls {
		l.OnToolListChanged()
	}
}

func (m *Manager) notifyDesktopChanged() {
	m.mu.Lock()
	ls := append([]ChangeListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range ls {
		l.OnDesktopChanged()
	}
}

// Initialize tears down all existing clients, installs configs as the
// authoritative servers_config, and connects every non-disabled server when
// AutoConnect is set (spec §4.2 "Initialize").
func (m *Manager) Initialize(ctx context.Context, configs map[string]protocol.ServerConfig) []error {
	m.shutdownAllLocked()

	m.mu.Lock()
	m.configs = make(map[string]protocol.ServerConfig, len(configs))
	for name, cfg := range configs {
		m.configs[name] = cfg
	}
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names) // stable traversal order, per spec §4.2 "Tool-map refresh"

	var errs []error
	for _, name := range names {
		cfg := configs[name]
		if cfg.Disabled || !m.AutoConnect {
			continue
		}
		if err := m.startClient(ctx, cfg); err != nil {
			errs = append(errs, err)
			log.Printf("[MCP] connect failed: %s: %v", name, err)
			continue
		}
		log.Printf("[MCP] connected: %s (%s)", name, cfg.Transport)
	}

	if err := m.refreshToolMap(); err != nil {
		errs = append(errs, err)
	}
	m.notifyToolListChanged()
	return errs
}

func (m *Manager) startClient(ctx context.Context, cfg protocol.ServerConfig) error {
	cli := NewClient(cfg)
	if err := cli.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.clients[cfg.Name] = cli
	m.mu.Unlock()
	if m.AutoReconnect {
		m.watchReconnect(cfg.Name)
	}
	return nil
}

// AddOrUpdate installs cfg, replacing any previous client for the same name
// (spec §4.2 "Add-or-update"). On a tool-name conflict introduced by cfg,
// the previous client and config are restored and an error is returned —
// the mutator never commits a half-applied change.
func (m *Manager) AddOrUpdate(ctx context.Context, cfg protocol.ServerConfig) error {
	m.mu.Lock()
	prevCfg, hadPrev := m.configs[cfg.Name]
	prevClient := m.clients[cfg.Name]
	m.mu.Unlock()

	if prevClient != nil {
		m.stopReconnect(cfg.Name)
		_ = prevClient.Shutdown()
	}

	m.mu.Lock()
	delete(m.clients, cfg.Name)
	m.configs[cfg.Name] = cfg
	m.mu.Unlock()

	var newClient *Client
	if !cfg.Disabled && (hadPrev || m.AutoConnect) {
		newClient = NewClient(cfg)
		if err := newClient.Connect(ctx); err != nil {
			m.rollback(cfg.Name, prevCfg, prevClient, hadPrev)
			return err
		}
		m.mu.Lock()
		m.clients[cfg.Name] = newClient
		m.mu.Unlock()
	}

	if err := m.refreshToolMap(); err != nil {
		if newClient != nil {
			_ = newClient.Shutdown()
		}
		m.rollback(cfg.Name, prevCfg, prevClient, hadPrev)
		_ = m.refreshToolMap() // restore the tool map to the rolled-back state
		return err
	}

	if newClient != nil && m.AutoReconnect {
		m.watchReconnect(cfg.Name)
	}
	m.notifyToolListChanged()
	return nil
}

func (m *Manager) rollback(name string, prevCfg protocol.ServerConfig, prevClient *Client, hadPrev bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hadPrev {
		m.configs[name] = prevCfg
		if prevClient != nil {
			m.clients[name] = prevClient
		} else {
			delete(m.clients, name)
		}
	} else {
		delete(m.configs, name)
		delete(m.clients, name)
	}
}

// Remove stops and removes the named server entirely.
func (m *Manager) Remove(name string) error {
	m.stopReconnect(name)
	m.mu.Lock()
	cli := m.clients[name]
	delete(m.clients, name)
	delete(m.configs, name)
	m.mu.Unlock()

	if cli != nil {
		_ = cli.Shutdown()
	}
	err := m.refreshToolMap()
	m.notifyToolListChanged()
	return err
}

// refreshToolMap rebuilds tool_mapping from scratch by traversing active
// clients in sorted-name order (spec §4.2 "Tool-map refresh"). A name
// collision that cannot be resolved by alias fails the whole refresh with
// tool_name_duplicated and leaves the previous map untouched.
func (m *Manager) refreshToolMap() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	configs := make(map[string]protocol.ServerConfig, len(m.configs))
	for k, v := range m.configs {
		configs[k] = v
	}
	clients := make(map[string]*Client, len(m.clients))
	for k, v := range m.clients {
		clients[k] = v
	}
	m.mu.Unlock()
	sort.Strings(names)

	next := make(map[string]resolved)
	for _, name := range names {
		cli := clients[name]
		cfg := configs[name]
		tools, err := cli.ListTools(context.Background())
		if err != nil {
			return fmt.Errorf("mcpfleet: list tools %q: %w", name, err)
		}
		for _, t := range tools {
			if cfg.IsForbidden(t.Name) {
				continue
			}
			meta := cfg.EffectiveToolMeta(t.Name)
			effective := t.Name
			if meta.Alias != nil && *meta.Alias != "" {
				effective = *meta.Alias
			}
			if cfg.IsForbidden(effective) {
				continue
			}
			if existing, ok := next[effective]; ok && existing.server != name {
				return fmt.Errorf("mcpfleet: tool %q already mapped to server %q, cannot also map server %q: %w",
					effective, existing.server, name, errToolNameDuplicated)
			}
			next[effective] = resolved{server: name, original: t.Name}
		}
	}

	m.mu.Lock()
	m.toolMapping = next
	m.mu.Unlock()
	return nil
}

// ValidateToolCall resolves name to (server, original tool), applying
// spec §4.2 "Validate-tool-call": unresolved name, inactive server, or a
// forbidden original tool are all rejections.
func (m *Manager) ValidateToolCall(name string) (server, original string, err error) {
	m.mu.Lock()
	r, ok := m.toolMapping[name]
	var cfg protocol.ServerConfig
	var cli *Client
	if ok {
		cfg = m.configs[r.server]
		cli = m.clients[r.server]
	}
	m.mu.Unlock()

	if !ok {
		return "", "", fmt.Errorf("%w: %q", errToolUnknown, name)
	}
	if cli == nil || cli.State() != StateConnected {
		return "", "", fmt.Errorf("%w: server %q for tool %q is not connected", errToolUnknown, r.server, name)
	}
	if cfg.IsForbidden(r.original) {
		return "", "", fmt.Errorf("%w: %q", errToolForbidden, name)
	}
	return r.server, r.original, nil
}

// CallTool resolves name, delegates to the owning Client, merges ToolMeta
// into the result, runs the configured VRL post-processor (if any), and
// appends a ToolCallRecord (spec §4.2 "Call-tool").
func (m *Manager) CallTool(ctx context.Context, reqID, name string, params map[string]any, timeout time.Duration) protocol.CallToolResult {
	server, original, err := m.ValidateToolCall(name)
	rec := protocol.ToolCallRecord{Timestamp: time.Now(), ReqID: reqID, Tool: name}
	if err != nil {
		rec.Error = err.Error()
		m.appendRecord(rec)
		switch {
		case isErrToolForbidden(err):
			return protocol.ErrorResult(protocol.ErrToolForbidden + ": " + err.Error())
		default:
			return protocol.ErrorResult(protocol.ErrToolUnknown + ": " + err.Error())
		}
	}
	rec.Server = server

	m.mu.Lock()
	cli := m.clients[server]
	cfg := m.configs[server]
	m.mu.Unlock()

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := cli.CallTool(callCtx, reqID, original, params)
	if err != nil {
		rec.Error = err.Error()
		m.appendRecord(rec)
		switch {
		case err == errShuttingDown:
			return protocol.ErrorResult(protocol.ErrShuttingDown)
		case err == errCallCancelled:
			return protocol.ErrorResult(protocol.ErrCallCancelled)
		case callCtx.Err() == context.DeadlineExceeded:
			return protocol.ErrorResult(fmt.Sprintf("%s: %v", protocol.ErrCallTimeout, err))
		default:
			return protocol.ErrorResult(err.Error())
		}
	}

	meta := cfg.EffectiveToolMeta(original)
	if result.Meta == nil {
		result.Meta = make(map[string]any)
	}
	result.Meta[protocol.MetaToolMetaKey] = meta

	if cfg.VRL != "" {
		transformed, vrlErr := runVRL(cfg.VRL, result, name, params)
		if vrlErr != nil {
			log.Printf("[MCP] %s: vrl transform for %q failed: %v", protocol.ErrVRLRuntime, name, vrlErr)
		} else {
			result.Meta[protocol.MetaVRLTransformedKey] = transformed
		}
	}

	rec.Success = true
	m.appendRecord(rec)
	return result
}

func (m *Manager) appendRecord(rec protocol.ToolCallRecord) {
	m.mu.Lock()
	m.records.Add(rec)
	m.mu.Unlock()
}

// ToolCallHistory returns a snapshot of recent tool call records.
func (m *Manager) ToolCallHistory() []protocol.ToolCallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.Snapshot()
}

// ListTools returns the aggregated, externally-visible tool list (spec §3
// "Tool (aggregated view)").
func (m *Manager) ListTools() []protocol.SMCPTool {
	m.mu.Lock()
	mapping := make(map[string]resolved, len(m.toolMapping))
	for k, v := range m.toolMapping {
		mapping[k] = v
	}
	configs := make(map[string]protocol.ServerConfig, len(m.configs))
	for k, v := range m.configs {
		configs[k] = v
	}
	clients := make(map[string]*Client, len(m.clients))
	for k, v := range m.clients {
		clients[k] = v
	}
	m.mu.Unlock()

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []protocol.SMCPTool
	for _, name := range names {
		r := mapping[name]
		cli := clients[r.server]
		if cli == nil {
			continue
		}
		tools, err := cli.ListTools(context.Background())
		if err != nil {
			continue
		}
		for _, t := range tools {
			if t.Name != r.original {
				continue
			}
			out = append(out, protocol.SMCPTool{
				Name:        name,
				Description: t.Description,
				InputSchema: t.InputSchema,
				Meta:        configs[r.server].EffectiveToolMeta(t.Name),
			})
			break
		}
	}
	return out
}

// ListWindows returns the aggregated Desktop view across every active
// client (spec §3 "Desktop"), optionally filtered by window URI.
func (m *Manager) ListWindows(ctx context.Context, windowURI string) []protocol.Window {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for k, v := range m.clients {
		clients[k] = v
	}
	m.mu.Unlock()

	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []protocol.Window
	for _, name := range names {
		windows, err := clients[name].ListWindows(ctx)
		if err != nil {
			continue
		}
		for _, w := range windows {
			if windowURI != "" && w.WindowURI != windowURI {
				continue
			}
			out = append(out, w)
		}
	}
	return out
}

// CloseAll shuts down every active client. Safe to call multiple times.
func (m *Manager) CloseAll() {
	m.shutdownAllLocked()
}

func (m *Manager) shutdownAllLocked() {
	m.mu.Lock()
	clients := make(map[string]*Client, len(m.clients))
	for name, cli := range m.clients {
		clients[name] = cli
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for name, cli := range clients {
		m.stopReconnect(name)
		if err := cli.Shutdown(); err != nil {
			log.Printf("[MCP] shutdown error for %q: %v", name, err)
		}
	}
	if len(clients) > 0 {
		log.Printf("[MCP] all connections closed")
	}
}
