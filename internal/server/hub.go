package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
	"github.com/a2c-smcp/a2c-smcp-go/internal/transport"
)

// DefaultForwardSafetyMargin is added to the Agent's declared tool-call
// timeout when bounding the Server's forward to the Computer (spec §4.1
// "bounded by a configurable per-request timeout (default: the agent's
// declared timeout plus a safety margin)").
const DefaultForwardSafetyMargin = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Signaling clients are same-origin service peers, not browsers; origin
	// checking is the deployment's reverse proxy's job.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub is the Server component of spec §4.1: it accepts authenticated
// connections on the /smcp namespace, maintains the session registry, and
// relays ack-bearing requests between Agent and Computer.
type Hub struct {
	Auth            AuthenticationProvider
	Registry        *Registry
	ForwardSafety   time.Duration

	mu    sync.RWMutex
	peers map[string]*transport.Peer // connID -> peer
}

// NewHub creates a Hub. auth may be nil, in which case every connection is
// accepted (suitable only for local development/tests).
func NewHub(auth AuthenticationProvider) *Hub {
	if auth == nil {
		auth = NewHeaderSecretAuth("", "")
	}
	return &Hub{
		Auth:          auth,
		Registry:      NewRegistry(),
		ForwardSafety: DefaultForwardSafetyMargin,
		peers:         make(map[string]*transport.Peer),
	}
}

// ServeHTTP upgrades the /smcp connection and runs it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Auth.Authenticate(r.Header, nil) {
		http.Error(w, "auth_failed", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] websocket upgrade failed: %v", err)
		return
	}

	connID := uuid.NewString()
	if err := h.Registry.Connect(connID); err != nil {
		log.Printf("[Server] %v", err)
		_ = conn.Close()
		return
	}

	peer := transport.NewPeer(conn)
	h.mu.Lock()
	h.peers[connID] = peer
	h.mu.Unlock()

	peer.OnClose = func(_ error) {
		h.teardown(connID)
	}

	h.wireHandlers(connID, peer)

	log.Printf("[Server] connection %s established", connID)
}

// teardown runs the disconnect procedure (spec §4.1 "On disconnect, perform
// the same teardown [as Leave]"): broadcast notify:leave_office, then remove
// the session and reverse-map entries.
func (h *Hub) teardown(connID string) {
	sess, ok := h.Registry.Get(connID)
	if ok && sess.OfficeID != "" {
		h.broadcastLeave(sess.OfficeID, sess, connID)
	}
	h.Registry.Disconnect(connID)

	h.mu.Lock()
	delete(h.peers, connID)
	h.mu.Unlock()
	log.Printf("[Server] connection %s torn down", connID)
}

func (h *Hub) peerFor(connID string) (*transport.Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[connID]
	return p, ok
}

// wireHandlers registers every inbound event this connID's Peer may receive,
// per the event table in spec §6.
func (h *Hub) wireHandlers(connID string, peer *transport.Peer) {
	peer.OnRequest(protocol.EventJoinOffice, func(_ context.Context, data json.RawMessage) (any, error) {
		return h.handleJoin(connID, data)
	})
	peer.OnRequest(protocol.EventLeaveOffice, func(_ context.Context, data json.RawMessage) (any, error) {
		return h.handleLeave(connID, data)
	})
	peer.OnRequest(protocol.EventListRoom, func(_ context.Context, data json.RawMessage) (any, error) {
		return h.handleListRoom(connID, data)
	})

	peer.OnEvent(protocol.EventUpdateConfig, h.rebroadcastFactory(connID, protocol.NotifyUpdateConfig))
	peer.OnEvent(protocol.EventUpdateToolList, h.rebroadcastFactory(connID, protocol.NotifyUpdateToolList))
	peer.OnEvent(protocol.EventUpdateDesktop, h.rebroadcastFactory(connID, protocol.NotifyUpdateDesktop))
	peer.OnEvent(protocol.EventToolCallCancel, func(data json.RawMessage) {
		h.handleToolCallCancel(connID, data)
	})

	for _, forwarded := range []string{
		protocol.EventToolCall,
		protocol.EventGetTools,
		protocol.EventGetDesktop,
		protocol.EventGetConfig,
	} {
		event := forwarded
		peer.OnRequest(event, func(ctx context.Context, data json.RawMessage) (any, error) {
			return h.forward(ctx, connID, event, data)
		})
	}
}
