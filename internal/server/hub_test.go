package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
	"github.com/a2c-smcp/a2c-smcp-go/internal/transport"
)

// dialPeer connects to srv's /smcp endpoint and wraps it as a transport.Peer.
func dialPeer(t *testing.T, srv *httptest.Server) *transport.Peer {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/smcp"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return transport.NewPeer(conn)
}

// newTestHub starts a test server serving the Hub directly, bypassing
// Server.Start (which installs OS signal handlers unsuitable for a test
// process).
func newTestHub() (*Hub, *httptest.Server) {
	hub := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	return hub, srv
}

func TestEnterAndBroadcast(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()

	computer := dialPeer(t, srv)
	defer computer.Close()
	agent := dialPeer(t, srv)
	defer agent.Close()

	agentNotified := make(chan protocol.EnterOfficeNotification, 4)
	agent.OnEvent(protocol.NotifyEnterOffice, func(data json.RawMessage) {
		var n protocol.EnterOfficeNotification
		_ = json.Unmarshal(data, &n)
		agentNotified <- n
	})
	computerNotified := make(chan protocol.EnterOfficeNotification, 4)
	computer.OnEvent(protocol.NotifyEnterOffice, func(data json.RawMessage) {
		var n protocol.EnterOfficeNotification
		_ = json.Unmarshal(data, &n)
		computerNotified <- n
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ack protocol.JoinAck
	if err := computer.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleComputer, Name: "C1", OfficeID: "office-1",
	}, &ack); err != nil || !ack.OK {
		t.Fatalf("computer join failed: err=%v ack=%+v", err, ack)
	}

	if err := agent.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleAgent, Name: "A1", OfficeID: "office-1",
	}, &ack); err != nil || !ack.OK {
		t.Fatalf("agent join failed: err=%v ack=%+v", err, ack)
	}

	select {
	case n := <-agentNotified:
		if n.Computer != "C1" && n.OfficeID != "office-1" {
			t.Fatalf("unexpected notification to agent: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("agent never received notify:enter_office")
	}

	found := false
	for i := 0; i < 2; i++ {
		select {
		case n := <-computerNotified:
			if n.Agent == "A1" {
				found = true
			}
		case <-time.After(time.Second):
		}
	}
	if !found {
		t.Fatalf("computer never received notify:enter_office for agent A1")
	}

	_ = hub
}

func TestDuplicateComputerNameAckRejected(t *testing.T) {
	hub, srv := newTestHub()
	defer srv.Close()
	_ = hub

	c1 := dialPeer(t, srv)
	defer c1.Close()
	c2 := dialPeer(t, srv)
	defer c2.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var ack protocol.JoinAck
	if err := c1.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleComputer, Name: "box", OfficeID: "office-2",
	}, &ack); err != nil || !ack.OK {
		t.Fatalf("first join failed: err=%v ack=%+v", err, ack)
	}

	if err := c2.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleComputer, Name: "box", OfficeID: "office-2",
	}, &ack); err != nil {
		t.Fatalf("second join request errored: %v", err)
	}
	if ack.OK || !strings.Contains(ack.Reason, protocol.ErrDuplicateName) {
		t.Fatalf("expected rejection reason containing %q, got %+v", protocol.ErrDuplicateName, ack)
	}
}
