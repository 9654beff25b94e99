package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// RequestHandler answers an ack-bearing Frame. Returning an error causes a
// response frame with Err set to be sent back; the zero value of result is
// ignored in that case.
type RequestHandler func(ctx context.Context, data json.RawMessage) (any, error)

// EventHandler reacts to a fire-and-forget Frame. It must not block for long;
// slow work should be handed off to a goroutine.
type EventHandler func(data json.RawMessage)

// Peer wraps one live websocket connection with the ack/request framing
// every A2C-SMCP component speaks. It is used identically by the Server's
// per-connection session handler and by the Computer/Agent signaling
// clients — direction-specific rules (which events a role may emit) live one
// layer up.
//
// Concurrency model mirrors the teacher's subprocess discipline
// (internal/mcp/client.go's three independent pumps): one goroutine reads
// frames off the socket, one goroutine owns all writes (gorilla/websocket
// connections are not safe for concurrent writers), and Close tears both
// down and waits for them to exit before returning.
type Peer struct {
	conn *websocket.Conn

	sendCh chan Frame
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup

	mu              sync.Mutex
	requestHandlers map[string]RequestHandler
	eventHandlers   map[string][]EventHandler
	pending         map[string]chan Frame // ack_id -> reply channel, for requests this peer issued

	// OnClose, if set, is invoked at most once, from whichever pump first
	// notices the connection failed. It is not invoked when Close is called
	// before a pump fails.
	OnClose func(err error)
}

// NewPeer wraps conn and starts its read/write pumps. The caller owns conn's
// lifecycle only insofar as Close() on the returned Peer will close it.
func NewPeer(conn *websocket.Conn) *Peer {
	p := &Peer{
		conn:            conn,
		sendCh:          make(chan Frame, 64),
		done:            make(chan struct{}),
		requestHandlers: make(map[string]RequestHandler),
		eventHandlers:   make(map[string][]EventHandler),
		pending:         make(map[string]chan Frame),
	}
	p.wg.Add(2)
	go p.readPump()
	go p.writePump()
	return p
}

// OnRequest registers the handler invoked when an ack-bearing Frame for
// event arrives. Registering twice for the same event replaces the handler.
func (p *Peer) OnRequest(event string, h RequestHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestHandlers[event] = h
}

// OnEvent registers a handler invoked for every fire-and-forget Frame for
// event. Multiple handlers for the same event all run, in registration
// order.
func (p *Peer) OnEvent(event string, h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventHandlers[event] = append(p.eventHandlers[event], h)
}

// Emit sends a fire-and-forget Frame. It never blocks on the network; it
// only blocks if the internal send queue is full, which indicates a stuck
// connection.
func (p *Peer) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: marshal emit %q: %w", event, err)
	}
	return p.enqueue(Frame{Kind: kindEmit, Event: event, Data: raw})
}

// Request sends an ack-bearing Frame and blocks until a response arrives,
// ctx is done, or the peer closes. On success it unmarshals the response
// data into out (out may be nil to discard it).
func (p *Peer) Request(ctx context.Context, event string, data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: marshal request %q: %w", event, err)
	}
	ackID := uuid.NewString()
	reply := make(chan Frame, 1)

	p.mu.Lock()
	p.pending[ackID] = reply
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, ackID)
		p.mu.Unlock()
	}()

	if err := p.enqueue(Frame{Kind: kindRequest, Event: event, AckID: ackID, Data: raw}); err != nil {
		return err
	}

	select {
	case frame := <-reply:
		if frame.Err != "" {
			return fmt.Errorf("transport: request %q: %s", event, frame.Err)
		}
		if out == nil || len(frame.Data) == 0 {
			return nil
		}
		return json.Unmarshal(frame.Data, out)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return fmt.Errorf("transport: connection closed while awaiting ack for %q", event)
	}
}

// Close idempotently tears down both pumps and the underlying connection.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	err := p.conn.Close()
	p.wg.Wait()
	return err
}

func (p *Peer) enqueue(f Frame) error {
	select {
	case p.sendCh <- f:
		return nil
	case <-p.done:
		return fmt.Errorf("transport: connection closed")
	}
}

func (p *Peer) writePump() {
	defer p.wg.Done()
	for {
		select {
		case f := <-p.sendCh:
			if err := p.conn.WriteJSON(f); err != nil {
				p.fail(err)
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *Peer) readPump() {
	defer p.wg.Done()
	for {
		var f Frame
		if err := p.conn.ReadJSON(&f); err != nil {
			p.fail(err)
			return
		}
		p.dispatch(f)
	}
}

func (p *Peer) dispatch(f Frame) {
	switch f.Kind {
	case kindResponse:
		p.mu.Lock()
		reply, ok := p.pending[f.AckID]
		p.mu.Unlock()
		if ok {
			reply <- f
		}
	case kindRequest:
		p.mu.Lock()
		h, ok := p.requestHandlers[f.Event]
		p.mu.Unlock()
		if !ok {
			p.respondError(f.AckID, fmt.Sprintf("no handler for event %q", f.Event))
			return
		}
		go func() {
			result, err := h(context.Background(), f.Data)
			if err != nil {
				p.respondError(f.AckID, err.Error())
				return
			}
			raw, merr := json.Marshal(result)
			if merr != nil {
				p.respondError(f.AckID, merr.Error())
				return
			}
			_ = p.enqueue(Frame{Kind: kindResponse, AckID: f.AckID, Data: raw})
		}()
	case kindEmit:
		p.mu.Lock()
		handlers := append([]EventHandler(nil), p.eventHandlers[f.Event]...)
		p.mu.Unlock()
		for _, h := range handlers {
			h(f.Data)
		}
	default:
		log.Printf("[Transport] ignoring frame with unknown kind %q", f.Kind)
	}
}

func (p *Peer) respondError(ackID, reason string) {
	_ = p.enqueue(Frame{Kind: kindResponse, AckID: ackID, Err: reason})
}

func (p *Peer) fail(err error) {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.done)
	_ = p.conn.Close()
	if p.OnClose != nil {
		p.OnClose(err)
	}
}
