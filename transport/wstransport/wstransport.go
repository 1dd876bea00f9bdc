// Package wstransport is a development/bench Transport (spec.md
// component B) that carries protocol packets over a local WebSocket,
// grounded on the teacher's app/proxy websocket forwarding pattern. It
// stands in for the real USB/BLE link in seatagd's transport bridge and
// in seatagctl's --simulate mode.
package wstransport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/seatag/firmware/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Transport pumps bytes between a websocket connection and an engine's
// RX/TX ring buffers: one goroutine per direction, the way the teacher's
// forwardWsConnection pumps each direction of a proxied connection.
type Transport struct {
	conn *websocket.Conn
	eng  *proto.Engine

	mu        sync.Mutex
	connected bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a client-side connection to url and wires it to eng.
func Dial(url string, eng *proto.Engine) (*Transport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, eng), nil
}

// Upgrade accepts a server-side connection on an existing HTTP request
// and wires it to eng, the way the teacher's DoWsUpgrade does for its
// device-connect endpoint.
func Upgrade(w http.ResponseWriter, r *http.Request, eng *proto.Engine) (*Transport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newTransport(conn, eng), nil
}

func newTransport(conn *websocket.Conn, eng *proto.Engine) *Transport {
	t := &Transport{conn: conn, eng: eng, connected: true, done: make(chan struct{})}
	eng.SetConnected(true)
	go t.readLoop()
	go t.writeLoop()
	return t
}

// Connected reports whether the underlying socket is still open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close tears down the socket and stops both pump goroutines.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		t.eng.SetConnected(false)
	})
	return err
}

// readLoop copies each inbound binary message into the engine's RX ring,
// the way a real transport's receive-complete ISR would advance the RX
// cursor (spec.md §5). A full RX ring (one slot) means the engine hasn't
// drained the prior packet yet; the message is dropped, matching
// spec.md §4.3.1's back-pressure policy.
func (t *Transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			log.WithError(err).Debug("wstransport: read loop exiting")
			_ = t.Close()
			return
		}
		w, err := t.eng.RX().Reserve()
		if err != nil {
			log.Debug("wstransport: RX ring full, dropping packet")
			continue
		}
		if _, err := w.Write(data); err != nil {
			log.WithError(err).Warn("wstransport: packet exceeds slot size, dropping")
			continue
		}
		_ = t.eng.RX().Commit(w)
	}
}

// writeLoop drains the engine's TX ring as fast as slots appear,
// matching the two-slot pipeline of spec.md §4.3.1 (one in-flight, one
// building).
func (t *Transport) writeLoop() {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			buf, err := t.eng.TX().Peek()
			if err != nil {
				continue
			}
			if err := t.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
				log.WithError(err).Debug("wstransport: write loop exiting")
				_ = t.Close()
				return
			}
			_ = t.eng.TX().Advance()
		}
	}
}
