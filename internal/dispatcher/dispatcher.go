// Package dispatcher implements the UDP front-end: a single public address
// that registers coordinators and followers, rotates client traffic across
// them, and relays the resulting reply back to whichever client sent the
// original request.
package dispatcher

import (
	"log"
	"net"
	"strings"

	"replicated-agreement/internal/membership"
	"replicated-agreement/internal/wire"

	"github.com/google/uuid"
)

// Engine is a running dispatcher.
type Engine struct {
	conn   *net.UDPConn
	routes *membership.RoutingTable

	// pending is the single-slot baseline correlator: the address of
	// whichever client is owed the next reply. Serve handles one client
	// request at a time and takes the next datagram as its reply, so a
	// second client's request arriving first is relayed to the first client
	// as the reply. See CorrelatedDispatcher for a per-request alternative.
	pending *net.UDPAddr
}

// New binds a UDP socket at listenAddr.
func New(listenAddr string) (*Engine, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &Engine{conn: conn, routes: membership.NewRoutingTable()}, nil
}

// Close releases the underlying socket.
func (e *Engine) Close() error { return e.conn.Close() }

// Routes exposes the routing table for inspection.
func (e *Engine) Routes() *membership.RoutingTable { return e.routes }

// Serve runs the receive loop until the socket is closed. Every inbound
// datagram is either a "register:<addr>" control message or an opaque
// client payload. The first node to register becomes the coordinator; every
// subsequent registration is a follower.
func (e *Engine) Serve() error {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		text := string(buf[:n])

		if addr, ok := strings.CutPrefix(text, "register:"); ok {
			addr = strings.TrimSpace(addr)
			if !e.routes.HasCoordinator() {
				e.routes.RegisterCoordinator(addr)
				log.Printf("dispatcher registered coordinator: %s", addr)
			} else {
				e.routes.RegisterFollower(addr)
				log.Printf("dispatcher registered follower: %s", addr)
			}
			continue
		}

		if msg, err := wire.Decode(buf[:n]); err == nil {
			if ack, ok := msg.(wire.FollowerAck); ok {
				// An ack stray-routed to the dispatcher instead of the
				// coordinator's own socket — nothing to do with it here.
				log.Printf("dispatcher: ignoring stray ack %s", ack.RequestID)
				continue
			}
		}

		e.handleClientPayload(text, src)
	}
}

func (e *Engine) handleClientPayload(payload string, clientAddr *net.UDPAddr) {
	e.pending = clientAddr

	target := e.routes.ChooseNextTarget()
	if target == "" {
		log.Printf("dispatcher: no target available to handle request")
		return
	}

	req := wire.ClientRequest{RequestID: uuid.New(), Payload: []byte(payload)}
	frame, err := wire.Encode(req)
	if err != nil {
		log.Printf("dispatcher: encode client request: %v", err)
		return
	}

	taddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		log.Printf("dispatcher: resolve target %s: %v", target, err)
		return
	}
	if _, err := e.conn.WriteToUDP(frame, taddr); err != nil {
		log.Printf("dispatcher: forward to %s: %v", target, err)
		return
	}
	log.Printf("dispatcher forwarded request %s to %s", req.RequestID, target)

	// Block for exactly one reply datagram, then relay it — the baseline
	// "one request in flight at a time" behavior.
	buf := make([]byte, wire.MaxDatagramSize)
	rn, rsrc, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		log.Printf("dispatcher: waiting for reply: %v", err)
		return
	}
	log.Printf("dispatcher received reply from %s", rsrc)
	e.relayReply(string(buf[:rn]))
}

func (e *Engine) relayReply(reply string) {
	if e.pending == nil {
		log.Printf("dispatcher: no client address found to forward response")
		return
	}
	if _, err := e.conn.WriteToUDP([]byte(reply), e.pending); err != nil {
		log.Printf("dispatcher: forward response to client: %v", err)
	}
}
