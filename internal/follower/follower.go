// Package follower implements the follower engine: a node that registers
// itself with a coordinator and a dispatcher, then either acknowledges
// client requests forwarded by the coordinator or re-forwards client
// requests that arrived from elsewhere.
package follower

import (
	"log"
	"net"
	"time"

	"replicated-agreement/internal/wire"

	"github.com/google/uuid"
)

// registrationRetry is the back-off between failed registration sends.
// Registration retries indefinitely until it succeeds.
const registrationRetry = 2 * time.Second

// Engine is a running follower. It owns the UDP socket and knows the
// coordinator it forwards client traffic to.
type Engine struct {
	conn            *net.UDPConn
	selfAddr        string
	coordinatorAddr *net.UDPAddr

	// OnLeaderStale, if set, is invoked whenever an injected staleness
	// capability (see internal/heartbeat) reports the coordinator has gone
	// quiet. Nil by default; wired in cmd/replicator.
	OnLeaderStale func()
}

// New binds a UDP socket at selfAddr and resolves the coordinator address.
func New(selfAddr, coordinatorAddr string) (*Engine, error) {
	laddr, err := net.ResolveUDPAddr("udp", selfAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	caddr, err := net.ResolveUDPAddr("udp", coordinatorAddr)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Engine{conn: conn, selfAddr: selfAddr, coordinatorAddr: caddr}, nil
}

// Close releases the underlying socket.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// RegisterWithCoordinator sends a RegisterFollower message to the
// coordinator, retrying forever on a 2s back-off until the send succeeds.
// A successful send only means the datagram left the socket — the
// coordinator never replies to registration, so there is nothing further
// to wait on here.
func (e *Engine) RegisterWithCoordinator() error {
	frame, err := wire.Encode(wire.RegisterFollower{FollowerAddr: e.selfAddr})
	if err != nil {
		return err
	}

	for {
		if _, err := e.conn.WriteToUDP(frame, e.coordinatorAddr); err == nil {
			log.Printf("follower %s registered with coordinator %s", e.selfAddr, e.coordinatorAddr)
			return nil
		}
		log.Printf("follower %s: register with coordinator failed, retrying in %s", e.selfAddr, registrationRetry)
		time.Sleep(registrationRetry)
	}
}

// RegisterWithDispatcher sends the literal text "register:<self_addr>" to
// the dispatcher, retrying forever on a 2s back-off.
func (e *Engine) RegisterWithDispatcher(dispatcherAddr string) error {
	daddr, err := net.ResolveUDPAddr("udp", dispatcherAddr)
	if err != nil {
		return err
	}
	msg := []byte("register:" + e.selfAddr)

	for {
		if _, err := e.conn.WriteToUDP(msg, daddr); err == nil {
			log.Printf("follower %s registered with dispatcher %s", e.selfAddr, dispatcherAddr)
			return nil
		}
		log.Printf("follower %s: register with dispatcher failed, retrying in %s", e.selfAddr, registrationRetry)
		time.Sleep(registrationRetry)
	}
}

// Serve runs the receive loop until the socket is closed. For each inbound
// ClientRequest: if it came from the coordinator, ack it; otherwise
// re-forward the identical request to the coordinator without acking.
// Every other variant, and anything that fails to decode, is ignored — a
// single bad datagram never terminates the loop.
func (e *Engine) Serve() error {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}

		msg, err := wire.Decode(buf[:n])
		if err != nil {
			// Not a recognized frame — this socket only ever receives framed
			// replication traffic from peers, so an undecodable datagram is
			// simply dropped.
			continue
		}

		req, ok := msg.(wire.ClientRequest)
		if !ok {
			continue
		}

		if addrEqual(src, e.coordinatorAddr) {
			e.ack(req.RequestID)
			log.Printf("follower %s: acked request %s", e.selfAddr, req.RequestID)
			continue
		}

		log.Printf("follower %s: forwarding stray client request %s to coordinator", e.selfAddr, req.RequestID)
		e.forward(req)
	}
}

func (e *Engine) ack(id uuid.UUID) {
	frame, err := wire.Encode(wire.FollowerAck{RequestID: id})
	if err != nil {
		log.Printf("follower %s: encode ack: %v", e.selfAddr, err)
		return
	}
	// No retry on ack emission — a lost ack is the coordinator's timeout
	// problem, not the follower's.
	if _, err := e.conn.WriteToUDP(frame, e.coordinatorAddr); err != nil {
		log.Printf("follower %s: send ack: %v", e.selfAddr, err)
	}
}

func (e *Engine) forward(req wire.ClientRequest) {
	frame, err := wire.Encode(req)
	if err != nil {
		log.Printf("follower %s: encode forward: %v", e.selfAddr, err)
		return
	}
	if _, err := e.conn.WriteToUDP(frame, e.coordinatorAddr); err != nil {
		log.Printf("follower %s: forward: %v", e.selfAddr, err)
	}
}

func addrEqual(a *net.UDPAddr, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
