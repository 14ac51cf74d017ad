// Package coordinator implements the coordinator (leader) engine: fan-out
// of a client payload to registered followers, ack collection under a
// per-follower timeout, and the majority-commit decision.
package coordinator

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"replicated-agreement/internal/membership"
	"replicated-agreement/internal/wire"
)

// ackTimeout is the per-follower acknowledgment budget.
const ackTimeout = 2 * time.Second

// registrationRetry matches the follower engine's back-off.
const registrationRetry = 2 * time.Second

// Transport abstracts the fan-out medium so the coordinator can run over
// ordinary unicast UDP or a single multicast datagram per cycle. Ack
// collection is identical either way — only SendRequest differs.
type Transport interface {
	// SendRequest fans req out to the given follower addresses (ignored by
	// a multicast transport, which instead sends once to its group).
	SendRequest(followers []string, req wire.ClientRequest) error
	// ReceiveAck blocks until an ack frame arrives or deadline elapses.
	ReceiveAck(deadline time.Time) (wire.FollowerAck, string, error)
}

// Engine is a running coordinator.
type Engine struct {
	conn      *net.UDPConn
	selfAddr  string
	followers *membership.FollowerSet
	transport Transport
}

// New binds a UDP socket at selfAddr for unicast fan-out.
func New(selfAddr string) (*Engine, error) {
	laddr, err := net.ResolveUDPAddr("udp", selfAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		conn:      conn,
		selfAddr:  selfAddr,
		followers: membership.NewFollowerSet(),
	}
	e.transport = &unicastTransport{conn: conn}
	return e, nil
}

// WithTransport overrides the fan-out transport (used to install a
// multicast transport, or a fake one in tests).
func (e *Engine) WithTransport(t Transport) { e.transport = t }

// Followers exposes the membership registry for inspection (tests, health
// endpoints).
func (e *Engine) Followers() *membership.FollowerSet { return e.followers }

// Conn exposes the underlying socket so a caller can layer a multicast
// transport on top of it via NewMulticastTransport.
func (e *Engine) Conn() *net.UDPConn { return e.conn }

// Close releases the underlying socket.
func (e *Engine) Close() error { return e.conn.Close() }

// RegisterWithDispatcher sends "register:<self_addr>" to the dispatcher,
// retrying forever on a 2s back-off.
func (e *Engine) RegisterWithDispatcher(dispatcherAddr string) error {
	daddr, err := net.ResolveUDPAddr("udp", dispatcherAddr)
	if err != nil {
		return err
	}
	msg := []byte("register:" + e.selfAddr)

	for {
		if _, err := e.conn.WriteToUDP(msg, daddr); err == nil {
			log.Printf("coordinator %s registered with dispatcher %s", e.selfAddr, dispatcherAddr)
			return nil
		}
		log.Printf("coordinator %s: register with dispatcher failed, retrying in %s", e.selfAddr, registrationRetry)
		time.Sleep(registrationRetry)
	}
}

// Serve runs the receive loop until the socket is closed. RegisterFollower
// messages are merged into the follower set; ClientRequest messages trigger
// a replication cycle whose textual reply is sent back to src (the
// dispatcher). Everything else is ignored.
func (e *Engine) Serve() error {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}

		msg, err := wire.Decode(buf[:n])
		if err != nil {
			continue
		}

		switch m := msg.(type) {
		case wire.RegisterFollower:
			e.followers.Register(m.FollowerAddr)
			log.Printf("coordinator %s: follower registered: %s", e.selfAddr, m.FollowerAddr)
		case wire.ClientRequest:
			reply := e.runReplicationCycle(m)
			if reply == "" {
				continue
			}
			if _, err := e.conn.WriteToUDP([]byte(reply), src); err != nil {
				log.Printf("coordinator %s: reply to dispatcher: %v", e.selfAddr, err)
			}
		default:
			// FollowerAck arriving outside an active cycle, or any other
			// variant — nothing to do with it.
		}
	}
}

// runReplicationCycle fans a client request out to every registered
// follower and waits for a majority of acknowledgments. It returns the
// empty string when there are no followers to replicate to — no client
// reply is emitted in that case.
func (e *Engine) runReplicationCycle(req wire.ClientRequest) string {
	followers := e.followers.Snapshot()
	if len(followers) == 0 {
		log.Printf("coordinator %s: No followers registered.", e.selfAddr)
		return ""
	}

	majority := len(followers)/2 + 1

	if err := e.transport.SendRequest(followers, req); err != nil {
		// Best-effort: a send error never aborts the cycle. The per-follower
		// ack wait below still proceeds.
		log.Printf("coordinator %s: fan-out error: %v", e.selfAddr, err)
	}

	acked := make(map[string]bool, len(followers))
	acks := 0

	// Loop bound is the follower count, not `majority`: if the first
	// `majority` receive slots land on duplicates or stray acks, later
	// slots still get a chance to supply the acks majority actually needs.
	for range followers {
		deadline := time.Now().Add(ackTimeout)
		ack, from, err := e.transport.ReceiveAck(deadline)
		if err != nil {
			log.Printf("coordinator %s: timeout waiting for an acknowledgment", e.selfAddr)
			continue
		}
		if ack.RequestID != req.RequestID {
			// Stray ack from a previous cycle — ignored.
			continue
		}
		if acked[from] {
			// Duplicate ack from the same follower counts once.
			continue
		}
		acked[from] = true
		acks++
		log.Printf("coordinator %s: received acknowledgment from %s", e.selfAddr, from)

		if acks >= majority {
			return fmt.Sprintf(
				"Request ID: %s\nOriginal Message: %s\nAcknowledgments Received: %d\n",
				req.RequestID, string(req.Payload), acks,
			)
		}
	}

	return fmt.Sprintf(
		"Request ID: %s\nNot enough acknowledgments to proceed (Received: %d, Majority: %d).",
		req.RequestID, acks, majority,
	)
}

// unicastTransport sends a ClientRequest frame to every follower address in
// turn over the coordinator's own socket, and reads whatever the socket next
// receives as a candidate ack.
type unicastTransport struct {
	conn *net.UDPConn
}

func (u *unicastTransport) SendRequest(followers []string, req wire.ClientRequest) error {
	frame, err := wire.Encode(req)
	if err != nil {
		return err
	}

	var errs []string
	for _, f := range followers {
		addr, err := net.ResolveUDPAddr("udp", f)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if _, err := u.conn.WriteToUDP(frame, addr); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("send to %d follower(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func (u *unicastTransport) ReceiveAck(deadline time.Time) (wire.FollowerAck, string, error) {
	if err := u.conn.SetReadDeadline(deadline); err != nil {
		return wire.FollowerAck{}, "", err
	}
	defer u.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			return wire.FollowerAck{}, "", err
		}
		msg, err := wire.Decode(buf[:n])
		if err != nil {
			continue
		}
		ack, ok := msg.(wire.FollowerAck)
		if !ok {
			continue
		}
		return ack, src.String(), nil
	}
}
