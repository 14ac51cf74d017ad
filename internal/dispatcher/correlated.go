package dispatcher

import (
	"log"
	"net"
	"strings"
	"sync"

	"replicated-agreement/internal/membership"
	"replicated-agreement/internal/wire"

	"github.com/google/uuid"
)

// CorrelatedDispatcher is the opt-in alternative to Engine's single-slot
// pending client: every in-flight request is tracked by request id in a
// map, so concurrent requests from different clients no longer race for
// the one pending slot. It is optional rather than the default; relaying a
// reply depends on it starting with the "Request ID: <uuid>" line of the
// coordinator's reply format (see Serve).
type CorrelatedDispatcher struct {
	conn   *net.UDPConn
	routes *membership.RoutingTable

	mu      sync.Mutex
	pending map[uuid.UUID]*net.UDPAddr
}

// NewCorrelated binds a UDP socket at listenAddr with per-request
// correlation enabled.
func NewCorrelated(listenAddr string) (*CorrelatedDispatcher, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &CorrelatedDispatcher{
		conn:    conn,
		routes:  membership.NewRoutingTable(),
		pending: make(map[uuid.UUID]*net.UDPAddr),
	}, nil
}

// Close releases the underlying socket.
func (e *CorrelatedDispatcher) Close() error { return e.conn.Close() }

// Routes exposes the routing table for inspection.
func (e *CorrelatedDispatcher) Routes() *membership.RoutingTable { return e.routes }

// Serve runs the receive loop. Unlike Engine, a reply is only relayed once
// it can be matched to a request id recorded at forward time, which
// requires the target to echo the request id in its reply — the
// coordinator's plain-text reply format already embeds "Request ID: <uuid>"
// as its first line, which is parsed back out here.
func (e *CorrelatedDispatcher) Serve() error {
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

		if id, ok := requestIDFromReply(text); ok {
			e.relay(id, text)
			continue
		}

		e.forward(text, src)
	}
}

func (e *CorrelatedDispatcher) forward(payload string, clientAddr *net.UDPAddr) {
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

	e.mu.Lock()
	e.pending[req.RequestID] = clientAddr
	e.mu.Unlock()

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
}

func (e *CorrelatedDispatcher) relay(id uuid.UUID, reply string) {
	e.mu.Lock()
	addr, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if !ok {
		log.Printf("dispatcher: reply for unknown request %s dropped", id)
		return
	}
	if _, err := e.conn.WriteToUDP([]byte(reply), addr); err != nil {
		log.Printf("dispatcher: forward response to client: %v", err)
	}
}

// requestIDFromReply parses the leading "Request ID: <uuid>" line produced
// by the coordinator's reply format.
func requestIDFromReply(text string) (uuid.UUID, bool) {
	const prefix = "Request ID: "
	if !strings.HasPrefix(text, prefix) {
		return uuid.UUID{}, false
	}
	rest := strings.TrimPrefix(text, prefix)
	line, _, _ := strings.Cut(rest, "\n")
	id, err := uuid.Parse(strings.TrimSpace(line))
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
