package coordinator

import (
	"fmt"
	"net"
	"time"

	"replicated-agreement/internal/wire"

	"golang.org/x/net/ipv4"
)

// DefaultMulticastGroup and DefaultMulticastTTL are the standard defaults:
// group 224.0.0.1, TTL 1 (local link) unless configured otherwise.
const (
	DefaultMulticastGroup = "224.0.0.1"
	DefaultMulticastTTL   = 1
)

// MulticastTransport sends one datagram per cycle to a configured
// multicast group/port instead of unicasting to each follower individually.
// Ack collection semantics are unchanged — acks still arrive on the
// coordinator's own unicast socket.
type MulticastTransport struct {
	conn      *net.UDPConn
	pconn     *ipv4.PacketConn
	groupAddr *net.UDPAddr
}

// NewMulticastTransport wires a multicast sender on top of conn (the same
// socket the coordinator already uses for ack collection), joining group on
// the named interface (empty selects the default). ttl must be >= 1.
func NewMulticastTransport(conn *net.UDPConn, group, iface string, ttl int) (*MulticastTransport, error) {
	groupAddr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolve multicast group: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	var ifi *net.Interface
	if iface != "" {
		ifi, err = net.InterfaceByName(iface)
		if err != nil {
			return nil, fmt.Errorf("coordinator: resolve multicast interface %q: %w", iface, err)
		}
	}

	if err := pconn.JoinGroup(ifi, groupAddr); err != nil {
		return nil, fmt.Errorf("coordinator: join multicast group: %w", err)
	}
	if err := pconn.SetMulticastTTL(ttl); err != nil {
		return nil, fmt.Errorf("coordinator: set multicast ttl: %w", err)
	}

	return &MulticastTransport{conn: conn, pconn: pconn, groupAddr: groupAddr}, nil
}

// SendRequest ignores the individual follower list and sends once to the
// multicast group; every follower that joined the group receives it.
func (m *MulticastTransport) SendRequest(_ []string, req wire.ClientRequest) error {
	frame, err := wire.Encode(req)
	if err != nil {
		return err
	}
	_, err = m.conn.WriteToUDP(frame, m.groupAddr)
	return err
}

// ReceiveAck is identical to the unicast path: acks still arrive as ordinary
// unicast datagrams addressed to the coordinator.
func (m *MulticastTransport) ReceiveAck(deadline time.Time) (wire.FollowerAck, string, error) {
	if err := m.conn.SetReadDeadline(deadline); err != nil {
		return wire.FollowerAck{}, "", err
	}
	defer m.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := m.conn.ReadFromUDP(buf)
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
