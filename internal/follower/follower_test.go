package follower

import (
	"net"
	"testing"
	"time"

	"replicated-agreement/internal/wire"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newLoopbackAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

func TestServeAcksRequestsFromCoordinator(t *testing.T) {
	coordConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer coordConn.Close()

	e, err := New(newLoopbackAddr(t), coordConn.LocalAddr().String())
	require.NoError(t, err)
	defer e.Close()

	go e.Serve()

	req := wire.ClientRequest{RequestID: uuid.New(), Payload: []byte("hello")}
	frame, err := wire.Encode(req)
	require.NoError(t, err)

	followerAddr, err := net.ResolveUDPAddr("udp", e.conn.LocalAddr().String())
	require.NoError(t, err)
	_, err = coordConn.WriteToUDP(frame, followerAddr)
	require.NoError(t, err)

	require.NoError(t, coordConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := coordConn.ReadFromUDP(buf)
	require.NoError(t, err)

	msg, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	ack, ok := msg.(wire.FollowerAck)
	require.True(t, ok)
	require.Equal(t, req.RequestID, ack.RequestID)
}

func TestServeForwardsStrayRequestsToCoordinator(t *testing.T) {
	coordConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer coordConn.Close()

	e, err := New(newLoopbackAddr(t), coordConn.LocalAddr().String())
	require.NoError(t, err)
	defer e.Close()

	go e.Serve()

	strayConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer strayConn.Close()

	req := wire.ClientRequest{RequestID: uuid.New(), Payload: []byte("stray")}
	frame, err := wire.Encode(req)
	require.NoError(t, err)

	followerAddr, err := net.ResolveUDPAddr("udp", e.conn.LocalAddr().String())
	require.NoError(t, err)
	_, err = strayConn.WriteToUDP(frame, followerAddr)
	require.NoError(t, err)

	require.NoError(t, coordConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, wire.MaxDatagramSize)
	n, _, err := coordConn.ReadFromUDP(buf)
	require.NoError(t, err)

	msg, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	forwarded, ok := msg.(wire.ClientRequest)
	require.True(t, ok)
	require.Equal(t, req.RequestID, forwarded.RequestID)
	require.Equal(t, req.Payload, forwarded.Payload)
}

func TestAddrEqual(t *testing.T) {
	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	b := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	c := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001}

	require.True(t, addrEqual(a, b))
	require.False(t, addrEqual(a, c))
	require.False(t, addrEqual(nil, b))
}
