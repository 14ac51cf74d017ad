package agreement

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	node   *Node
	server *httptest.Server
	addr   string
}

func newTestServer(t *testing.T, id uint64) *testServer {
	t.Helper()
	n := NewNode(id, "")
	srv := httptest.NewServer(n.Router())
	addr := strings.TrimPrefix(srv.URL, "http://")
	n.Address = addr
	return &testServer{node: n, server: srv, addr: addr}
}

func TestPrepareRejectsStaleRound(t *testing.T) {
	n := NewNode(1, "127.0.0.1:9001")

	_, err := n.Prepare(5)
	require.NoError(t, err)

	_, err = n.Prepare(5)
	require.ErrorIs(t, err, ErrStaleRound)

	_, err = n.Prepare(3)
	require.ErrorIs(t, err, ErrStaleRound)
}

func TestPrepareCarriesForwardAnAcceptedButUnlearnedValue(t *testing.T) {
	n := NewNode(1, "127.0.0.1:9001")

	_, err := n.Prepare(5)
	require.NoError(t, err)

	v := "already-accepted"
	_, err = n.Accept(Ballot{RoundID: 5, Value: &v})
	require.NoError(t, err)

	// A later, higher-numbered round must not silently lose the accepted
	// value just because Learn was never reached for round 5.
	b, err := n.Prepare(6)
	require.NoError(t, err)
	require.NotNil(t, b.Value)
	require.Equal(t, "already-accepted", *b.Value)
	require.Equal(t, uint64(5), b.RoundID)
}

func TestAcceptRejectsRoundMismatch(t *testing.T) {
	n := NewNode(1, "127.0.0.1:9001")

	_, err := n.Prepare(5)
	require.NoError(t, err)

	v := "x"
	_, err = n.Accept(Ballot{RoundID: 6, Value: &v})
	require.ErrorIs(t, err, ErrRoundMismatch)
}

func TestLearnResetsRoundState(t *testing.T) {
	n := NewNode(1, "127.0.0.1:9001")

	_, err := n.Prepare(5)
	require.NoError(t, err)
	v := "decided"
	_, err = n.Accept(Ballot{RoundID: 5, Value: &v})
	require.NoError(t, err)

	n.Learn(Ballot{RoundID: 5, Value: &v})

	got, ok := n.Store().Get(5)
	require.True(t, ok)
	require.Equal(t, "decided", got)

	// Round state reset: round 5 can be prepared again.
	_, err = n.Prepare(5)
	require.NoError(t, err)
}

func TestAddPeerRejectsSelfAndDuplicates(t *testing.T) {
	n := NewNode(1, "127.0.0.1:9001")

	require.Error(t, n.AddPeer(PeerNode{NodeID: 1, Address: "127.0.0.1:9001"}))

	require.NoError(t, n.AddPeer(PeerNode{NodeID: 2, Address: "127.0.0.1:9002"}))
	require.Error(t, n.AddPeer(PeerNode{NodeID: 2, Address: "127.0.0.1:9002"}))

	require.Len(t, n.Peers(), 1)
}

func TestProposeAcrossTwoNodesReachesAgreement(t *testing.T) {
	srvA := newTestServer(t, 1)
	srvB := newTestServer(t, 2)
	defer srvA.server.Close()
	defer srvB.server.Close()

	require.NoError(t, srvA.node.AddPeer(PeerNode{NodeID: 2, Address: srvB.addr}))
	require.NoError(t, srvB.node.AddPeer(PeerNode{NodeID: 1, Address: srvA.addr}))

	decided, err := srvA.node.Propose(context.Background(), "hello-world")
	require.NoError(t, err)
	require.Equal(t, "hello-world", *decided.Value)

	got, ok := srvB.node.Store().Get(decided.RoundID)
	require.True(t, ok)
	require.Equal(t, "hello-world", got)
}
