package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"replicated-agreement/internal/agreement"

	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, id uint64) (*agreement.Node, *httptest.Server, string) {
	t.Helper()
	n := agreement.NewNode(id, "")
	srv := httptest.NewServer(n.Router())
	addr := strings.TrimPrefix(srv.URL, "http://")
	n.Address = addr
	return n, srv, addr
}

func TestClientInfo(t *testing.T) {
	n, srv, addr := newTestNode(t, 7)
	defer srv.Close()

	c := New("http://"+addr, 0)
	info, err := c.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, n.ID, info.NodeID)
	require.Equal(t, addr, info.Address)
}

func TestClientConnectAndPropose(t *testing.T) {
	_, srvA, addrA := newTestNode(t, 1)
	_, srvB, addrB := newTestNode(t, 2)
	defer srvA.Close()
	defer srvB.Close()

	cA := New("http://"+addrA, 0)
	require.NoError(t, cA.Connect(context.Background(), addrB))

	require.NoError(t, cA.Propose(context.Background(), "hello-client"))
}

func TestClientGetRaw(t *testing.T) {
	_, srv, addr := newTestNode(t, 3)
	defer srv.Close()

	c := New("http://"+addr, 0)

	body, err := c.GetRaw(context.Background(), "/")
	require.NoError(t, err)
	require.Contains(t, body, `"address":"`+addr+`"`)
	require.Contains(t, body, "node_id")

	// /info has no structured response body — GetRaw still succeeds.
	body, err = c.GetRaw(context.Background(), "/info")
	require.NoError(t, err)
	require.Empty(t, body)
}

func TestClientPropose_NoPeersFails(t *testing.T) {
	_, srv, addr := newTestNode(t, 9)
	defer srv.Close()

	c := New("http://"+addr, 0)
	err := c.Propose(context.Background(), "lonely")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}
