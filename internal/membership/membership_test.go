package membership

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFollowerSetIdempotent(t *testing.T) {
	fs := NewFollowerSet()
	fs.Register("a:1")
	fs.Register("a:1")
	fs.Register("b:2")

	require.Equal(t, 2, fs.Len())
	require.ElementsMatch(t, []string{"a:1", "b:2"}, fs.Snapshot())
}

func TestRoutingTableNoTarget(t *testing.T) {
	rt := NewRoutingTable()
	require.Equal(t, "", rt.ChooseNextTarget())
}

func TestRoutingTableFollowersOnly(t *testing.T) {
	rt := NewRoutingTable()
	rt.RegisterFollower("f1")
	rt.RegisterFollower("f2")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[rt.ChooseNextTarget()] = true
	}
	require.True(t, seen["f1"])
	require.True(t, seen["f2"])
}

func TestRoutingTableVisitsEveryTargetWithinN(t *testing.T) {
	rt := NewRoutingTable()
	rt.RegisterCoordinator("c")
	rt.RegisterFollower("f1")
	rt.RegisterFollower("f2")

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		seen[rt.ChooseNextTarget()] = true
	}
	require.Len(t, seen, 3)
	require.True(t, seen["c"] && seen["f1"] && seen["f2"])
}

func TestRoutingTableLastCoordinatorWins(t *testing.T) {
	rt := NewRoutingTable()
	rt.RegisterCoordinator("c1")
	rt.RegisterCoordinator("c2")
	require.True(t, rt.HasCoordinator())
	require.Equal(t, "c2", rt.ChooseNextTarget())
}
