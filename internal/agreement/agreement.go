// Package agreement implements a two-phase single-decree consensus
// protocol over HTTP/JSON RPC: prepare/accept/learn, with monotone round
// numbers, quorum-gated promises, and carry-forward of any
// already-accepted value.
package agreement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"replicated-agreement/internal/api"

	"github.com/gin-gonic/gin"
)

// Sentinel errors surfaced by the receiver and initiator algorithms.
var (
	ErrStaleRound           = errors.New("agreement: proposal id is below the last accepted round number")
	ErrRoundMismatch        = errors.New("agreement: proposal id mismatch")
	ErrInsufficientPromises = errors.New("agreement: insufficient promises for proposal")
	ErrProposalRejected     = errors.New("agreement: proposal rejected by majority")
	ErrUnknownPeer          = errors.New("agreement: unknown peer")
)

// Ballot is the pair of a monotone round number and an optional proposed
// value.
type Ballot struct {
	RoundID uint64  `json:"round_id"`
	Value   *string `json:"value,omitempty"`
}

// PeerNode is a discovered agreement peer.
type PeerNode struct {
	NodeID  uint64 `json:"node_id"`
	Address string `json:"address"`
}

// receiver holds the per-peer state: the highest round ever promised, and
// the highest accepted value, if any.
type receiver struct {
	mu              sync.Mutex
	lastRoundNumber uint64
	agreedValue     *Ballot
}

// initiator holds this node's monotone round counter.
type initiator struct {
	mu      sync.Mutex
	roundID uint64
}

// DataStore is the narrow learn-side collaborator: a key/value write made
// durable once a decree is learned. The baseline implementation here is an
// in-memory map; NewDurableDataStore upgrades it to an fsync'd log.
type DataStore struct {
	mu   sync.RWMutex
	data map[uint64]string
	log  *decreeLog // nil unless opened via NewDurableDataStore
}

// NewDataStore returns an empty in-memory data store.
func NewDataStore() *DataStore {
	return &DataStore{data: make(map[uint64]string)}
}

// Set records value under key. When the store was opened via
// NewDurableDataStore, the write is appended to the decree log first; a
// log failure is reported but the in-memory write still proceeds.
func (s *DataStore) Set(key uint64, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log != nil {
		if err := s.log.append(decreeLogEntry{RoundID: key, Value: value}); err != nil {
			fmt.Printf("agreement: decree log append failed for round %d: %v\n", key, err)
		}
	}
	s.data[key] = value
}

// Get returns the value stored under key, if any.
func (s *DataStore) Get(key uint64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Node is one agreement peer: initiator, receiver, and learner roles
// collapsed into a single type, as the HTTP routes below address them all
// by the same node identity.
type Node struct {
	ID      uint64
	Address string

	mu      sync.Mutex
	network []PeerNode

	receiver  receiver
	initiator initiator
	store     *DataStore

	httpClient *http.Client
}

// NewNode constructs a Node backed by a plain in-memory DataStore. No
// explicit cancellation propagates past the HTTP client's own timeout.
func NewNode(id uint64, address string) *Node {
	return NewNodeWithStore(id, address, NewDataStore())
}

// NewNodeWithStore constructs a Node backed by store — typically one opened
// via NewDurableDataStore, so decrees learned in a previous run are already
// present before the node starts serving.
func NewNodeWithStore(id uint64, address string, store *DataStore) *Node {
	return &Node{
		ID:         id,
		Address:    address,
		store:      store,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Store exposes the learn-side data store for inspection.
func (n *Node) Store() *DataStore { return n.store }

// AddPeer registers a discovered peer. It returns an error for this node's
// own id and for a node id already in the peer list.
func (n *Node) AddPeer(p PeerNode) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p.NodeID == n.ID {
		return fmt.Errorf("agreement: cannot connect to the same node")
	}
	for _, existing := range n.network {
		if existing.NodeID == p.NodeID {
			return fmt.Errorf("agreement: already connected to node %d", p.NodeID)
		}
	}
	n.network = append(n.network, p)
	return nil
}

// Peers returns a copy of the current peer list.
func (n *Node) Peers() []PeerNode {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]PeerNode, len(n.network))
	copy(out, n.network)
	return out
}

// ─── Receiver RPCs (prepare / accept / learn) ──────────────────────────────

// Prepare implements the receiver side of phase one: a receiver that has
// already promised round R never accepts a later prepare for round R' < R.
// If this receiver has already accepted a value that was never learned (the
// initiator that proposed it may have crashed before reaching quorum on
// accept), that value is carried forward in the promise so a later,
// higher-numbered round cannot silently overwrite it.
func (n *Node) Prepare(roundID uint64) (Ballot, error) {
	n.receiver.mu.Lock()
	defer n.receiver.mu.Unlock()

	if roundID <= n.receiver.lastRoundNumber {
		return Ballot{}, ErrStaleRound
	}

	n.receiver.lastRoundNumber = roundID

	if n.receiver.agreedValue != nil {
		return *n.receiver.agreedValue, nil
	}
	return Ballot{RoundID: roundID, Value: nil}, nil
}

// Accept implements the receiver side of phase two: an accept is honored
// only when its round id equals the round this receiver last promised.
func (n *Node) Accept(b Ballot) (Ballot, error) {
	n.receiver.mu.Lock()
	defer n.receiver.mu.Unlock()

	if b.RoundID != n.receiver.lastRoundNumber {
		return Ballot{}, ErrRoundMismatch
	}

	n.receiver.agreedValue = &Ballot{RoundID: b.RoundID, Value: b.Value}
	return b, nil
}

// Learn writes the decided value into the data store and resets all round
// state so the next decree can start from a clean slate.
func (n *Node) Learn(b Ballot) {
	value := ""
	if b.Value != nil {
		value = *b.Value
	}
	n.store.Set(b.RoundID, value)

	n.receiver.mu.Lock()
	n.receiver.lastRoundNumber = 0
	n.receiver.agreedValue = nil
	n.receiver.mu.Unlock()

	n.initiator.mu.Lock()
	n.initiator.roundID = 0
	n.initiator.mu.Unlock()
}

// ─── Initiator algorithm ────────────────────────────────────────────────────

type prepareResult struct {
	ballot Ballot
	err    error
}

// Propose runs the full initiator algorithm for value v: prepare a new
// round, require a quorum of promises, carry forward the highest-numbered
// promised value (if any), require a quorum of accepts, then
// fire-and-forget learn to every peer.
func (n *Node) Propose(ctx context.Context, v string) (Ballot, error) {
	n.initiator.mu.Lock()
	n.initiator.roundID++
	roundID := n.initiator.roundID
	n.initiator.mu.Unlock()

	peers := n.Peers()
	quorum := len(peers)/2 + 1

	promises := n.broadcastPrepare(ctx, peers, roundID)
	if len(promises) < quorum {
		return Ballot{}, ErrInsufficientPromises
	}

	final := v
	var highest *Ballot
	for _, p := range promises {
		if p.Value == nil {
			continue
		}
		if highest == nil || p.RoundID > highest.RoundID {
			b := p
			highest = &b
		}
	}
	if highest != nil {
		final = *highest.Value
	}

	decided := Ballot{RoundID: roundID, Value: &final}

	accepted := n.broadcastAccept(ctx, peers, decided)
	if accepted < quorum {
		return Ballot{}, ErrProposalRejected
	}

	n.broadcastLearn(ctx, peers, decided)
	n.store.Set(roundID, final)

	return decided, nil
}

func (n *Node) broadcastPrepare(ctx context.Context, peers []PeerNode, roundID uint64) []Ballot {
	results := make(chan prepareResult, len(peers))
	for _, p := range peers {
		go func(p PeerNode) {
			b, err := n.rpcPrepare(ctx, p, roundID)
			results <- prepareResult{ballot: b, err: err}
		}(p)
	}

	var promises []Ballot
	for range peers {
		r := <-results
		if r.err == nil {
			promises = append(promises, r.ballot)
		}
	}
	return promises
}

func (n *Node) broadcastAccept(ctx context.Context, peers []PeerNode, b Ballot) int {
	results := make(chan error, len(peers))
	for _, p := range peers {
		go func(p PeerNode) {
			results <- n.rpcAccept(ctx, p, b)
		}(p)
	}

	accepted := 0
	for range peers {
		if <-results == nil {
			accepted++
		}
	}
	return accepted
}

func (n *Node) broadcastLearn(ctx context.Context, peers []PeerNode, b Ballot) {
	// Fire-and-forget: learn never re-checks quorum. We still wait for the
	// sends to complete so the HTTP client isn't torn down mid-request, but
	// a learn failure is never surfaced.
	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p PeerNode) {
			defer wg.Done()
			_ = n.rpcLearn(ctx, p, b)
		}(p)
	}
	wg.Wait()
}

// ─── HTTP router ────────────────────────────────────────────────────────────

// Router builds the gin engine exposing this node's peer-discovery and
// consensus RPC routes.
func (n *Node) Router() *gin.Engine {
	r := gin.New()
	r.Use(api.Logger(), api.Recovery())

	r.GET("/", n.handleInfo)
	r.GET("/info", n.handleDiagnostic)
	r.POST("/ping", n.handlePing)
	r.POST("/connect", n.handleConnect)
	r.POST("/initiate", n.handleInitiate)
	r.POST("/respond-prepare", n.handleRespondPrepare)
	r.POST("/respond-accept", n.handleRespondAccept)
	r.POST("/respond-learn", n.handleRespondLearn)
	return r
}
