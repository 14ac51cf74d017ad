package agreement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// prepareWire/acceptWire are the JSON response shapes for the respective
// RPCs: an optional error string alongside an optional ballot.
type prepareWire struct {
	Error *string `json:"error,omitempty"`
	Value *Ballot `json:"value,omitempty"`
}

type acceptWire struct {
	Error *string `json:"error,omitempty"`
	Value *Ballot `json:"value,omitempty"`
}

func (n *Node) rpcPrepare(ctx context.Context, p PeerNode, roundID uint64) (Ballot, error) {
	body, err := json.Marshal(roundID)
	if err != nil {
		return Ballot{}, err
	}

	resp, err := n.post(ctx, p.Address, "/respond-prepare", body)
	if err != nil {
		return Ballot{}, err
	}
	defer resp.Body.Close()

	var payload prepareWire
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Ballot{}, fmt.Errorf("agreement: decode prepare response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.Error != nil {
		return Ballot{}, ErrStaleRound
	}
	if payload.Value == nil {
		return Ballot{}, fmt.Errorf("agreement: prepare response missing value")
	}
	return *payload.Value, nil
}

func (n *Node) rpcAccept(ctx context.Context, p PeerNode, b Ballot) error {
	body, err := json.Marshal(b)
	if err != nil {
		return err
	}

	resp, err := n.post(ctx, p.Address, "/respond-accept", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload acceptWire
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("agreement: decode accept response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.Error != nil {
		return ErrRoundMismatch
	}
	return nil
}

func (n *Node) rpcLearn(ctx context.Context, p PeerNode, b Ballot) error {
	body, err := json.Marshal(b)
	if err != nil {
		return err
	}
	resp, err := n.post(ctx, p.Address, "/respond-learn", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (n *Node) post(ctx context.Context, addr, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return n.httpClient.Do(req)
}

// connect pings target and, on success, records the returned peer.
func (n *Node) connect(ctx context.Context, target string) error {
	payload := map[string]string{
		"node_id": fmt.Sprintf("%d", n.ID),
		"address": n.Address,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := n.post(ctx, target, "/ping", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agreement: connect to %s: peer rejected ping", target)
	}

	var pong struct {
		NodeID  string `json:"node_id"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pong); err != nil {
		return fmt.Errorf("agreement: decode ping response: %w", err)
	}

	var nodeID uint64
	if _, err := fmt.Sscanf(pong.NodeID, "%d", &nodeID); err != nil {
		return fmt.Errorf("agreement: malformed node_id in ping response: %w", err)
	}

	return n.AddPeer(PeerNode{NodeID: nodeID, Address: pong.Address})
}
