package agreement

import (
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleInfo serves GET / — a JSON snapshot of this node's identity.
func (n *Node) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, PeerNode{NodeID: n.ID, Address: n.Address})
}

// handleDiagnostic serves GET /info, logging the node's id and peer list
// for operator inspection and returning no body.
func (n *Node) handleDiagnostic(c *gin.Context) {
	log.Printf("node %d: peers=%v", n.ID, n.Peers())
	c.Status(http.StatusOK)
}

type pingRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// handlePing serves POST /ping: the receiving side of peer discovery.
// Rejects self-connections and duplicate peers.
func (n *Node) handlePing(c *gin.Context) {
	var body pingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed ping request"})
		return
	}

	nodeID, err := strconv.ParseUint(body.NodeID, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed node_id"})
		return
	}

	if err := n.AddPeer(PeerNode{NodeID: nodeID, Address: body.Address}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("[/ping] node %d: connected to peer %d at %s", n.ID, nodeID, body.Address)
	c.JSON(http.StatusOK, gin.H{
		"node_id": strconv.FormatUint(n.ID, 10),
		"address": n.Address,
	})
}

// handleConnect serves POST /connect: the initiating side of peer
// discovery. The request body is the plain target address string.
func (n *Node) handleConnect(c *gin.Context) {
	target, err := readPlainBody(c)
	if err != nil {
		c.String(http.StatusBadRequest, "malformed target address")
		return
	}

	if err := n.connect(c.Request.Context(), target); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	c.String(http.StatusOK, "Connected to peer: %s!", target)
}

// handleInitiate serves POST /initiate: runs the full proposal algorithm
// for the plain-text value in the request body.
func (n *Node) handleInitiate(c *gin.Context) {
	value, err := readPlainBody(c)
	if err != nil {
		c.String(http.StatusBadRequest, "malformed proposal value")
		return
	}

	if _, err := n.Propose(c.Request.Context(), value); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	c.String(http.StatusOK, "Proposal agreed by majority!")
}

// handleRespondPrepare serves POST /respond-prepare: the receiver side of
// phase one. The request body is the plain-text round id.
func (n *Node) handleRespondPrepare(c *gin.Context) {
	raw, err := readPlainBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, prepareWire{Error: strPtr("malformed round id")})
		return
	}
	roundID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, prepareWire{Error: strPtr("malformed round id")})
		return
	}

	ballot, err := n.Prepare(roundID)
	if err != nil {
		c.JSON(http.StatusBadRequest, prepareWire{Error: strPtr(err.Error())})
		return
	}
	c.JSON(http.StatusOK, prepareWire{Value: &ballot})
}

// handleRespondAccept serves POST /respond-accept: the receiver side of
// phase two.
func (n *Node) handleRespondAccept(c *gin.Context) {
	var b Ballot
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, acceptWire{Error: strPtr("malformed ballot")})
		return
	}

	accepted, err := n.Accept(b)
	if err != nil {
		c.JSON(http.StatusBadRequest, acceptWire{Error: strPtr(err.Error())})
		return
	}
	c.JSON(http.StatusOK, acceptWire{Value: &accepted})
}

// handleRespondLearn serves POST /respond-learn: writes the decided value
// and resets round state for the next decree.
func (n *Node) handleRespondLearn(c *gin.Context) {
	var b Ballot
	if err := c.ShouldBindJSON(&b); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	n.Learn(b)
	log.Printf("[/respond-learn] node %d: recorded round %d", n.ID, b.RoundID)
	c.Status(http.StatusOK)
}

func strPtr(s string) *string { return &s }

// readPlainBody reads the entire request body as a plain UTF-8 string, for
// routes whose payload is a bare string rather than a JSON object.
func readPlainBody(c *gin.Context) (string, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
