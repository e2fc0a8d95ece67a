package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// AuditTree is a tamper-evident merkle tree over all recorded verdicts.
// Appends are rare (one per promise lifetime) so the naive O(N) rebuild
// is fine.
type AuditTree struct {
	mu     sync.Mutex
	leaves []*auditNode
	root   *auditNode
}

type auditNode struct {
	left  *auditNode
	right *auditNode
	hash  string
	data  string // only leaves carry data
}

// NewAuditTree creates an empty tree.
func NewAuditTree() *AuditTree {
	return &AuditTree{leaves: make([]*auditNode, 0)}
}

func hashData(data string) string {
	h := sha256.New()
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Append adds one verdict entry and recalculates the root.
func (t *AuditTree) Append(promiseID, summary string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := fmt.Sprintf("[%s] %s: %s", time.Now().Format(time.RFC3339), promiseID, summary)
	t.leaves = append(t.leaves, &auditNode{hash: hashData(entry), data: entry})
	t.recalculateRoot()
	return entry
}

// RootHash returns the current merkle root ("" while empty).
func (t *AuditTree) RootHash() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return ""
	}
	return t.root.hash
}

func (t *AuditTree) recalculateRoot() {
	if len(t.leaves) == 0 {
		return
	}

	nodes := t.leaves
	for len(nodes) > 1 {
		var nextLevel []*auditNode

		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			right := left // duplicate last node if odd number
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}

			nextLevel = append(nextLevel, &auditNode{
				left:  left,
				right: right,
				hash:  hashData(left.hash + right.hash),
			})
		}
		nodes = nextLevel
	}

	t.root = nodes[0]
}
