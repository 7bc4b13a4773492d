package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeKind identifies the position class of a node in the aggregation tree.
type NodeKind uint8

const (
	// NodeKindLeaf is proven directly from raw claims
	NodeKindLeaf NodeKind = iota
	// NodeKindIntermediate aggregates two child snarks
	NodeKindIntermediate
	// NodeKindRoot aggregates two child snarks at the top of the binary tree
	NodeKindRoot
	// NodeKindEvm wraps a single snark, round times, until it can be verified on-chain
	NodeKindEvm
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindLeaf:
		return "Leaf"
	case NodeKindIntermediate:
		return "Intermediate"
	case NodeKindRoot:
		return "Root"
	case NodeKindEvm:
		return "Evm"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// NodeType is the type of a node in the aggregation tree. Round is only
// meaningful for NodeKindEvm.
type NodeType struct {
	Kind  NodeKind
	Round uint
}

// Leaf returns the Leaf node type
func Leaf() NodeType { return NodeType{Kind: NodeKindLeaf} }

// Intermediate returns the Intermediate node type
func Intermediate() NodeType { return NodeType{Kind: NodeKindIntermediate} }

// Root returns the Root node type
func Root() NodeType { return NodeType{Kind: NodeKindRoot} }

// Evm returns the Evm node type performing round+1 rounds of verification
// over the Root snark
func Evm(round uint) NodeType { return NodeType{Kind: NodeKindEvm, Round: round} }

func (t NodeType) String() string {
	if t.Kind == NodeKindEvm {
		return fmt.Sprintf("Evm(%d)", t.Round)
	}
	return t.Kind.String()
}

// MarshalJSON encodes unit variants as a bare string and Evm as {"Evm": round}
func (t NodeType) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case NodeKindLeaf, NodeKindIntermediate, NodeKindRoot:
		return json.Marshal(t.Kind.String())
	case NodeKindEvm:
		return json.Marshal(map[string]uint{"Evm": t.Round})
	default:
		return nil, fmt.Errorf("unknown node kind %d", t.Kind)
	}
}

// UnmarshalJSON decodes the representation produced by MarshalJSON
func (t *NodeType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		switch name {
		case "Leaf":
			*t = Leaf()
		case "Intermediate":
			*t = Intermediate()
		case "Root":
			*t = Root()
		default:
			return fmt.Errorf("unknown node type %q", name)
		}
		return nil
	}

	var evm map[string]uint
	if err := json.Unmarshal(data, &evm); err != nil {
		return fmt.Errorf("unknown node type %s: %w", string(data), err)
	}
	round, ok := evm["Evm"]
	if !ok || len(evm) != 1 {
		return fmt.Errorf("unknown node type %s", string(data))
	}
	*t = Evm(round)

	return nil
}

// NodeParams identifies a position in the aggregation tree. It is comparable
// and used as map key.
type NodeParams struct {
	// NodeType of the node in the aggregation tree
	NodeType NodeType `json:"node_type"`
	// Depth of the node: it covers at most 2^Depth claims
	Depth uint `json:"depth"`
	// InitialDepth of the tree: leaves cover at most 2^InitialDepth claims
	InitialDepth uint `json:"initial_depth"`
}

// NewNodeParams returns a NodeParams checking that depth >= initialDepth
func NewNodeParams(nodeType NodeType, depth, initialDepth uint) (NodeParams, error) {
	if depth < initialDepth {
		return NodeParams{}, fmt.Errorf("%w: depth %d is lower than initial depth %d",
			ErrInvalidInput, depth, initialDepth)
	}

	return NodeParams{NodeType: nodeType, Depth: depth, InitialDepth: initialDepth}, nil
}

func (p NodeParams) String() string {
	return fmt.Sprintf("%s@%d/%d", p.NodeType, p.Depth, p.InitialDepth)
}

// IsLeafDepth reports whether the node sits at the leaf layer and must be
// proven directly from claims.
func (p NodeParams) IsLeafDepth() bool {
	return p.Depth == p.InitialDepth
}

// Child returns the params of the children of this node. The second value is
// false when the node has no children.
func (p NodeParams) Child() (NodeParams, bool) {
	switch p.NodeType.Kind {
	case NodeKindLeaf:
		return NodeParams{}, false
	case NodeKindIntermediate, NodeKindRoot:
		if p.Depth <= p.InitialDepth {
			return NodeParams{}, false
		}
		if p.Depth == p.InitialDepth+1 {
			return NodeParams{NodeType: Leaf(), Depth: p.InitialDepth, InitialDepth: p.InitialDepth}, true
		}
		return NodeParams{NodeType: Intermediate(), Depth: p.Depth - 1, InitialDepth: p.InitialDepth}, true
	case NodeKindEvm:
		if p.NodeType.Round > 0 {
			return NodeParams{NodeType: Evm(p.NodeType.Round - 1), Depth: p.Depth, InitialDepth: p.InitialDepth}, true
		}
		childType := Root()
		if p.Depth == p.InitialDepth {
			childType = Leaf()
		}
		return NodeParams{NodeType: childType, Depth: p.Depth, InitialDepth: p.InitialDepth}, true
	default:
		return NodeParams{}, false
	}
}

// Compare orders params by node kind, round, depth and initial depth.
// It returns -1, 0 or +1.
func (p NodeParams) Compare(o NodeParams) int {
	switch {
	case p.NodeType.Kind != o.NodeType.Kind:
		return cmpUint(uint(p.NodeType.Kind), uint(o.NodeType.Kind))
	case p.NodeType.Round != o.NodeType.Round:
		return cmpUint(p.NodeType.Round, o.NodeType.Round)
	case p.Depth != o.Depth:
		return cmpUint(p.Depth, o.Depth)
	default:
		return cmpUint(p.InitialDepth, o.InitialDepth)
	}
}

func cmpUint(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// TreeParams enumerates every NodeParams the scheduler resolves a circuit for
// in trees of depth initialDepth..maxDepth. Descent stops at the leaf layer,
// where a node is proven directly from claims whatever its type.
func TreeParams(maxDepth, initialDepth, extraRounds uint) ([]NodeParams, error) {
	if maxDepth < initialDepth {
		return nil, fmt.Errorf("%w: max depth %d is lower than initial depth %d",
			ErrInvalidInput, maxDepth, initialDepth)
	}
	seen := make(map[NodeParams]struct{})
	result := make([]NodeParams, 0)
	for depth := initialDepth; depth <= maxDepth; depth++ {
		current := NodeParams{NodeType: Evm(extraRounds), Depth: depth, InitialDepth: initialDepth}
		for {
			if _, ok := seen[current]; !ok {
				seen[current] = struct{}{}
				result = append(result, current)
			}
			if current.IsLeafDepth() {
				break
			}
			child, ok := current.Child()
			if !ok {
				break
			}
			current = child
		}
	}

	return result, nil
}
