package query

import (
	"errors"
	"fmt"

	"github.com/mrc-ide/outpack-go/pkg/index"
	"github.com/mrc-ide/outpack-go/pkg/metadata"
)

// ErrEval is returned when a query evaluates grammatically but fails a
// runtime constraint, such as Single matching more or less than one packet.
var ErrEval = errors.New("query evaluation error")

// Eval evaluates node against idx, returning an ordered, deduplicated
// slice of matching packets.
func Eval(idx index.Index, node *Node) ([]metadata.Packet, error) {
	switch node.kind {
	case nodeLatest:
		return evalLatest(idx, node.inner)
	case nodeSingle:
		return evalSingle(idx, node.inner)
	case nodeTest:
		return evalTest(idx, node), nil
	case nodeNegation:
		return evalNegation(idx, node.inner)
	case nodeBrackets:
		return Eval(idx, node.inner)
	case nodeBooleanOp:
		return evalBooleanOp(idx, node)
	default:
		return nil, fmt.Errorf("%w: unknown node kind", ErrEval)
	}
}

func evalLatest(idx index.Index, inner *Node) ([]metadata.Packet, error) {
	if inner == nil {
		if idx.Len() == 0 {
			return nil, nil
		}

		return []metadata.Packet{idx.Packets[idx.Len()-1]}, nil
	}

	packets, err := Eval(idx, inner)
	if err != nil {
		return nil, err
	}

	if len(packets) == 0 {
		return nil, nil
	}

	return []metadata.Packet{packets[len(packets)-1]}, nil
}

func evalSingle(idx index.Index, inner *Node) ([]metadata.Packet, error) {
	packets, err := Eval(idx, inner)
	if err != nil {
		return nil, err
	}

	if len(packets) != 1 {
		return nil, fmt.Errorf("%w: Query found %d packets, but expected exactly one", ErrEval, len(packets))
	}

	return packets, nil
}

func evalNegation(idx index.Index, inner *Node) ([]metadata.Packet, error) {
	matched, err := Eval(idx, inner)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(matched))
	for _, p := range matched {
		excluded[p.ID] = true
	}

	result := make([]metadata.Packet, 0, idx.Len())

	for _, p := range idx.Packets {
		if !excluded[p.ID] {
			result = append(result, p)
		}
	}

	return result, nil
}

func evalBooleanOp(idx index.Index, node *Node) ([]metadata.Packet, error) {
	left, err := Eval(idx, node.left)
	if err != nil {
		return nil, err
	}

	right, err := Eval(idx, node.right)
	if err != nil {
		return nil, err
	}

	leftIDs := make(map[string]bool, len(left))
	for _, p := range left {
		leftIDs[p.ID] = true
	}

	rightIDs := make(map[string]bool, len(right))
	for _, p := range right {
		rightIDs[p.ID] = true
	}

	result := make([]metadata.Packet, 0)

	for _, p := range idx.Packets {
		switch node.op {
		case OpAnd:
			if leftIDs[p.ID] && rightIDs[p.ID] {
				result = append(result, p)
			}
		case OpOr:
			if leftIDs[p.ID] || rightIDs[p.ID] {
				result = append(result, p)
			}
		}
	}

	return result, nil
}

func evalTest(idx index.Index, node *Node) []metadata.Packet {
	result := make([]metadata.Packet, 0)

	for _, p := range idx.Packets {
		if testMatches(p, node.test, node.lhs, node.rhs) {
			result = append(result, p)
		}
	}

	return result
}

func testMatches(p metadata.Packet, op TestOp, lhs, rhs Value) bool {
	lhsLit, lhsOK := resolve(p, lhs)
	rhsLit, rhsOK := resolve(p, rhs)

	if !lhsOK || !rhsOK {
		return false
	}

	if lhsLit.Kind == LiteralNumber && rhsLit.Kind == LiteralNumber {
		return compareNumbers(op, lhsLit.Number, rhsLit.Number)
	}

	if lhsLit.Kind != rhsLit.Kind {
		return false
	}

	switch op {
	case TestEqual:
		return literalsEqual(lhsLit, rhsLit)
	case TestNotEqual:
		return !literalsEqual(lhsLit, rhsLit)
	case TestLessThan, TestLessThanOrEqual, TestGreaterThan, TestGreaterThanOrEqual:
		return false
	default:
		return false
	}
}

func compareNumbers(op TestOp, l, r float64) bool {
	switch op {
	case TestEqual:
		return l == r
	case TestNotEqual:
		return l != r
	case TestLessThan:
		return l < r
	case TestLessThanOrEqual:
		return l <= r
	case TestGreaterThan:
		return l > r
	case TestGreaterThanOrEqual:
		return l >= r
	default:
		return false
	}
}

func literalsEqual(a, b Literal) bool {
	switch a.Kind {
	case LiteralString:
		return a.String == b.String
	case LiteralBool:
		return a.Bool == b.Bool
	case LiteralNumber:
		return a.Number == b.Number
	default:
		return false
	}
}

// resolve reduces a Value to a Literal against packet p. The second return
// is false when the value is absent: an unresolvable lookup, or a
// parameter that is missing or holds a non-scalar value.
func resolve(p metadata.Packet, v Value) (Literal, bool) {
	if v.Literal != nil {
		return *v.Literal, true
	}

	switch v.Lookup.Kind {
	case LookupID:
		return Literal{Kind: LiteralString, String: p.ID}, true
	case LookupName:
		return Literal{Kind: LiteralString, String: p.Name}, true
	case LookupParameter:
		return resolveParameter(p, v.Lookup.Name)
	case LookupThis, LookupEnvironment:
		// No outer evaluation context is threaded through Eval; these
		// lookups always resolve to absent.
		return Literal{}, false
	default:
		return Literal{}, false
	}
}

func resolveParameter(p metadata.Packet, name string) (Literal, bool) {
	if p.Parameters == nil {
		return Literal{}, false
	}

	raw, ok := p.Parameters[name]
	if !ok {
		return Literal{}, false
	}

	switch val := raw.(type) {
	case string:
		return Literal{Kind: LiteralString, String: val}, true
	case bool:
		return Literal{Kind: LiteralBool, Bool: val}, true
	case float64:
		return Literal{Kind: LiteralNumber, Number: val}, true
	default:
		return Literal{}, false
	}
}
