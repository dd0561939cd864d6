package query

import (
	"fmt"
	"strings"

	"github.com/mrc-ide/outpack-go/pkg/metadata"
)

// Format renders a query result as the response text returned to clients:
// "Found no packets" when empty, else one packet id per line.
func Format(packets []metadata.Packet) string {
	if len(packets) == 0 {
		return "Found no packets"
	}

	ids := make([]string, len(packets))
	for i, p := range packets {
		ids[i] = p.ID
	}

	return strings.Join(ids, "\n")
}

// Describe renders node as an s-expression, for the CLI's parse subcommand.
// pretty indents one clause per line; the compact form is single-line.
func Describe(node *Node, pretty bool) string {
	return describe(node, 0, pretty)
}

func describe(node *Node, depth int, pretty bool) string {
	if node == nil {
		return "None"
	}

	indent, nl := "", ""
	if pretty {
		indent, nl = strings.Repeat("  ", depth+1), "\n"
	}

	switch node.kind {
	case nodeLatest:
		return "Latest(" + nl + indent + describe(node.inner, depth+1, pretty) + ")"
	case nodeSingle:
		return "Single(" + nl + indent + describe(node.inner, depth+1, pretty) + ")"
	case nodeNegation:
		return "!(" + describe(node.inner, depth+1, pretty) + ")"
	case nodeBrackets:
		return "(" + describe(node.inner, depth+1, pretty) + ")"
	case nodeTest:
		return fmt.Sprintf("%s %s %s", describeValue(node.lhs), describeTestOp(node.test), describeValue(node.rhs))
	case nodeBooleanOp:
		opStr := "&&"
		if node.op == OpOr {
			opStr = "||"
		}

		return fmt.Sprintf(
			"%s%s%s%s %s %s%s%s",
			nl, indent, describe(node.left, depth+1, pretty), nl, opStr, indent,
			describe(node.right, depth+1, pretty), nl,
		)
	default:
		return "?"
	}
}

func describeValue(v Value) string {
	if v.IsLookup() {
		switch v.Lookup.Kind {
		case LookupID:
			return "id"
		case LookupName:
			return "name"
		case LookupParameter:
			return "parameter:" + v.Lookup.Name
		case LookupThis:
			return "this:" + v.Lookup.Name
		case LookupEnvironment:
			return "environment:" + v.Lookup.Name
		}
	}

	switch v.Literal.Kind {
	case LiteralString:
		return fmt.Sprintf("%q", v.Literal.String)
	case LiteralNumber:
		return fmt.Sprintf("%g", v.Literal.Number)
	case LiteralBool:
		return fmt.Sprintf("%t", v.Literal.Bool)
	}

	return "?"
}

func describeTestOp(op TestOp) string {
	switch op {
	case TestEqual:
		return "=="
	case TestNotEqual:
		return "!="
	case TestLessThan:
		return "<"
	case TestLessThanOrEqual:
		return "<="
	case TestGreaterThan:
		return ">"
	case TestGreaterThanOrEqual:
		return ">="
	default:
		return "?"
	}
}
