// Package metrics computes per-function code metrics over tree-sitter Rust
// syntax trees, filling the metric fields of catalog records.
package metrics

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// FunctionMetrics holds the metrics of one function body.
type FunctionMetrics struct {
	// Complexity is cyclomatic complexity: 1 plus one per decision point.
	Complexity int
	// BasicBlocks counts block expressions, including the body itself.
	BasicBlocks int
	// Statements counts statements and tail expressions.
	Statements int
}

// Measure computes metrics for a function_item or any body node. Nested
// function items are measured separately and skipped here.
func Measure(fn *sitter.Node, content []byte) FunctionMetrics {
	m := FunctionMetrics{Complexity: 1}
	body := fn
	if fn.Type() == "function_item" {
		body = fn.ChildByFieldName("body")
		if body == nil {
			return m
		}
	}
	m.walk(body, content)
	return m
}

func (m *FunctionMetrics) walk(n *sitter.Node, content []byte) {
	switch n.Type() {
	case "function_item":
		return
	case "if_expression", "while_expression", "for_expression", "loop_expression", "try_expression":
		m.Complexity++
	case "match_block":
		// A match with k arms adds k-1 paths.
		if arms := countNamed(n, "match_arm"); arms > 1 {
			m.Complexity += arms - 1
		}
	case "binary_expression":
		if op := n.ChildByFieldName("operator"); op != nil {
			switch op.Content(content) {
			case "&&", "||":
				m.Complexity++
			}
		}
	case "block":
		m.BasicBlocks++
		m.Statements += countStatements(n)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		m.walk(n.NamedChild(i), content)
	}
}

func countNamed(n *sitter.Node, typ string) int {
	count := 0
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if n.NamedChild(i).Type() == typ {
			count++
		}
	}
	return count
}

// countStatements counts the direct statements of a block. Items and
// comments are not statements.
func countStatements(block *sitter.Node) int {
	count := 0
	for i := 0; i < int(block.NamedChildCount()); i++ {
		switch c := block.NamedChild(i); c.Type() {
		case "line_comment", "block_comment", "empty_statement":
		default:
			if !strings.HasSuffix(c.Type(), "_item") {
				count++
			}
		}
	}
	return count
}
