package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

var (
	errSyntax         = errors.New("syntax error")
	errNotExpression  = errors.New("macro argument is not a single expression")
	errMissingMacroTT = errors.New("macro invocation has no token tree")
)

// exprWrapperHead opens the synthetic function a macro body is parsed in.
// The body always starts on the wrapper's second row.
const exprWrapperHead = "fn __calltree_body() {\n"

// source is one parsed buffer. lineBase maps tree-sitter rows back to
// 1-based lines of the entry-point file.
type source struct {
	content  []byte
	lineBase int
}

func (s *source) text(n *sitter.Node) string {
	return n.Content(s.content)
}

func (s *source) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + s.lineBase
}

func parseRust(ctx context.Context, content []byte) (*sitter.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(rust.GetLanguage())
	return p.ParseCtx(ctx, nil, content)
}

// firstErrorRow returns the 0-based row of the first ERROR or MISSING node.
func firstErrorRow(n *sitter.Node) (uint32, bool) {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n.StartPoint().Row, true
	}
	if !n.HasError() {
		return 0, false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if row, ok := firstErrorRow(n.Child(i)); ok {
			return row, true
		}
	}
	return n.StartPoint().Row, true
}

// macroName returns the last path segment of a macro_invocation's path.
func macroName(n *sitter.Node, content []byte) string {
	m := n.ChildByFieldName("macro")
	if m == nil {
		return ""
	}
	if m.Type() == "scoped_identifier" {
		if name := m.ChildByFieldName("name"); name != nil {
			return name.Content(content)
		}
	}
	return lastSegment(m.Content(content))
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "::"); i >= 0 {
		return path[i+2:]
	}
	return path
}

func tokenTree(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "token_tree" {
			return c
		}
	}
	return nil
}

// findMacros collects every macro_invocation named trigger under n.
func findMacros(n *sitter.Node, content []byte, trigger string, out []*sitter.Node) []*sitter.Node {
	if n.Type() == "macro_invocation" && macroName(n, content) == trigger {
		out = append(out, n)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = findMacros(n.NamedChild(i), content, trigger, out)
	}
	return out
}

// parsedExpr is a macro body re-parsed as an expression. The tree must be
// closed once the walk is done.
type parsedExpr struct {
	tree *sitter.Tree
	expr *sitter.Node
	src  *source
}

func (p *parsedExpr) close() {
	if p.tree != nil {
		p.tree.Close()
	}
}

// parseMacroBody re-parses the token tree of a macro invocation as a single
// Rust expression, keeping line numbers relative to the enclosing file.
func parseMacroBody(ctx context.Context, mac *sitter.Node, outer *source) (*parsedExpr, error) {
	tt := tokenTree(mac)
	if tt == nil {
		return nil, errMissingMacroTT
	}
	raw := outer.text(tt)
	if len(raw) < 2 {
		return nil, errNotExpression
	}
	body := raw[1 : len(raw)-1]

	var buf strings.Builder
	buf.WriteString(exprWrapperHead)
	buf.WriteString(body)
	buf.WriteString("\n}\n")
	content := []byte(buf.String())

	tree, err := parseRust(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("parse macro body: %w", err)
	}
	// The body's first wrapper row is row 1; it sits on the token tree's row.
	src := &source{content: content, lineBase: outer.line(tt) - 1}

	expr, err := singleExpression(tree.RootNode(), src)
	if err != nil {
		tree.Close()
		return nil, err
	}
	return &parsedExpr{tree: tree, expr: expr, src: src}, nil
}

// singleExpression returns the only expression of the wrapper function
// body, or errNotExpression when the body is anything else.
func singleExpression(root *sitter.Node, src *source) (*sitter.Node, error) {
	if root.HasError() {
		return nil, errNotExpression
	}
	if root.NamedChildCount() != 1 || root.NamedChild(0).Type() != "function_item" {
		return nil, errNotExpression
	}
	block := root.NamedChild(0).ChildByFieldName("body")
	if block == nil {
		return nil, errNotExpression
	}

	var only *sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		c := block.NamedChild(i)
		switch c.Type() {
		case "line_comment", "block_comment":
			continue
		}
		if only != nil {
			return nil, errNotExpression
		}
		only = c
	}
	if only == nil {
		return nil, errNotExpression
	}

	switch t := only.Type(); {
	case t == "let_declaration", t == "empty_statement", strings.HasSuffix(t, "_item"):
		return nil, errNotExpression
	case t == "expression_statement":
		if strings.HasSuffix(strings.TrimSpace(src.text(only)), ";") || only.NamedChildCount() != 1 {
			return nil, errNotExpression
		}
		return only.NamedChild(0), nil
	}
	return only, nil
}
