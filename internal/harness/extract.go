package harness

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/fuzzlens/calltree/internal/catalog"
)

// ExtractObservations parses one entry-point file and returns the calls made
// inside the argument of every trigger macro invocation, normalized and in
// line order.
func ExtractObservations(ctx context.Context, path string, content []byte, cat *catalog.Catalog, trigger string) ([]Observation, error) {
	tree, err := parseRust(ctx, content)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if row, bad := firstErrorRow(root); bad {
		return nil, &ParseError{Path: path, Line: int(row) + 1, Err: errSyntax}
	}

	file := &source{content: content, lineBase: 1}
	e := &extractor{
		ctx:      ctx,
		cat:      cat,
		bindings: make(map[string]string),
	}
	for _, mac := range findMacros(root, content, trigger, nil) {
		body, err := parseMacroBody(ctx, mac, file)
		if err != nil {
			return nil, &ParseError{Path: path, Line: file.line(mac), Err: err}
		}
		e.walk(body.expr, body.src)
		body.close()
	}

	return NormalizeObservations(e.observations), nil
}

// extractor carries the state of one entry-point walk: the local variable
// type bindings and the raw observations.
type extractor struct {
	ctx          context.Context
	cat          *catalog.Catalog
	bindings     map[string]string
	observations []Observation
}

func (e *extractor) record(name string, line int) {
	e.observations = append(e.observations, Observation{Name: name, Line: line})
}

// walk visits an expression, unwrapping every construct that can hold a call.
func (e *extractor) walk(n *sitter.Node, src *source) {
	if n == nil {
		return
	}

	switch n.Type() {
	case "call_expression":
		e.visitCall(n, src)

	case "block":
		e.visitBlock(n, src)

	case "let_declaration":
		e.visitLet(n, src)

	case "if_expression":
		e.walk(n.ChildByFieldName("condition"), src)
		e.walk(n.ChildByFieldName("consequence"), src)
		e.walk(n.ChildByFieldName("alternative"), src)

	case "let_condition":
		e.walk(n.ChildByFieldName("value"), src)

	case "match_expression":
		e.walk(n.ChildByFieldName("value"), src)
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				if arm := body.NamedChild(i); arm.Type() == "match_arm" {
					e.walk(arm.ChildByFieldName("value"), src)
				}
			}
		}

	case "while_expression":
		e.walk(n.ChildByFieldName("condition"), src)
		e.walk(n.ChildByFieldName("body"), src)

	case "for_expression":
		e.walk(n.ChildByFieldName("value"), src)
		e.walk(n.ChildByFieldName("body"), src)

	case "closure_expression":
		e.walk(n.ChildByFieldName("body"), src)

	case "assignment_expression", "compound_assignment_expr", "binary_expression":
		e.walk(n.ChildByFieldName("left"), src)
		e.walk(n.ChildByFieldName("right"), src)

	case "field_expression":
		e.walk(n.ChildByFieldName("value"), src)

	case "struct_expression":
		e.visitStructLiteral(n.ChildByFieldName("body"), src)

	case "macro_invocation":
		e.visitMacro(n, src)

	case "loop_expression", "await_expression", "try_expression", "return_expression",
		"unary_expression", "reference_expression", "index_expression",
		"tuple_expression", "array_expression", "parenthesized_expression",
		"type_cast_expression", "unsafe_block", "async_block", "else_clause",
		"expression_statement", "range_expression", "break_expression":
		e.walkChildren(n, src)

	case "identifier", "scoped_identifier", "self", "field_identifier",
		"integer_literal", "float_literal", "string_literal", "raw_string_literal",
		"char_literal", "boolean_literal", "line_comment", "block_comment":
		// leaves

	default:
		e.walkChildren(n, src)
	}
}

func (e *extractor) walkChildren(n *sitter.Node, src *source) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.walk(n.NamedChild(i), src)
	}
}

// visitBlock walks statements in order so let bindings are visible to the
// statements after them. Nested items go through the generic visit.
func (e *extractor) visitBlock(n *sitter.Node, src *source) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		stmt := n.NamedChild(i)
		switch stmt.Type() {
		case "let_declaration":
			e.visitLet(stmt, src)
		case "expression_statement":
			e.walkChildren(stmt, src)
		default:
			e.walk(stmt, src)
		}
	}
}

// visitLet binds `let name = init` to the inferred type of init. Inference
// uses the bindings as they were before this statement.
func (e *extractor) visitLet(n *sitter.Node, src *source) {
	value := n.ChildByFieldName("value")
	if value == nil {
		return
	}

	var name string
	if pat := n.ChildByFieldName("pattern"); pat != nil && pat.Type() == "identifier" {
		name = src.text(pat)
	}
	typ, inferred := e.receiverType(value, src)

	e.walk(value, src)
	e.walk(n.ChildByFieldName("alternative"), src)

	if name != "" && inferred {
		e.bindings[name] = typ
	}
}

func (e *extractor) visitCall(n *sitter.Node, src *source) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")

	target := fn
	if target != nil && target.Type() == "generic_function" {
		target = target.ChildByFieldName("function")
	}

	switch {
	case target == nil:
	case target.Type() == "field_expression":
		e.visitMethodCall(target, src)
	case isPathExpr(target):
		e.record(pathString(target, src), src.line(fn))
	default:
		// Calls through closures, parenthesized expressions or call results.
		e.walk(target, src)
	}

	if args != nil {
		e.walkChildren(args, src)
	}
}

// visitMethodCall records receiver.method(..), qualified by the receiver's
// inferred type when one is known, then walks the receiver.
func (e *extractor) visitMethodCall(callee *sitter.Node, src *source) {
	receiver := callee.ChildByFieldName("value")
	field := callee.ChildByFieldName("field")
	if field == nil {
		e.walk(receiver, src)
		return
	}

	name := src.text(field)
	if typ, ok := e.receiverType(receiver, src); ok {
		name = typ + catalog.PathSeparator + name
	}
	e.record(name, src.line(field))
	e.walk(receiver, src)
}

// receiverType infers the type of a method receiver. Only variables and
// chained method calls are inferred; a chained call resolves through the
// catalog's declared return type.
func (e *extractor) receiverType(n *sitter.Node, src *source) (string, bool) {
	if n == nil {
		return "", false
	}

	switch n.Type() {
	case "identifier", "self":
		typ, ok := e.bindings[src.text(n)]
		return typ, ok
	case "scoped_identifier":
		name := n.ChildByFieldName("name")
		if name == nil {
			return "", false
		}
		typ, ok := e.bindings[src.text(name)]
		return typ, ok
	case "call_expression":
		callee := n.ChildByFieldName("function")
		if callee != nil && callee.Type() == "generic_function" {
			callee = callee.ChildByFieldName("function")
		}
		if callee == nil || callee.Type() != "field_expression" {
			return "", false
		}
		field := callee.ChildByFieldName("field")
		if field == nil {
			return "", false
		}
		method := src.text(field)
		if inner, ok := e.receiverType(callee.ChildByFieldName("value"), src); ok {
			method = inner + catalog.PathSeparator + method
		}
		return e.cat.ReturnType(method)
	}
	return "", false
}

func (e *extractor) visitStructLiteral(body *sitter.Node, src *source) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		f := body.NamedChild(i)
		switch f.Type() {
		case "field_initializer":
			e.walk(f.ChildByFieldName("value"), src)
		case "base_field_initializer":
			e.walkChildren(f, src)
		}
	}
}

// visitMacro walks a nested macro whose argument parses as one expression.
// Other macro bodies (format strings with arguments, statements) are
// skipped.
func (e *extractor) visitMacro(n *sitter.Node, src *source) {
	body, err := parseMacroBody(e.ctx, n, src)
	if err != nil {
		return
	}
	defer body.close()
	e.walk(body.expr, body.src)
}

func isPathExpr(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "scoped_identifier", "self", "super", "crate", "metavariable":
		return true
	}
	return false
}

// pathString joins the identifiers of a path with "::", dropping generic
// arguments.
func pathString(n *sitter.Node, src *source) string {
	switch n.Type() {
	case "scoped_identifier", "scoped_type_identifier":
		name := n.ChildByFieldName("name")
		path := n.ChildByFieldName("path")
		if name == nil {
			return stripSpace(src.text(n))
		}
		if path == nil {
			return src.text(name)
		}
		return pathString(path, src) + catalog.PathSeparator + src.text(name)
	case "generic_type":
		if t := n.ChildByFieldName("type"); t != nil {
			return pathString(t, src)
		}
	case "bracketed_type":
		return strings.Trim(stripSpace(src.text(n)), "<>")
	}
	return stripSpace(src.text(n))
}
