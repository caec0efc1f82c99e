// Package rustscan builds a function catalog straight from Rust sources
// with tree-sitter, for runs that have no catalog from the upstream
// extraction pass.
package rustscan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/metrics"
)

// ScanDir parses every .rs file under root and returns their function
// records in walk order. Cargo build output and VCS directories are skipped.
func ScanDir(ctx context.Context, root string) ([]catalog.FunctionRecord, error) {
	var records []catalog.FunctionRecord
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "target", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".rs" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read file %s: %w", path, err)
		}
		recs, err := ParseFile(ctx, path, content)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ParseFile extracts one record per function or method in a Rust file.
// Free functions are named by their module path inside the file, methods
// by "Type::method".
func ParseFile(ctx context.Context, filePath string, content []byte) ([]catalog.FunctionRecord, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(rust.GetLanguage())

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	e := &extractor{filePath: filePath, content: content}
	e.walkDeclarations(tree.RootNode(), "")
	return e.records, nil
}

// extractor walks a tree-sitter Rust AST and collects function records.
type extractor struct {
	filePath string
	content  []byte
	records  []catalog.FunctionRecord
}

func (e *extractor) walkDeclarations(node *sitter.Node, scope string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_item":
			e.extractFunction(child, scope)
		case "impl_item":
			e.extractImpl(child)
		case "trait_item":
			e.extractTrait(child)
		case "mod_item":
			e.extractMod(child, scope)
		}
	}
}

func (e *extractor) extractMod(node *sitter.Node, scope string) {
	name := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}
	e.walkDeclarations(body, qualify(scope, e.nodeText(name)))
}

// extractImpl handles both `impl Type` and `impl Trait for Type`; methods
// are always named after the implementing type.
func (e *extractor) extractImpl(node *sitter.Node) {
	typeNode := node.ChildByFieldName("type")
	body := node.ChildByFieldName("body")
	if typeNode == nil || body == nil {
		return
	}
	typeName := e.typeName(typeNode)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if child := body.NamedChild(i); child.Type() == "function_item" {
			e.extractFunction(child, typeName)
		}
	}
}

// extractTrait records default method bodies as "Trait::method".
func (e *extractor) extractTrait(node *sitter.Node) {
	name := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if child := body.NamedChild(i); child.Type() == "function_item" {
			e.extractFunction(child, e.nodeText(name))
		}
	}
}

func (e *extractor) extractFunction(node *sitter.Node, scope string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	rec := catalog.FunctionRecord{
		Name:       qualify(scope, e.nodeText(nameNode)),
		File:       e.filePath,
		Visibility: "private",
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if node.NamedChild(i).Type() == "visibility_modifier" {
			rec.Visibility = "public"
			break
		}
	}
	if ret := node.ChildByFieldName("return_type"); ret != nil {
		rec.ReturnType = squash(e.nodeText(ret))
	}

	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			param := params.NamedChild(i)
			switch param.Type() {
			case "self_parameter":
				rec.ArgNames = append(rec.ArgNames, "self")
				rec.ArgTypes = append(rec.ArgTypes, squash(e.nodeText(param)))
			case "parameter":
				pat := param.ChildByFieldName("pattern")
				typ := param.ChildByFieldName("type")
				if pat != nil {
					rec.ArgNames = append(rec.ArgNames, e.nodeText(pat))
				}
				if typ != nil {
					rec.ArgTypes = append(rec.ArgTypes, squash(e.nodeText(typ)))
				}
			}
		}
	}
	rec.ArgCount = len(rec.ArgNames)

	if body := node.ChildByFieldName("body"); body != nil {
		e.walkForCalls(body, &rec)
		m := metrics.Measure(node, e.content)
		rec.Complexity = m.Complexity
		rec.BBCount = m.BasicBlocks
		rec.ICount = m.Statements
	}
	e.records = append(e.records, rec)
}

// walkForCalls recursively walks a subtree collecting call edges. Nested
// function items are separate records and are not descended into.
func (e *extractor) walkForCalls(node *sitter.Node, rec *catalog.FunctionRecord) {
	if node == nil {
		return
	}
	if node.Type() == "call_expression" {
		if callee, line := e.calleeName(node); callee != "" {
			rec.CalledFunctions = append(rec.CalledFunctions, callee)
			rec.Callsites = append(rec.Callsites, catalog.NewCallEdge(e.filePath, line, callee))
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "function_item" {
			continue
		}
		e.walkForCalls(child, rec)
	}
}

// calleeName returns the callee as written at a call_expression: the path
// for plain calls, the method name for method calls.
func (e *extractor) calleeName(node *sitter.Node) (string, int) {
	fn := node.ChildByFieldName("function")
	if fn != nil && fn.Type() == "generic_function" {
		fn = fn.ChildByFieldName("function")
	}
	if fn == nil {
		return "", 0
	}

	switch fn.Type() {
	case "identifier", "scoped_identifier":
		return squash(e.nodeText(fn)), int(fn.StartPoint().Row) + 1
	case "field_expression":
		if field := fn.ChildByFieldName("field"); field != nil {
			return e.nodeText(field), int(field.StartPoint().Row) + 1
		}
	}
	return "", 0
}

// typeName strips generic arguments: `Parser<'a, R>` becomes `Parser`.
func (e *extractor) typeName(node *sitter.Node) string {
	if node.Type() == "generic_type" {
		if t := node.ChildByFieldName("type"); t != nil {
			return e.nodeText(t)
		}
	}
	return squash(e.nodeText(node))
}

func (e *extractor) nodeText(node *sitter.Node) string {
	return node.Content(e.content)
}

func qualify(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + catalog.PathSeparator + name
}

// squash collapses runs of whitespace to single spaces.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
