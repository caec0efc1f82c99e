package metrics

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

func firstFunction(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	content := []byte(src)
	p := sitter.NewParser()
	t.Cleanup(p.Close)
	p.SetLanguage(rust.GetLanguage())
	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tree.Close)

	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if c := root.NamedChild(i); c.Type() == "function_item" {
			return c, content
		}
	}
	t.Fatal("no function in source")
	return nil, nil
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		complexity int
		blocks     int
		statements int
	}{
		{
			name:       "straight line",
			src:        "fn f(x: u32) -> u32 {\n    let y = x + 1;\n    y\n}\n",
			complexity: 1,
			blocks:     1,
			statements: 2,
		},
		{
			name: "branches and loops",
			src: `fn f(data: &[u8]) -> Result<u32, E> {
    if data.len() > 4 && data[0] == 0 {
        for b in data {
            parse(b)?;
        }
    } else {
        return Ok(0);
    }
    Ok(1)
}
`,
			// if, &&, for, ? = 4
			complexity: 5,
			blocks:     4,
			statements: 5,
		},
		{
			name: "match arms",
			src: `fn f(x: u8) -> u8 {
    match x {
        0 => 1,
        1 => 2,
        _ => 3,
    }
}
`,
			complexity: 3,
			blocks:     1,
			statements: 1,
		},
		{
			name: "nested fn skipped",
			src: `fn outer() {
    fn inner(x: bool) { if x {} }
    go();
}
`,
			complexity: 1,
			blocks:     1,
			statements: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, content := firstFunction(t, tt.src)
			m := Measure(fn, content)
			if m.Complexity != tt.complexity {
				t.Errorf("Complexity = %d, want %d", m.Complexity, tt.complexity)
			}
			if m.BasicBlocks != tt.blocks {
				t.Errorf("BasicBlocks = %d, want %d", m.BasicBlocks, tt.blocks)
			}
			if m.Statements != tt.statements {
				t.Errorf("Statements = %d, want %d", m.Statements, tt.statements)
			}
		})
	}
}
