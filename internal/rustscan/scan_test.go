package rustscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fuzzlens/calltree/internal/catalog"
)

const testSource = `use std::io::Read;

pub struct Parser<'a> {
    data: &'a [u8],
}

impl<'a> Parser<'a> {
    pub fn new(data: &'a [u8]) -> Parser<'a> {
        Parser { data }
    }

    pub fn parse(&mut self, strict: bool) -> Result<Ast, Error> {
        let header = self.read_header();
        checks::validate(header);
        Ok(Ast::default())
    }

    fn read_header(&self) -> u32 {
        0
    }
}

pub trait Visitor {
    fn visit(&self) {
        walk_all();
    }
}

mod checks {
    pub fn validate(h: u32) -> bool {
        h > 0
    }
}

fn helper() {
    let p = Parser::new(&[]);
}
`

func TestParseFile(t *testing.T) {
	records, err := ParseFile(context.Background(), "src/parser.rs", []byte(testSource))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	byName := make(map[string]catalog.FunctionRecord)
	for _, r := range records {
		byName[r.Name] = r
	}

	for _, name := range []string{"Parser::new", "Parser::parse", "Parser::read_header", "Visitor::visit", "checks::validate", "helper"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing record %s (have %d records)", name, len(records))
		}
	}

	parse := byName["Parser::parse"]
	if parse.ReturnType != "Result<Ast, Error>" {
		t.Errorf("ReturnType = %q", parse.ReturnType)
	}
	if parse.Visibility != "public" {
		t.Errorf("Visibility = %q, want public", parse.Visibility)
	}
	if parse.ArgCount != 2 || parse.ArgNames[0] != "self" || parse.ArgNames[1] != "strict" {
		t.Errorf("args = %d %v", parse.ArgCount, parse.ArgNames)
	}
	if parse.StartLine != 12 || parse.EndLine != 16 {
		t.Errorf("lines = %d-%d, want 12-16", parse.StartLine, parse.EndLine)
	}

	wantEdges := []catalog.CallEdge{
		{Src: "src/parser.rs,13", Dst: "read_header"},
		{Src: "src/parser.rs,14", Dst: "checks::validate"},
		{Src: "src/parser.rs,15", Dst: "Ok"},
		{Src: "src/parser.rs,15", Dst: "Ast::default"},
	}
	if len(parse.Callsites) != len(wantEdges) {
		t.Fatalf("callsites = %+v", parse.Callsites)
	}
	for i, want := range wantEdges {
		if parse.Callsites[i] != want {
			t.Errorf("callsite %d = %+v, want %+v", i, parse.Callsites[i], want)
		}
	}

	if parse.Complexity != 1 || parse.BBCount != 1 || parse.ICount != 3 {
		t.Errorf("metrics = complexity %d, bbcount %d, icount %d", parse.Complexity, parse.BBCount, parse.ICount)
	}

	if r := byName["Parser::read_header"]; r.Visibility != "private" || r.ReturnType != "u32" {
		t.Errorf("read_header = %+v", r)
	}
	if r := byName["Parser::new"]; r.ReturnType != "Parser<'a>" {
		t.Errorf("new ReturnType = %q", r.ReturnType)
	}
}

func TestScanDirSkipsTarget(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("src/lib.rs", "pub fn a() { b(); }\nfn b() {}\n")
	write("target/debug/build/gen.rs", "fn generated() {}\n")
	write("README.md", "fn not_rust() {}\n")

	records, err := ScanDir(context.Background(), root)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Name != "a" || records[1].Name != "b" {
		t.Errorf("names = %s, %s", records[0].Name, records[1].Name)
	}
	if len(records[0].Callsites) != 1 || records[0].Callsites[0].Dst != "b" {
		t.Errorf("a callsites = %+v", records[0].Callsites)
	}
}
