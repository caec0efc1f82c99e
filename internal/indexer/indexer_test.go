package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuzzlens/calltree/internal/catalog/store"
	"github.com/fuzzlens/calltree/internal/harness"
	"github.com/fuzzlens/calltree/internal/watcher"
)

const libSource = `pub fn decode(data: &[u8]) -> u32 {
    checksum(data)
}

fn checksum(data: &[u8]) -> u32 {
    0
}
`

const decodeHarness = `#![no_main]
use libfuzzer_sys::fuzz_target;

fuzz_target!(|data: &[u8]| {
    decode(data);
});
`

type project struct {
	root, src, fuzz, out string
	lib, entry           string
}

func setupProject(t *testing.T) project {
	t.Helper()
	root := t.TempDir()
	p := project{
		root: root,
		src:  filepath.Join(root, "src"),
		fuzz: filepath.Join(root, "fuzz"),
		out:  t.TempDir(),
	}
	p.lib = filepath.Join(p.src, "lib.rs")
	p.entry = filepath.Join(p.fuzz, "fuzz_targets", "decode_input.rs")
	writeFile(t, p.lib, libSource)
	writeFile(t, p.entry, decodeHarness)
	writeFile(t, filepath.Join(p.src, "target", "gen.rs"), "fn generated() {}\n")
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupTestIndexer(t *testing.T, p project) (*Indexer, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	idx, err := NewIndexer(IndexerConfig{
		Store:     s,
		Root:      p.fuzz,
		ScanPaths: []string{p.src},
		Generator: harness.GeneratorConfig{OutputDir: p.out},
		Logger:    func(string, ...any) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	return idx, s
}

func TestIndexDirectorySkipsTarget(t *testing.T) {
	p := setupProject(t)
	idx, s := setupTestIndexer(t, p)

	if err := idx.IndexDirectory(context.Background(), p.src); err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}
	records, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (target/ skipped)", len(records))
	}
	if records[0].Name != "decode" || records[1].Name != "checksum" {
		t.Errorf("names = %s, %s", records[0].Name, records[1].Name)
	}
	if got := idx.Stats().FilesIndexed; got != 1 {
		t.Errorf("FilesIndexed = %d, want 1", got)
	}
}

func TestGenerateUsesScannedCatalog(t *testing.T) {
	p := setupProject(t)
	idx, s := setupTestIndexer(t, p)
	ctx := context.Background()

	if err := idx.IndexDirectory(ctx, p.src); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d harness records, want 1", len(results))
	}

	data, err := os.ReadFile(filepath.Join(p.out, "fuzzerLogFile-decode-input.data"))
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"Call tree",
		"fuzz_target " + p.entry + " linenumber=-1",
		"  decode " + p.entry + " linenumber=5",
		"    checksum " + p.lib + " linenumber=2",
	}, "\n") + "\n"
	if string(data) != want {
		t.Errorf("output =\n%s\nwant\n%s", data, want)
	}

	stored, err := s.Harnesses()
	if err != nil {
		t.Fatal(err)
	}
	if rec, ok := stored[p.entry]; !ok || rec.Name != harness.DefaultTrigger {
		t.Errorf("stored harness records = %+v", stored)
	}
}

func TestHandleBatchReindexes(t *testing.T) {
	p := setupProject(t)
	idx, s := setupTestIndexer(t, p)
	ctx := context.Background()

	if err := idx.IndexDirectory(ctx, p.src); err != nil {
		t.Fatal(err)
	}

	// checksum now delegates to a new helper.
	writeFile(t, p.lib, `pub fn decode(data: &[u8]) -> u32 {
    checksum(data)
}

fn checksum(data: &[u8]) -> u32 {
    crc::update(data)
}
`)
	extra := filepath.Join(p.src, "extra.rs")
	writeFile(t, extra, "fn extra() {}\n")

	idx.HandleBatch(ctx, watcher.Batch{Events: []watcher.Event{
		{Path: p.entry, Op: watcher.Write}, // not under a scan path
		{Path: extra, Op: watcher.Create},
		{Path: p.lib, Op: watcher.Write},
	}})

	records, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range records {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "extra,decode,checksum" {
		t.Errorf("records = %s, want extra,decode,checksum", got)
	}

	data, err := os.ReadFile(filepath.Join(p.out, "fuzzerLogFile-decode-input.data"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "      crc::update "+p.lib+" linenumber=6\n") {
		t.Errorf("regenerated output missing new edge:\n%s", data)
	}

	idx.HandleBatch(ctx, watcher.Batch{Events: []watcher.Event{{Path: extra, Op: watcher.Remove}}})
	records, err = s.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records after remove, want 2", len(records))
	}

	stats := idx.Stats()
	if stats.Generations != 2 || stats.Harnesses != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("unexpected errors: %v", stats.Errors)
	}
}

func TestNewIndexerRequiresStore(t *testing.T) {
	if _, err := NewIndexer(IndexerConfig{}); err == nil {
		t.Error("expected error without a store")
	}
}
