package store

import (
	"fmt"
	"testing"

	"github.com/fuzzlens/calltree/internal/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutRecordsPreservesOrder(t *testing.T) {
	s := newTestStore(t)

	first := []catalog.FunctionRecord{{Name: "zeta"}, {Name: "alpha"}}
	second := []catalog.FunctionRecord{{Name: "mid", Callsites: []catalog.CallEdge{{Src: "a.rs,1", Dst: "zeta"}}}}
	if err := s.PutRecords(first); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	if err := s.PutRecords(second); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	got, err := s.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("record %d = %q, want %q", i, got[i].Name, name)
		}
	}
	if len(got[2].Callsites) != 1 || got[2].Callsites[0].Dst != "zeta" {
		t.Errorf("callsites not round-tripped: %+v", got[2].Callsites)
	}
}

func TestHarnessRecordsAndCatalog(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutRecords([]catalog.FunctionRecord{{Name: "foo", ReturnType: "u8"}}); err != nil {
		t.Fatal(err)
	}
	harness := map[string]catalog.FunctionRecord{
		"fuzz/t.rs": {Name: "fuzz_target", File: "fuzz/t.rs", CalledFunctions: []string{"foo"}},
	}
	if err := s.PutHarnessRecords(harness); err != nil {
		t.Fatalf("PutHarnessRecords: %v", err)
	}

	got, err := s.Harnesses()
	if err != nil {
		t.Fatalf("Harnesses: %v", err)
	}
	if got["fuzz/t.rs"].Name != "fuzz_target" {
		t.Errorf("harness record = %+v", got["fuzz/t.rs"])
	}

	cat, err := s.Catalog()
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if _, ok := cat.Get("foo"); !ok {
		t.Error("catalog missing foo")
	}
	if _, ok := cat.Get("fuzz_target"); !ok {
		t.Error("catalog missing merged harness record")
	}
}

func TestStatsAndReset(t *testing.T) {
	s := newTestStore(t)

	records := []catalog.FunctionRecord{
		{Name: "a", Callsites: []catalog.CallEdge{{Src: "x.rs,1", Dst: "b"}, {Src: "x.rs,2", Dst: "c"}}},
		{Name: "b"},
		{Name: "a"},
	}
	if err := s.PutRecords(records); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != 3 || stats.Names != 2 || stats.Edges != 2 {
		t.Errorf("stats = %+v", stats)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, err := s.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("after Reset got %d records", len(got))
	}

	// Sequence restarts but appends still work.
	if err := s.PutRecords([]catalog.FunctionRecord{{Name: "fresh"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Records()
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("records after reset+put = %+v", got)
	}
}

func TestDeleteByFile(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutRecords([]catalog.FunctionRecord{
		{Name: "a", File: "src/a.rs"},
		{Name: "b", File: "src/b.rs"},
		{Name: "a2", File: "src/a.rs"},
		{Name: "c", File: "src/c.rs"},
	}); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	n, err := s.DeleteByFile("src/a.rs")
	if err != nil {
		t.Fatalf("DeleteByFile: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d records, want 2", n)
	}

	if err := s.PutRecords([]catalog.FunctionRecord{{Name: "a3", File: "src/a.rs"}}); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	got, err := s.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	want := []string{"b", "c", "a3"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}

	if n, err := s.DeleteByFile("src/missing.rs"); err != nil || n != 0 {
		t.Errorf("DeleteByFile(missing) = %d, %v", n, err)
	}
}

func TestPutRecordsLargeCatalog(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	const n = 20000
	records := make([]catalog.FunctionRecord, n)
	for i := range records {
		rec := catalog.FunctionRecord{
			Name:       fmt.Sprintf("crate::module_%d::function_%d", i/100, i),
			File:       fmt.Sprintf("src/module_%d.rs", i/100),
			ReturnType: "Result<Vec<u8>, Error>",
		}
		for j := 0; j < 8; j++ {
			rec.Callsites = append(rec.Callsites, catalog.NewCallEdge(rec.File, j+1, fmt.Sprintf("callee_%d", j)))
		}
		records[i] = rec
	}
	if err := s.PutRecords(records); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}
	if err := s.PutRecords([]catalog.FunctionRecord{{Name: "tail"}}); err != nil {
		t.Fatalf("PutRecords: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != n+1 {
		t.Errorf("Records = %d, want %d", stats.Records, n+1)
	}
	if stats.Edges != n*8 {
		t.Errorf("Edges = %d, want %d", stats.Edges, n*8)
	}

	got, err := s.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if got[0].Name != records[0].Name || got[n-1].Name != records[n-1].Name || got[n].Name != "tail" {
		t.Errorf("order not preserved: first=%s last=%s appended=%s", got[0].Name, got[n-1].Name, got[n].Name)
	}
}
