package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fuzzlens/calltree/internal/catalog"
	"github.com/fuzzlens/calltree/internal/harness"
)

const parseHarness = `#![no_main]
use libfuzzer_sys::fuzz_target;

fuzz_target!(|data: &[u8]| {
    foo(data);
});
`

const catalogJSON = `[
  {"name": "foo", "file": "src/lib.rs", "callsites": [{"src": "src/lib.rs,3", "dst": "bar"}]}
]`

// inTempProject chdirs into a fresh directory so no .calltree.yaml leaks in.
func inTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Errorf("failed to restore working directory: %v", err)
		}
	})
	return dir
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

// resetFlags restores every flag to its default so commands can be run
// more than once in a test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestGenerateCommand(t *testing.T) {
	inTempProject(t)
	entry := filepath.Join("fuzz", "fuzz_targets", "parse_input.rs")
	writeFile(t, entry, parseHarness)
	writeFile(t, "catalog.json", catalogJSON)

	out, err := executeCLI(t, "generate", "fuzz",
		"--catalog", "catalog.json",
		"--output", "out",
		"--emit-records", "records.json")
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Generated 1 call trees in out") {
		t.Errorf("unexpected output: %s", out)
	}

	data, err := os.ReadFile(filepath.Join("out", "fuzzerLogFile-parse-input.data"))
	if err != nil {
		t.Fatal(err)
	}
	want := "Call tree\n" +
		"fuzz_target " + entry + " linenumber=-1\n" +
		"  foo " + entry + " linenumber=5\n" +
		"    bar src/lib.rs linenumber=3\n"
	if string(data) != want {
		t.Errorf("call tree =\n%s\nwant\n%s", data, want)
	}

	raw, err := os.ReadFile("records.json")
	if err != nil {
		t.Fatal(err)
	}
	var records map[string]catalog.FunctionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		t.Fatalf("records.json: %v", err)
	}
	rec, ok := records[entry]
	if !ok || rec.Name != harness.DefaultTrigger || len(rec.Callsites) != 1 {
		t.Errorf("records = %+v", records)
	}
	if rec.Callsites[0] != (catalog.CallEdge{Src: entry + ",5", Dst: "foo"}) {
		t.Errorf("callsite = %+v", rec.Callsites[0])
	}
}

func TestGenerateCommandParseError(t *testing.T) {
	inTempProject(t)
	writeFile(t, filepath.Join("fuzz", "broken.rs"), "fuzz_target!(|data: &[u8]| { let x = ; });\n")

	_, err := executeCLI(t, "generate", "fuzz", "--output", "out2")
	var pe *harness.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *harness.ParseError, got %v", err)
	}
}

func TestCatalogImportAndStatus(t *testing.T) {
	inTempProject(t)
	writeFile(t, "catalog.yaml", `functions:
  - name: foo
    callsites:
      - {src: "src/lib.rs,3", dst: bar}
  - name: bar
  - name: foo
`)

	out, err := executeCLI(t, "catalog", "import", "catalog.yaml", "--db-path", "db")
	if err != nil {
		t.Fatalf("catalog import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Imported 3 records") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = executeCLI(t, "status", "--db-path", "db")
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	for _, want := range []string{"Catalog Status", "Records:", "3", "Distinct names:", "2", "1 records shadowed"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestInitWritesConfig(t *testing.T) {
	dir := inTempProject(t)
	writeFile(t, filepath.Join("fuzz", "Cargo.toml"), `[package]
name = "demo-fuzz"

[package.metadata]
cargo-fuzz = true

[[bin]]
name = "parse_input"
`)

	out, err := executeCLI(t, "init")
	if err != nil {
		t.Fatalf("init: %v\n%s", err, out)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".calltree.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "source_dir: fuzz") {
		t.Errorf("expected detected fuzz dir in config:\n%s", data)
	}

	if _, err := executeCLI(t, "init"); err == nil {
		t.Error("expected error when config already exists")
	}
}
