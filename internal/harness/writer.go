package harness

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fuzzlens/calltree/internal/catalog"
)

const (
	callTreeHeader = "Call tree"
	outputPrefix   = "fuzzerLogFile-"
	outputSuffix   = ".data"
)

// HarnessName derives the harness name from an entry-point file: its base
// name without extension, with underscores replaced by hyphens.
func HarnessName(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return strings.ReplaceAll(stem, "_", "-")
}

// OutputFileName returns the call tree file name for an entry-point file.
func OutputFileName(path string) string {
	return outputPrefix + HarnessName(path) + outputSuffix
}

// WriteOptions controls how a harness call tree is written.
type WriteOptions struct {
	OutputDir string
	Trigger   string
	MaxDepth  int
}

// WriteHarness writes the call tree file for one entry point and returns the
// synthesized catalog record representing the entry point itself.
func WriteHarness(entryPath string, obs []Observation, cat *catalog.Catalog, opts WriteOptions) (rec catalog.FunctionRecord, err error) {
	outPath := filepath.Join(opts.OutputDir, OutputFileName(entryPath))
	f, err := os.Create(outPath)
	if err != nil {
		return rec, &WriteError{Path: outPath, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &WriteError{Path: outPath, Err: cerr}
		}
	}()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\n", callTreeHeader)
	fmt.Fprintf(w, "%s %s linenumber=%d\n", opts.Trigger, entryPath, unknownLine)

	r := NewRenderer(cat, opts.MaxDepth)
	for _, o := range obs {
		if _, err := w.WriteString(r.Render(o.Name, entryPath, o.Line)); err != nil {
			return rec, &WriteError{Path: outPath, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return rec, &WriteError{Path: outPath, Err: err}
	}

	return SynthesizeRecord(opts.Trigger, entryPath, obs), nil
}

// SynthesizeRecord builds the catalog record standing for an entry point:
// named after the trigger macro, with one call edge per observation.
func SynthesizeRecord(trigger, entryPath string, obs []Observation) catalog.FunctionRecord {
	rec := catalog.FunctionRecord{
		Name:            trigger,
		File:            entryPath,
		CalledFunctions: make([]string, 0, len(obs)),
		Callsites:       make([]catalog.CallEdge, 0, len(obs)),
	}
	for _, o := range obs {
		rec.CalledFunctions = append(rec.CalledFunctions, o.Name)
		rec.Callsites = append(rec.Callsites, catalog.NewCallEdge(entryPath, o.Line, o.Name))
	}
	return rec
}
