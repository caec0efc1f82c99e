// Package catalog holds the read-only function catalog produced by the
// upstream extraction pass, and resolves partial call names against it.
package catalog

import (
	"strconv"
	"strings"
)

// CallEdge is one recorded call from a function to a callee.
type CallEdge struct {
	// Src is the call origin formatted as "<path>,<line>".
	Src string `json:"src" yaml:"src"`
	// Dst is the callee name as written at the call site.
	Dst string `json:"dst" yaml:"dst"`
}

// Location splits Src into its path and line. ok is false when Src has
// fewer than two comma-separated fields. A line that is not exactly a
// decimal integer, surrounding spaces included, yields -1.
func (e CallEdge) Location() (path string, line int, ok bool) {
	parts := strings.Split(e.Src, ",")
	if len(parts) < 2 {
		return "", 0, false
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil {
		line = -1
	}
	return parts[0], line, true
}

// NewCallEdge formats an origin location into a CallEdge.
func NewCallEdge(path string, line int, dst string) CallEdge {
	return CallEdge{Src: path + "," + strconv.Itoa(line), Dst: dst}
}

// BranchProfile is carried through untouched for catalog compatibility.
type BranchProfile struct {
	BranchString string   `json:"branch_string" yaml:"branch_string"`
	BranchSides  []string `json:"branch_sides" yaml:"branch_sides"`
}

// FunctionRecord is one catalog entry. Field names follow the upstream
// frontend output so records round-trip without loss.
type FunctionRecord struct {
	Name             string          `json:"name" yaml:"name"`
	File             string          `json:"file" yaml:"file"`
	ReturnType       string          `json:"return_type" yaml:"return_type"`
	LinkageType      string          `json:"linkage_type" yaml:"linkage_type"`
	ArgCount         int             `json:"arg_count" yaml:"arg_count"`
	ArgNames         []string        `json:"arg_names" yaml:"arg_names"`
	ArgTypes         []string        `json:"arg_types" yaml:"arg_types"`
	ConstantsTouched []string        `json:"constants_touched" yaml:"constants_touched"`
	CalledFunctions  []string        `json:"called_functions" yaml:"called_functions"`
	BranchProfiles   []BranchProfile `json:"branch_profiles" yaml:"branch_profiles"`
	Callsites        []CallEdge      `json:"callsites" yaml:"callsites"`
	Depth            int             `json:"depth" yaml:"depth"`
	Visibility       string          `json:"visibility" yaml:"visibility"`
	ICount           int             `json:"icount" yaml:"icount"`
	BBCount          int             `json:"bbcount" yaml:"bbcount"`
	EdgeCount        int             `json:"edge_count" yaml:"edge_count"`
	Complexity       int             `json:"complexity" yaml:"complexity"`
	FunctionUses     int             `json:"function_uses" yaml:"function_uses"`
	StartLine        int             `json:"start_line" yaml:"start_line"`
	EndLine          int             `json:"end_line" yaml:"end_line"`
}
