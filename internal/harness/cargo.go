package harness

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// cargoManifest is the subset of Cargo.toml used to list fuzz targets.
type cargoManifest struct {
	Package struct {
		Name     string `toml:"name"`
		Metadata struct {
			CargoFuzz bool `toml:"cargo-fuzz"`
		} `toml:"metadata"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// CargoTargets lists the fuzz target sources declared by cargo-fuzz
// manifests under root, as cleaned absolute paths. Build output and VCS
// directories are not searched.
func CargoTargets(root string) ([]string, error) {
	var targets []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case "target", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != "Cargo.toml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var m cargoManifest
		if err := toml.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if !m.Package.Metadata.CargoFuzz {
			return nil
		}

		dir := filepath.Dir(path)
		for _, bin := range m.Bin {
			src := bin.Path
			if src == "" {
				src = filepath.Join("fuzz_targets", bin.Name+".rs")
			}
			abs, err := filepath.Abs(filepath.Join(dir, src))
			if err != nil {
				return err
			}
			targets = append(targets, abs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cargo manifests: %w", err)
	}
	return targets, nil
}

// UndeclaredEntryPoints returns the entry points that no cargo-fuzz manifest
// declares as a [[bin]] target.
func UndeclaredEntryPoints(entries, declared []string) []string {
	known := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		known[filepath.Clean(d)] = struct{}{}
	}
	var out []string
	for _, e := range entries {
		abs, err := filepath.Abs(e)
		if err != nil {
			abs = e
		}
		if _, ok := known[abs]; !ok {
			out = append(out, e)
		}
	}
	return out
}
