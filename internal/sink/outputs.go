package sink

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Output is a per-threshold file found on disk.
type Output struct {
	Threshold float64
	Path      string
}

// Outputs lists the files a SafeTensorsSink wrote for variable into dir,
// coarsest threshold first. Files whose name does not parse are skipped.
func Outputs(dir, variable string) ([]Output, error) {
	if variable == "" {
		variable = DefaultVariable
	}
	prefix := variable + "_"
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*"+extension))
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}

	var out []Output
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), extension)
		eps, err := strconv.ParseFloat(name, 64)
		if err != nil {
			continue
		}
		out = append(out, Output{Threshold: eps, Path: path})
	}
	slices.SortFunc(out, func(a, b Output) int {
		switch {
		case a.Threshold > b.Threshold:
			return -1
		case a.Threshold < b.Threshold:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}
