package model

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/menta2k/mlserver/pkg/types"
)

// LoadLabels reads one label per line. Line order is the class index order,
// so blank lines inside the file are kept as empty labels.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open labels file: %v", types.ErrModelUnavailable, err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimRight(scanner.Text(), " \t\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read labels file: %v", types.ErrConfiguration, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: labels file %s is empty", types.ErrConfiguration, path)
	}
	return labels, nil
}
