package serialmux

import (
	"fmt"
	"strings"

	"github.com/banshee-data/clocktrack/internal/dataset"
	"github.com/banshee-data/clocktrack/internal/dwt"
)

// ParsePairLine parses a "send receive" line printed by a node. ok is false
// for blank lines and for lines starting with '#', which nodes use for
// status output.
func ParsePairLine(line string) (p dwt.Pair, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return dwt.Pair{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return dwt.Pair{}, false, fmt.Errorf("%w: want 2 columns, got %d", dataset.ErrMalformedRecord, len(fields))
	}
	if p.Send, err = dataset.ParseTimestamp(fields[0]); err != nil {
		return dwt.Pair{}, false, fmt.Errorf("%w: %v", dataset.ErrMalformedRecord, err)
	}
	if p.Receive, err = dataset.ParseTimestamp(fields[1]); err != nil {
		return dwt.Pair{}, false, fmt.Errorf("%w: %v", dataset.ErrMalformedRecord, err)
	}
	return p, true, nil
}
