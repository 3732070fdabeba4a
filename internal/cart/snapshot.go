package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/utafrali/cartstore/internal/domain"
)

var errInvalidSnapshot = errors.New("invalid cart snapshot")

// encodeSnapshot serializes lines for storage. The out-of-stock marker is
// dropped from every line so it cannot survive a reload.
func encodeSnapshot(lines domain.Lines) (string, error) {
	out := lines.Clone()
	for i := range out {
		out[i].OutOfStock = false
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// decodeSnapshot parses a stored snapshot. Anything other than a JSON array of
// lines with unique, non-empty IDs is rejected.
func decodeSnapshot(raw string) (domain.Lines, error) {
	var lines domain.Lines
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidSnapshot, err)
	}
	if lines == nil {
		return nil, fmt.Errorf("%w: not an array", errInvalidSnapshot)
	}

	seen := make(map[string]struct{}, len(lines))
	for i := range lines {
		id := lines[i].ID
		if id == "" {
			return nil, fmt.Errorf("%w: line %d has no id", errInvalidSnapshot, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", errInvalidSnapshot, id)
		}
		seen[id] = struct{}{}
		lines[i].OutOfStock = false
	}
	return lines, nil
}
