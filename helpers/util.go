package helpers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingPart is returned when a split has fewer parts than requested
var ErrMissingPart = errors.New("missing part")

// GetSplitPart splits target on separate and returns the part at index
func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index < 0 || index >= len(parts) {
		return "", fmt.Errorf("%w: want part %d of %q split on %q, have %d", ErrMissingPart, index, target, separate, len(parts))
	}
	return parts[index], nil
}
