package config

import (
	"strconv"

	"github.com/pkg/errors"
)

// ParseSize parses the <number><k|m|g|∅> form used by client_max_body_size.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty size")
	}
	unit := int64(1)
	numPart := s
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = 1 << 10
		numPart = s[:len(s)-1]
	case 'm', 'M':
		unit = 1 << 20
		numPart = s[:len(s)-1]
	case 'g', 'G':
		unit = 1 << 30
		numPart = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", s)
	}
	if n < 0 {
		return 0, errors.Errorf("negative size %q", s)
	}
	return n * unit, nil
}
