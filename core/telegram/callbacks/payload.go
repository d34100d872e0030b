package callbacks

import (
	"strconv"
	"strings"
)

// PayloadParts splits payload into exactly n parts using sep.
func PayloadParts(payload, sep string, n int) ([]string, error) {
	if payload == "" {
		return nil, strconv.ErrSyntax
	}
	parts := strings.Split(payload, sep)
	if n > 0 && len(parts) != n {
		return nil, strconv.ErrSyntax
	}
	return parts, nil
}

// PayloadInt64 parses a callback payload part as int64.
func PayloadInt64(part string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(part), 10, 64)
}
