package persistence

import (
	"strings"
)

// orderDirection normalizes a user supplied sort direction to ASC or DESC.
// Anything else, including injection attempts, yields fallback.
func orderDirection(dir, fallback string) string {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	}
	return fallback
}
