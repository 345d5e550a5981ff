package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/receiptmaster/backend/shared/models"
)

// FormatDate renders t in UTC using models.DateLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(models.DateLayout)
}

// ParseID parses a positive surrogate key from a path segment.
func ParseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
