package quotes

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	numberSuffixLength = 6
	maxNumberAttempts  = 3
)

// NumberGenerator produces a candidate quote number for the given instant.
type NumberGenerator func(now time.Time) string

// NewNumberGenerator formats numbers as PREFIX-YYYYMMDD-XXXXXX with a random
// upper case hex suffix.
func NewNumberGenerator(prefix string) NumberGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "QT"
	}
	return func(now time.Time) string {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:numberSuffixLength]
		return prefix + "-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
	}
}
