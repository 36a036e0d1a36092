package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func GetRandomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

// RenewOutputPath returns the first free "name-(n).ext" beside path.
func RenewOutputPath(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", stem, n, ext))
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// ParseHeaderArgs turns "Key: Value" flags into a header map. Malformed
// entries and headers the range workers set themselves are dropped.
func ParseHeaderArgs(args []string) map[string]string {
	headers := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			log.Warn().Str("op", "utils").Msgf("ignoring malformed header %q", arg)
			continue
		}
		if isReservedHeader(key) {
			log.Warn().Str("op", "utils").Msgf("ignoring %s header, ranges are planned per worker", key)
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

// FormatBytes renders n with binary units, e.g. "1.50 KB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", max(n, 0))
	}
	value := float64(n)
	suffixes := "KMGTPE"
	i := -1
	for value >= unit && i < len(suffixes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f %cB", value, suffixes[i])
}

// FormatSpeed renders the average rate of n bytes over elapsed.
func FormatSpeed(n int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0 B/s"
	}
	return FormatBytes(int64(float64(n)/elapsed.Seconds())) + "/s"
}

// FormatElapsed renders a duration as minutes:seconds.
func FormatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
