package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize formats a byte count as "1.5 MB", trimming trailing zeros
func FormatFileSize(bytes uint64) string {
	if bytes == 0 {
		return "0 B"
	}

	const k = 1024
	value := float64(bytes)
	i := 0
	for value >= k && i < len(sizeUnits)-1 {
		value /= k
		i++
	}

	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatDuration formats an elapsed time as "1h 2m", "3m 4s" or "5s"
func FormatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// FormatSpeed formats a transfer rate as "1.2 MB/s"
func FormatSpeed(bytesPerSecond int64) string {
	if bytesPerSecond <= 0 {
		return "—"
	}
	return FormatFileSize(uint64(bytesPerSecond)) + "/s"
}
