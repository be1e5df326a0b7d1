package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"
)

// File permissions
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Destination naming
const (
	MaxTitleLength   = 50
	DefaultExtension = "mp4"
	FallbackBaseName = "media"
)

var (
	unsafeTitleChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	titleWhitespace  = regexp.MustCompile(`\s+`)
)

// platformExtensions maps a source platform to the container written to disk
var platformExtensions = map[string]string{
	"youtube":     "mp4",
	"instagram":   "mp4",
	"tiktok":      "mp4",
	"facebook":    "mp4",
	"twitter":     "mp4",
	"vimeo":       "mp4",
	"dailymotion": "mp4",
	"hls":         "ts",
}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	isAndroid := runtime.GOOS == "android" ||
		os.Getenv("ANDROID_DATA") != "" ||
		os.Getenv("ANDROID_ROOT") != ""
	if isAndroid {
		return "/sdcard/Download", nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, "Downloads"), nil
}

// FileExists reports whether path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FileSize returns the size of path, or -1 when it does not exist
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return info.Size(), nil
}

// RemoveFileIfExists deletes path, treating a missing file as success
func RemoveFileIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// SanitizeTitle keeps ASCII letters, digits and whitespace, joins words with
// underscores and truncates to MaxTitleLength
func SanitizeTitle(title string) string {
	clean := unsafeTitleChars.ReplaceAllString(title, "")
	clean = titleWhitespace.ReplaceAllString(strings.TrimSpace(clean), "_")
	if len(clean) > MaxTitleLength {
		clean = clean[:MaxTitleLength]
	}
	if clean == "" {
		return FallbackBaseName
	}
	return clean
}

// ExtensionFor returns the file extension used for a platform
func ExtensionFor(platform string) string {
	if ext, ok := platformExtensions[strings.ToLower(platform)]; ok {
		return ext
	}
	return DefaultExtension
}

// FileName builds "<title>_<quality>_<unixmillis>.<ext>"
func FileName(title, platform, quality string, createdAt time.Time) string {
	q := SanitizeTitle(quality)
	return fmt.Sprintf("%s_%s_%d.%s", SanitizeTitle(title), q, createdAt.UnixMilli(), ExtensionFor(platform))
}

// DestinationPath joins dir with FileName and appends "-N" before the extension
// until taken reports the candidate free and no file exists at that path.
func DestinationPath(dir, title, platform, quality string, createdAt time.Time, taken func(string) bool) string {
	name := FileName(title, platform, quality, createdAt)
	candidate := filepath.Join(dir, name)

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; isTaken(candidate, taken); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
	}
	return candidate
}

func isTaken(path string, taken func(string) bool) bool {
	if taken != nil && taken(path) {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
