package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateDirectoryIfNotExists(t *testing.T) {
	tempDir := t.TempDir()
	testDir := filepath.Join(tempDir, "test_dir")

	if _, err := os.Stat(testDir); !os.IsNotExist(err) {
		t.Fatalf("Test directory already exists: %s", testDir)
	}

	if err := CreateDirectoryIfNotExists(testDir); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	if _, err := os.Stat(testDir); os.IsNotExist(err) {
		t.Fatalf("Directory was not created: %s", testDir)
	}

	// Second call should not fail
	if err := CreateDirectoryIfNotExists(testDir); err != nil {
		t.Fatalf("Failed to handle existing directory: %v", err)
	}
}

func TestGetHomeDownloadsDir(t *testing.T) {
	t.Setenv("ANDROID_DATA", "")
	t.Setenv("ANDROID_ROOT", "")

	downloadsDir, err := GetHomeDownloadsDir()
	if err != nil {
		t.Fatalf("Failed to get downloads directory: %v", err)
	}

	if filepath.Base(downloadsDir) != "Downloads" {
		t.Errorf("Expected directory to end with 'Downloads', got: %s", downloadsDir)
	}
}

func TestFileSizeAndRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")

	size, err := FileSize(path)
	if err != nil || size != -1 {
		t.Fatalf("FileSize(missing) = %d, %v, expected -1, nil", size, err)
	}

	if err := os.WriteFile(path, []byte("12345"), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("Expected FileExists to report the written file")
	}

	size, err = FileSize(path)
	if err != nil || size != 5 {
		t.Errorf("FileSize() = %d, %v, expected 5, nil", size, err)
	}

	if err := RemoveFileIfExists(path); err != nil {
		t.Fatalf("RemoveFileIfExists() error = %v", err)
	}
	if FileExists(path) {
		t.Error("Expected file to be removed")
	}

	// Removing again is not an error
	if err := RemoveFileIfExists(path); err != nil {
		t.Errorf("RemoveFileIfExists(missing) error = %v", err)
	}
	if err := RemoveFileIfExists(""); err != nil {
		t.Errorf("RemoveFileIfExists(\"\") error = %v", err)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"My Video", "My_Video"},
		{"  Rock & Roll: Live!  ", "Rock_Roll_Live"},
		{"tabs\tand\nnewlines", "tabs_and_newlines"},
		{"Привет", "media"},
		{"", "media"},
		{strings.Repeat("a", 80), strings.Repeat("a", MaxTitleLength)},
	}

	for _, test := range tests {
		result := SanitizeTitle(test.title)
		if result != test.expected {
			t.Errorf("SanitizeTitle(%q) = %q, expected %q", test.title, result, test.expected)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	if ext := ExtensionFor("YouTube"); ext != "mp4" {
		t.Errorf("ExtensionFor(YouTube) = %s, expected mp4", ext)
	}
	if ext := ExtensionFor("hls"); ext != "ts" {
		t.Errorf("ExtensionFor(hls) = %s, expected ts", ext)
	}
	if ext := ExtensionFor("unknown"); ext != DefaultExtension {
		t.Errorf("ExtensionFor(unknown) = %s, expected %s", ext, DefaultExtension)
	}
}

func TestDestinationPath(t *testing.T) {
	dir := t.TempDir()
	created := time.UnixMilli(1700000000000)

	first := DestinationPath(dir, "My Video", "youtube", "720p", created, nil)
	expected := filepath.Join(dir, "My_Video_720p_1700000000000.mp4")
	if first != expected {
		t.Fatalf("DestinationPath() = %s, expected %s", first, expected)
	}

	// A path claimed by a live task is skipped
	claimed := map[string]bool{first: true}
	second := DestinationPath(dir, "My Video", "youtube", "720p", created, func(p string) bool { return claimed[p] })
	if second == first {
		t.Fatal("Expected a distinct path when the first candidate is taken")
	}
	if filepath.Base(second) != "My_Video_720p_1700000000000-1.mp4" {
		t.Errorf("DestinationPath() = %s, expected -1 suffix", second)
	}

	// An existing file is skipped too
	if err := os.WriteFile(second, nil, DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}
	third := DestinationPath(dir, "My Video", "youtube", "720p", created, func(p string) bool { return claimed[p] })
	if filepath.Base(third) != "My_Video_720p_1700000000000-2.mp4" {
		t.Errorf("DestinationPath() = %s, expected -2 suffix", third)
	}

	// Different creation times never collide
	later := DestinationPath(dir, "My Video", "youtube", "720p", created.Add(time.Millisecond), nil)
	if later == first {
		t.Error("Expected different creation times to produce different paths")
	}
}
