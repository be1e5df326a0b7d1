package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ytget/media-taskd/internal/model"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"watch URL", "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID", "PLAYLIST_ID"},
		{"playlist URL", "https://www.youtube.com/playlist?list=PLAYLIST_ID", "PLAYLIST_ID"},
		{"additional parameters", "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&index=1&t=30", "PLAYLIST_ID"},
		{"multiple list parameters", "https://www.youtube.com/watch?v=VIDEO_ID&list=PLAYLIST_ID&list=OTHER_ID", "PLAYLIST_ID"},
		{"no playlist parameter", "https://www.youtube.com/watch?v=VIDEO_ID", ""},
		{"empty playlist parameter", "https://www.youtube.com/watch?v=VIDEO_ID&list=", ""},
		{"empty URL", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractPlaylistID(tt.url)
			if result != tt.expected {
				t.Errorf("expected %q, got %q for URL: %s", tt.expected, result, tt.url)
			}
		})
	}
}

func TestIsPlaylistURL(t *testing.T) {
	if !IsPlaylistURL("https://www.youtube.com/playlist?list=PL1") {
		t.Error("expected playlist URL to be recognized")
	}
	if IsPlaylistURL("https://www.youtube.com/watch?v=abc") {
		t.Error("expected plain watch URL to be rejected")
	}
	if IsPlaylistURL("://bad") {
		t.Error("expected malformed URL to be rejected")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, DefaultDuration},
		{-5, DefaultDuration},
		{59, "00:59"},
		{61, "01:01"},
		{3600, "01:00:00"},
		{3725, "01:02:05"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.expected {
			t.Errorf("formatDuration(%d) = %q, expected %q", tt.seconds, got, tt.expected)
		}
	}
}

func TestFindCommonPrefix(t *testing.T) {
	tests := []struct {
		name     string
		s1       string
		s2       string
		expected string
	}{
		{"identical strings", "hello world", "hello world", "hello world"},
		{"common prefix", "hello world", "hello there", "hello "},
		{"no common prefix", "hello world", "goodbye world", ""},
		{"first is prefix of second", "hello", "hello world", "hello"},
		{"second is prefix of first", "hello world", "hello", "hello"},
		{"empty first string", "", "hello world", ""},
		{"both empty strings", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := findCommonPrefix(tt.s1, tt.s2)
			if result != tt.expected {
				t.Errorf("expected %q, got %q for s1=%q, s2=%q", tt.expected, result, tt.s1, tt.s2)
			}
		})
	}
}

func TestExtractPlaylistTitle(t *testing.T) {
	tests := []struct {
		name     string
		entries  []model.PlaylistEntry
		expected string
	}{
		{"empty list", nil, DefaultPlaylistName},
		{"single entry", []model.PlaylistEntry{{Title: "Test Video"}}, "Test Video" + PlaylistSuffix},
		{
			"common prefix longer than minimum",
			[]model.PlaylistEntry{{Title: "Rammstein - Ohne Dich Official Video"}, {Title: "Rammstein - Sonne Official Video"}},
			"Rammstein -" + PlaylistSuffix,
		},
		{
			"no common prefix",
			[]model.PlaylistEntry{{Title: "First Video"}, {Title: "Second Video"}},
			"First Video" + PlaylistSuffix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPlaylistTitle(tt.entries); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParsePlaylist(t *testing.T) {
	var requested string
	parser := NewPlaylistParserWithLister(func(ctx context.Context, id string) ([]PlaylistItem, error) {
		requested = id
		return []PlaylistItem{
			{VideoID: "a1", Title: "Artist - Song 1 Official Video", Duration: 200},
			{VideoID: "", Title: "removed"},
			{VideoID: "b2", Title: "Artist - Song 2 Official Video"},
		}, nil
	})

	playlist, err := parser.ParsePlaylist(context.Background(), "https://www.youtube.com/playlist?list=PL42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested != "PL42" {
		t.Errorf("lister called with %q, expected PL42", requested)
	}
	if len(playlist.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(playlist.Entries))
	}
	if playlist.Entries[0].URL != "https://www.youtube.com/watch?v=a1" {
		t.Errorf("unexpected entry URL %s", playlist.Entries[0].URL)
	}
	if playlist.Entries[0].Duration != "03:20" || playlist.Entries[1].Duration != DefaultDuration {
		t.Errorf("unexpected durations %q, %q", playlist.Entries[0].Duration, playlist.Entries[1].Duration)
	}
	if playlist.Title != "Artist - Song"+PlaylistSuffix {
		t.Errorf("unexpected title %q", playlist.Title)
	}

	refs := playlist.MediaRefs()
	if refs[1].Platform != YouTubePlatform || refs[1].Title != "Artist - Song 2 Official Video" {
		t.Errorf("unexpected media ref %+v", refs[1])
	}
}

func TestParsePlaylist_Errors(t *testing.T) {
	failing := errors.New("boom")
	parser := NewPlaylistParserWithLister(func(ctx context.Context, id string) ([]PlaylistItem, error) {
		return nil, failing
	})
	parser.SetTimeout(time.Second)

	tests := []struct {
		name     string
		url      string
		expected error
	}{
		{"no playlist parameter", "https://www.youtube.com/watch?v=VIDEO_ID", ErrInvalidPlaylistURL},
		{"empty playlist ID", "https://www.youtube.com/watch?v=VIDEO_ID&list=", ErrEmptyPlaylistID},
		{"lister failure", "https://www.youtube.com/playlist?list=PL1", failing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParsePlaylist(context.Background(), tt.url)
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}
