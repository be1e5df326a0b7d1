package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/media-taskd/internal/model"
)

// Timeout constants
const (
	DefaultParseTimeout = 60 * time.Second
)

// URL parameters
const (
	PlaylistParam = "list"
)

// Default values
const (
	DefaultDuration     = "Unknown"
	DefaultPlaylistName = "Unknown Playlist"
	PlaylistSuffix      = " Playlist"
	MinPrefixLength     = 10
	YouTubePlatform     = "youtube"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

var (
	ErrInvalidPlaylistURL = errors.New("platform: invalid playlist URL")
	ErrEmptyPlaylistID    = errors.New("platform: could not extract playlist ID")
)

// PlaylistItem is one entry reported by the playlist source
type PlaylistItem struct {
	VideoID  string
	Title    string
	Duration int // seconds, 0 when unknown
}

// ItemLister fetches every item of a playlist by its id
type ItemLister func(ctx context.Context, playlistID string) ([]PlaylistItem, error)

// PlaylistParser expands playlist URLs into media entries using ytdlp
type PlaylistParser struct {
	timeout time.Duration
	list    ItemLister
}

// NewPlaylistParser creates a parser backed by the ytdlp library
func NewPlaylistParser() *PlaylistParser {
	return &PlaylistParser{
		timeout: DefaultParseTimeout,
		list:    ytdlpItems,
	}
}

// NewPlaylistParserWithLister creates a parser with a custom item source
func NewPlaylistParserWithLister(list ItemLister) *PlaylistParser {
	return &PlaylistParser{
		timeout: DefaultParseTimeout,
		list:    list,
	}
}

func ytdlpItems(ctx context.Context, playlistID string) ([]PlaylistItem, error) {
	items, err := ytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]PlaylistItem, 0, len(items))
	for _, it := range items {
		out = append(out, PlaylistItem{VideoID: it.VideoID, Title: it.Title})
	}
	return out, nil
}

// SetTimeout sets the timeout for parsing operations
func (p *PlaylistParser) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// ParsePlaylist resolves a playlist URL into its entries
func (p *PlaylistParser) ParsePlaylist(ctx context.Context, rawURL string) (*model.Playlist, error) {
	if !IsPlaylistURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlaylistURL, rawURL)
	}

	playlistID := ExtractPlaylistID(rawURL)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPlaylistID, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	items, err := p.list(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	playlist := model.NewPlaylist(playlistID, rawURL, YouTubePlatform)
	for _, it := range items {
		if it.VideoID == "" {
			continue
		}
		playlist.AddEntry(model.PlaylistEntry{
			ID:       it.VideoID,
			Title:    it.Title,
			Duration: formatDuration(it.Duration),
			URL:      fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
		})
	}
	playlist.Title = extractPlaylistTitle(playlist.Entries)

	return playlist, nil
}

// IsPlaylistURL reports whether rawURL carries a list parameter
func IsPlaylistURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := u.Query()[PlaylistParam]
	return ok
}

// ExtractPlaylistID returns the first list parameter of rawURL
func ExtractPlaylistID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(PlaylistParam)
}

// formatDuration formats seconds into HH:MM:SS or MM:SS
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return DefaultDuration
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// extractPlaylistTitle derives a title from the common prefix of the first two entries
func extractPlaylistTitle(entries []model.PlaylistEntry) string {
	if len(entries) == 0 {
		return DefaultPlaylistName
	}
	if len(entries) > 1 {
		commonPrefix := findCommonPrefix(entries[0].Title, entries[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return entries[0].Title + PlaylistSuffix
}

func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
