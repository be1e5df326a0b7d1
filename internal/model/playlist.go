package model

import (
	"time"
)

// PlaylistEntry is a single media item discovered in a playlist
type PlaylistEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
	URL      string `json:"url"`
}

// Playlist is an expanded playlist whose entries can be started as tasks
type Playlist struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Platform  string          `json:"platform"`
	Entries   []PlaylistEntry `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPlaylist creates a new playlist instance
func NewPlaylist(id, url, platform string) *Playlist {
	return &Playlist{
		ID:        id,
		URL:       url,
		Platform:  platform,
		Entries:   make([]PlaylistEntry, 0),
		CreatedAt: time.Now(),
	}
}

// AddEntry appends an entry to the playlist
func (p *Playlist) AddEntry(entry PlaylistEntry) {
	p.Entries = append(p.Entries, entry)
}

// MediaRefs converts every entry into a media reference ready for Start
func (p *Playlist) MediaRefs() []MediaRef {
	refs := make([]MediaRef, 0, len(p.Entries))
	for _, e := range p.Entries {
		refs = append(refs, MediaRef{
			Title:    e.Title,
			Platform: p.Platform,
			URL:      e.URL,
		})
	}
	return refs
}
