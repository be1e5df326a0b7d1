package fetch

import (
	"context"
	"net/url"
	"strings"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/model"
)

// Auto routes HLS playlists to HLSFetcher and everything else to HTTPFetcher
type Auto struct {
	HTTP *HTTPFetcher
	HLS  *HLSFetcher
}

// NewAuto creates both fetchers with the same options
func NewAuto(opts Options) *Auto {
	return &Auto{HTTP: NewHTTPFetcher(opts), HLS: NewHLSFetcher(opts)}
}

func (a *Auto) Open(ctx context.Context, media model.MediaRef, quality, cursor string) (download.Stream, error) {
	if IsHLS(media) {
		return a.HLS.Open(ctx, media, quality, cursor)
	}
	return a.HTTP.Open(ctx, media, quality, cursor)
}

// Renditions is only available for HLS sources
func (a *Auto) Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error) {
	if !IsHLS(media) {
		return nil, download.ErrUnsupported
	}
	return a.HLS.Renditions(ctx, media)
}

// IsHLS reports whether media points at an m3u8 playlist
func IsHLS(media model.MediaRef) bool {
	if strings.EqualFold(media.Platform, "hls") {
		return true
	}
	u, err := url.Parse(media.URL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}
