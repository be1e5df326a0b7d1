package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/model"
)

var (
	ErrNotPlaylist    = errors.New("fetch: not an HLS playlist")
	ErrEmptyPlaylist  = errors.New("fetch: playlist has no segments")
	ErrEncryptedMedia = errors.New("fetch: encrypted HLS segments are not supported")
)

// HLSFetcher concatenates the segments of an HLS rendition. A master
// playlist is resolved to the variant matching the quality label, falling
// back to the highest bandwidth. The cursor is "<segment>:<offset>".
type HLSFetcher struct {
	client *http.Client
	opts   Options
}

// NewHLSFetcher creates a fetcher with the given options.
func NewHLSFetcher(opts Options) *HLSFetcher {
	opts = opts.withDefaults()
	return &HLSFetcher{client: newHTTPClient(opts), opts: opts}
}

// Open resolves the media playlist and positions the stream at cursor
func (f *HLSFetcher) Open(ctx context.Context, media model.MediaRef, quality, cursor string) (download.Stream, error) {
	segment, offset, err := parseSegmentCursor(cursor)
	if err != nil {
		return nil, err
	}

	playlist, base, err := f.loadMedia(ctx, media.URL, quality)
	if err != nil {
		return nil, err
	}

	segments, err := segmentURLs(playlist, base)
	if err != nil {
		return nil, err
	}
	if segment > len(segments) || (segment == len(segments) && offset > 0) {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrBadCursor, segment, len(segments))
	}

	return &segmentStream{
		fetcher:  f,
		ctx:      ctx,
		segments: segments,
		index:    segment,
		offset:   offset,
		buf:      make([]byte, f.opts.ChunkSize),
	}, nil
}

// Renditions lists the variants of a master playlist. A media playlist is
// reported as a single "source" rendition.
func (f *HLSFetcher) Renditions(ctx context.Context, media model.MediaRef) ([]model.Rendition, error) {
	playlist, listType, base, err := f.decode(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MEDIA {
		return []model.Rendition{{Label: "source", URL: base.String()}}, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	renditions := make([]model.Rendition, 0, len(master.Variants))
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		renditions = append(renditions, model.Rendition{
			Label:      qualityLabel(v.Resolution, v.Bandwidth),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
			URL:        resolveURL(base, v.URI),
		})
	}
	sort.SliceStable(renditions, func(i, j int) bool {
		return renditions[i].Bandwidth > renditions[j].Bandwidth
	})
	return renditions, nil
}

// decode fetches and parses the playlist at rawURL
func (f *HLSFetcher) decode(ctx context.Context, rawURL string) (m3u8.Playlist, m3u8.ListType, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %v", ErrNotPlaylist, err)
	}

	req, err := newRequest(ctx, f.opts, http.MethodGet, rawURL)
	if err != nil {
		return nil, 0, nil, err
	}
	resp, err := do(f.client, req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, 0, nil, err
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, nil, ctx.Err()
		}
		return nil, 0, nil, fmt.Errorf("%w: %v", ErrNotPlaylist, err)
	}
	if listType != m3u8.MASTER && listType != m3u8.MEDIA {
		return nil, 0, nil, ErrNotPlaylist
	}
	return playlist, listType, base, nil
}

// loadMedia returns the media playlist for quality, following a master playlist once
func (f *HLSFetcher) loadMedia(ctx context.Context, rawURL, quality string) (*m3u8.MediaPlaylist, *url.URL, error) {
	playlist, listType, base, err := f.decode(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	if listType == m3u8.MEDIA {
		return playlist.(*m3u8.MediaPlaylist), base, nil
	}

	variant := selectVariant(playlist.(*m3u8.MasterPlaylist).Variants, quality)
	if variant == nil {
		return nil, nil, fmt.Errorf("%w: master playlist has no variants", ErrEmptyPlaylist)
	}

	playlist, listType, base, err = f.decode(ctx, resolveURL(base, variant.URI))
	if err != nil {
		return nil, nil, err
	}
	if listType != m3u8.MEDIA {
		return nil, nil, fmt.Errorf("%w: variant is not a media playlist", ErrNotPlaylist)
	}
	return playlist.(*m3u8.MediaPlaylist), base, nil
}

// selectVariant picks the variant whose height matches quality ("720p"),
// otherwise the one with the highest bandwidth
func selectVariant(variants []*m3u8.Variant, quality string) *m3u8.Variant {
	want := qualityHeight(quality)
	var best, match *m3u8.Variant
	for _, v := range variants {
		if v == nil {
			continue
		}
		if want > 0 && resolutionHeight(v.Resolution) == want {
			if match == nil || v.Bandwidth > match.Bandwidth {
				match = v
			}
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if match != nil {
		return match
	}
	return best
}

func segmentURLs(playlist *m3u8.MediaPlaylist, base *url.URL) ([]string, error) {
	if key := playlist.Key; key != nil && key.Method != "" && !strings.EqualFold(key.Method, "NONE") {
		return nil, ErrEncryptedMedia
	}

	urls := make([]string, 0, len(playlist.Segments))
	for _, seg := range playlist.Segments {
		if seg == nil {
			continue
		}
		if key := seg.Key; key != nil && key.Method != "" && !strings.EqualFold(key.Method, "NONE") {
			return nil, ErrEncryptedMedia
		}
		urls = append(urls, resolveURL(base, seg.URI))
	}
	if len(urls) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return urls, nil
}

// segmentStream reads segments one after another. Segment bodies are
// requested lazily so pausing between segments leaves nothing open.
type segmentStream struct {
	fetcher  *HLSFetcher
	ctx      context.Context
	segments []string
	index    int
	offset   int64
	body     *bodyReader
	buf      []byte
}

// TotalLength is unknown: segment sizes are not advertised by the playlist
func (s *segmentStream) TotalLength() int64 {
	return -1
}

func (s *segmentStream) Next(ctx context.Context) ([]byte, error) {
	for s.index < len(s.segments) {
		if s.body == nil {
			if err := s.openSegment(ctx); err != nil {
				return nil, err
			}
		}

		data, err := readChunk(ctx, s.body, s.buf)
		if errors.Is(err, io.EOF) {
			s.body.Close()
			s.body = nil
			s.index++
			s.offset = 0
			continue
		}
		if err != nil {
			// the body is unusable after a cancelled or failed read
			s.body.Close()
			s.body = nil
			return nil, err
		}
		s.offset += int64(len(data))
		return data, nil
	}
	return nil, io.EOF
}

// openSegment requests the current segment and skips bytes already written
func (s *segmentStream) openSegment(ctx context.Context) error {
	// the request lives for the whole stream; ctx only bounds this call
	req, err := newRequest(s.ctx, s.fetcher.opts, http.MethodGet, s.segments[s.index])
	if err != nil {
		return err
	}

	type result struct {
		resp *http.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := do(s.fetcher.client, req)
		ch <- result{resp, err}
	}()

	var resp *http.Response
	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		resp = r.resp
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.resp != nil {
				r.resp.Body.Close()
			}
		}()
		return ctx.Err()
	}

	if err := checkStatusCode(resp.StatusCode); err != nil {
		resp.Body.Close()
		return fmt.Errorf("segment %d: %w", s.index, err)
	}
	if s.offset > 0 {
		if _, err := io.CopyN(io.Discard, resp.Body, s.offset); err != nil {
			resp.Body.Close()
			return fmt.Errorf("%w: skip %d bytes of segment %d: %v", download.ErrNetworkFailure, s.offset, s.index, err)
		}
	}
	s.body = newBodyReader(resp.Body)
	return nil
}

func (s *segmentStream) Cursor() string {
	return formatSegmentCursor(s.index, s.offset)
}

func (s *segmentStream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

func formatSegmentCursor(index int, offset int64) string {
	return strconv.Itoa(index) + ":" + strconv.FormatInt(offset, 10)
}

func parseSegmentCursor(cursor string) (int, int64, error) {
	if cursor == "" {
		return 0, 0, nil
	}
	idx, off, ok := strings.Cut(cursor, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
	}
	index, err := strconv.Atoi(idx)
	if err != nil || index < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
	}
	offset, err := strconv.ParseInt(off, 10, 64)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
	}
	return index, offset, nil
}

// resolveURL resolves a relative reference against a base URL
func resolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

// qualityHeight turns "720p" into 720
func qualityHeight(quality string) int {
	q := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "p")
	h, err := strconv.Atoi(q)
	if err != nil {
		return 0
	}
	return h
}

// resolutionHeight turns "1280x720" into 720
func resolutionHeight(resolution string) int {
	_, h, ok := strings.Cut(strings.ToLower(resolution), "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return height
}

func qualityLabel(resolution string, bandwidth uint32) string {
	if h := resolutionHeight(resolution); h > 0 {
		return strconv.Itoa(h) + "p"
	}
	return strconv.FormatUint(uint64(bandwidth/1000), 10) + "k"
}
