package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/model"
)

// HTTPFetcher downloads a single resource with range requests. The cursor
// is the decimal byte offset already written.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
}

// NewHTTPFetcher creates a fetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	opts = opts.withDefaults()
	return &HTTPFetcher{client: newHTTPClient(opts), opts: opts}
}

// Open issues GET with "Range: bytes=<offset>-". A server ignoring the range
// answers 200; the already written prefix is then skipped from the body.
func (f *HTTPFetcher) Open(ctx context.Context, media model.MediaRef, quality, cursor string) (download.Stream, error) {
	offset, err := parseOffset(cursor)
	if err != nil {
		return nil, err
	}

	req, err := newRequest(ctx, f.opts, http.MethodGet, media.URL)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := do(f.client, req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		start, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %v", ErrBadRange, err)
		}
		if start != offset {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: asked for %d, got %d", ErrBadRange, offset, start)
		}
		return newBodyStream(resp.Body, offset, total, f.opts.ChunkSize), nil

	case http.StatusOK:
		total := resp.ContentLength
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: skip %d bytes: %v", download.ErrNetworkFailure, offset, err)
			}
		}
		return newBodyStream(resp.Body, offset, total, f.opts.ChunkSize), nil

	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		// the file was already complete when the transfer stopped
		if _, _, total, err := ParseContentRange(resp.Header.Get("Content-Range")); err == nil && total == offset {
			return newBodyStream(http.NoBody, offset, total, f.opts.ChunkSize), nil
		}
		return nil, fmt.Errorf("%w: offset %d not satisfiable", ErrBadRange, offset)
	}

	resp.Body.Close()
	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

func parseOffset(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadCursor, cursor)
	}
	return offset, nil
}

// bodyStream reads fixed-size chunks from a response body
type bodyStream struct {
	body   *bodyReader
	offset int64
	total  int64
	buf    []byte
}

func newBodyStream(body io.ReadCloser, offset, total int64, chunkSize int) *bodyStream {
	return &bodyStream{body: newBodyReader(body), offset: offset, total: total, buf: make([]byte, chunkSize)}
}

func (s *bodyStream) TotalLength() int64 {
	return s.total
}

// Next reads one chunk. Cancelling ctx closes the body, which unblocks the read.
func (s *bodyStream) Next(ctx context.Context) ([]byte, error) {
	data, err := readChunk(ctx, s.body, s.buf)
	s.offset += int64(len(data))
	return data, err
}

func (s *bodyStream) Cursor() string {
	return strconv.FormatInt(s.offset, 10)
}

func (s *bodyStream) Close() error {
	return s.body.Close()
}

// bodyReader remembers the first read error. A truncated net/http body keeps
// failing after the short read, and the failure must surface on the next chunk.
type bodyReader struct {
	rc  io.ReadCloser
	err error
}

func newBodyReader(rc io.ReadCloser) *bodyReader {
	return &bodyReader{rc: rc}
}

func (b *bodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.rc.Read(p)
	if err != nil {
		b.err = err
	}
	return n, err
}

func (b *bodyReader) Close() error {
	return b.rc.Close()
}

// readChunk fills buf from r and returns a copy of what was read. A short read
// returns its bytes without error; the cause is reported by the following call,
// either io.EOF for a clean end or a network failure for a broken body.
func readChunk(ctx context.Context, r *bodyReader, buf []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { r.Close() })
	n, err := io.ReadFull(r, buf)
	if !stop() {
		return nil, ctx.Err()
	}

	switch {
	case err == nil:
		return append([]byte(nil), buf[:n]...), nil
	case n > 0:
		return append([]byte(nil), buf[:n]...), nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("%w: read body: %v", download.ErrNetworkFailure, err)
	}
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
// "bytes */total" yields start and end of -1.
func ParseContentRange(header string) (start, end, total int64, err error) {
	header = strings.TrimSpace(strings.TrimPrefix(header, "bytes "))
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	if parts[0] == "*" {
		return -1, -1, total, nil
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	return start, end, total, nil
}
