package client

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const acceptedEncodings = "gzip, deflate, br, zstd"

// compressionTransport advertises compressed encodings on every request and
// transparently decompresses the response body. titulky.com serves brotli to
// browsers and gzip otherwise; deflate and zstd are accepted for completeness.
type compressionTransport struct {
	base http.RoundTripper
}

func newCompressionTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &compressionTransport{base: base}
}

func (t *compressionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptedEncodings)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return resp, nil
	}

	encoding := outerEncoding(resp.Header.Get("Content-Encoding"))
	decoded, err := decodeBody(encoding, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if decoded == nil {
		// Identity or an encoding we did not ask for.
		return resp, nil
	}

	resp.Body = &drainCloser{reader: decoded, original: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

// decodeBody returns a reader that decompresses body according to encoding,
// or nil when the encoding needs no handling.
func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case "deflate":
		return flate.NewReader(body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(body)), nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, nil
	}
}

// outerEncoding picks the last encoding from a Content-Encoding list, which
// is the one that must be undone first.
func outerEncoding(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.Split(header, ",")
	return strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
}

// drainCloser closes both the decompressor and the underlying network body.
type drainCloser struct {
	reader   io.ReadCloser
	original io.ReadCloser
}

func (d *drainCloser) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *drainCloser) Close() error {
	readerErr := d.reader.Close()
	if bodyErr := d.original.Close(); readerErr == nil {
		return bodyErr
	}
	return readerErr
}
