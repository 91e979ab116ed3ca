package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

const transportPayload = "<html><body>stránka s diakritikou: žluťoučký kůň</body></html>"

func compressPayload(t *testing.T, encoding string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zstd":
		w, err = zstd.NewWriter(&buf)
	default:
		t.Fatalf("unknown encoding %q", encoding)
	}
	if err != nil {
		t.Fatalf("failed to build %s writer: %v", encoding, err)
	}
	if _, err := w.Write([]byte(transportPayload)); err != nil {
		t.Fatalf("failed to compress payload: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to flush payload: %v", err)
	}
	return buf.Bytes()
}

func TestCompressionTransportDecodesEncodings(t *testing.T) {
	t.Parallel()

	for _, encoding := range []string{"gzip", "deflate", "br", "zstd"} {
		t.Run(encoding, func(t *testing.T) {
			t.Parallel()

			compressed := compressPayload(t, encoding)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if accept := r.Header.Get("Accept-Encoding"); accept != acceptedEncodings {
					t.Errorf("Accept-Encoding = %q, want %q", accept, acceptedEncodings)
				}
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(compressed)
			}))
			t.Cleanup(server.Close)

			httpClient := &http.Client{Transport: newCompressionTransport(nil)}
			resp, err := httpClient.Get(server.URL)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("failed to read body: %v", err)
			}
			if string(body) != transportPayload {
				t.Errorf("body = %q, want the decompressed payload", body)
			}
			if resp.Header.Get("Content-Encoding") != "" {
				t.Error("Content-Encoding header survived decompression")
			}
		})
	}
}

func TestCompressionTransportPassesIdentityThrough(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(transportPayload))
	}))
	t.Cleanup(server.Close)

	httpClient := &http.Client{Transport: newCompressionTransport(nil)}
	resp, err := httpClient.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if string(body) != transportPayload {
		t.Errorf("body = %q, want it untouched", body)
	}
}

func TestCompressionTransportDoesNotMutateRequest(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	httpClient := &http.Client{Transport: newCompressionTransport(nil)}
	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if req.Header.Get("Accept-Encoding") != "" {
		t.Error("original request grew an Accept-Encoding header")
	}
}

func TestOuterEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"gzip", "gzip"},
		{" GZIP ", "gzip"},
		{"gzip, br", "br"},
		{"identity, gzip", "gzip"},
	}
	for _, tt := range tests {
		if got := outerEncoding(tt.header); got != tt.want {
			t.Errorf("outerEncoding(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
