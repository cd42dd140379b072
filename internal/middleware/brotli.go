package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliOptions tunes response compression.
type BrotliOptions struct {
	Quality int
	// MinLength is the body size below which responses are sent as is.
	MinLength int
	// SkipPaths are route prefixes that are never compressed.
	SkipPaths []string
}

// DefaultBrotliOptions compresses JSON bodies of at least 1 KiB.
var DefaultBrotliOptions = BrotliOptions{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
	SkipPaths: []string{"/health", "/ws/"},
}

// brotliWriter holds the body back until it is large enough to be worth
// compressing, then switches to a brotli stream for the rest of it.
type brotliWriter struct {
	gin.ResponseWriter
	quality   int
	minLength int
	pending   []byte
	stream    *brotli.Writer
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.stream != nil {
		return bw.stream.Write(data)
	}

	bw.pending = append(bw.pending, data...)
	if len(bw.pending) < bw.minLength {
		return len(data), nil
	}

	h := bw.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	bw.stream = brotli.NewWriterLevel(bw.ResponseWriter, bw.quality)
	if _, err := bw.stream.Write(bw.pending); err != nil {
		return 0, err
	}
	bw.pending = nil
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// finish writes a short body uncompressed or closes the brotli stream.
func (bw *brotliWriter) finish() error {
	if bw.stream != nil {
		return bw.stream.Close()
	}
	if len(bw.pending) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(bw.pending)
	return err
}

// Brotli compresses responses for clients that accept "br".
func Brotli(opts BrotliOptions) gin.HandlerFunc {
	if opts.Quality < brotli.BestSpeed || opts.Quality > brotli.BestCompression {
		opts.Quality = brotli.DefaultCompression
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultBrotliOptions.MinLength
	}

	return func(c *gin.Context) {
		if skipCompression(c, opts.SkipPaths) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			quality:        opts.Quality,
			minLength:      opts.MinLength,
		}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

// skipCompression passes WebSocket handshakes and configured prefixes
// through untouched. A wrapped writer cannot be hijacked.
func skipCompression(c *gin.Context, prefixes []string) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	path := c.Request.URL.Path
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
