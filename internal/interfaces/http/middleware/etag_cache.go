package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the response body back so a validator can be computed over it.
type bufferedWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// ETag adds a strong validator to successful GET responses and answers 304 when the
// client already holds the current representation. Responses are user specific, so
// they are only cacheable privately and must be revalidated.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		bw := &bufferedWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		body := bw.body.Bytes()
		if c.Writer.Status() != http.StatusOK || len(body) == 0 {
			_, _ = c.Writer.Write(body)
			return
		}

		etag := fmt.Sprintf(`"%x"`, sha256.Sum256(body))
		c.Header("ETag", etag)
		c.Header("Cache-Control", "private, no-cache")
		c.Header("Vary", "Cookie")

		if c.GetHeader("If-None-Match") == etag {
			c.Writer.Header().Del("Content-Type")
			c.Status(http.StatusNotModified)
			c.Writer.WriteHeaderNow()
			return
		}
		_, _ = c.Writer.Write(body)
	}
}
