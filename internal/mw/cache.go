package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// page is a stored GET response.
type page struct {
	status  int
	headers http.Header
	body    []byte
}

func (p page) replay(c *gin.Context) {
	h := c.Writer.Header()
	for k, v := range p.headers {
		h[k] = v
	}
	h.Set("X-Cache", "HIT")
	c.Writer.WriteHeader(p.status)
	c.Writer.Write(p.body)
}

// recorder copies everything the handler writes.
type recorder struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (r recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

func success(status int) bool {
	return status >= 200 && status < 300
}

// Cache serves repeated GETs of the same URI from store for ttl. Only 2xx
// responses are kept. A non-positive ttl disables it.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ttl <= 0 || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, ok := store.Get(key); ok {
			hit.(page).replay(c)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); success(status) {
			store.Set(key, page{status: status, headers: rec.Header().Clone(), body: rec.buf.Bytes()}, ttl)
		}
	}
}

// InvalidateCache drops every cached response once a write succeeds.
func InvalidateCache(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if success(c.Writer.Status()) {
			store.Flush()
		}
	}
}
