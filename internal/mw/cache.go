package mw

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// HeaderCache reports whether a response came from the cache.
const HeaderCache = "X-Cache"

// cacheEntry is a stored 2xx response.
type cacheEntry struct {
	status   int
	header   http.Header
	body     []byte
	storedAt time.Time
}

// recordingWriter copies the body aside and stamps Cache-Control on
// successful responses before the header is flushed.
type recordingWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	maxAge time.Duration
}

func (w *recordingWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("Cache-Control", cacheControl(w.maxAge))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func cacheControl(maxAge time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
}

func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// Cache serves repeated GET requests from store for ttl. Only 2xx responses
// are stored. Every cached route answers with X-Cache (HIT or MISS) and a
// Cache-Control max-age counting down to the entry's expiry.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if v, found := store.Get(key); found {
			entry := v.(*cacheEntry)
			age := time.Since(entry.storedAt)

			h := c.Writer.Header()
			for k, vals := range entry.header {
				h[k] = vals
			}
			h.Set(HeaderCache, "HIT")
			h.Set("Age", strconv.Itoa(int(age.Seconds())))
			h.Set("Cache-Control", cacheControl(max(ttl-age, 0)))
			c.Data(entry.status, entry.header.Get("Content-Type"), entry.body)
			c.Abort()
			return
		}

		c.Writer.Header().Set(HeaderCache, "MISS")
		rw := &recordingWriter{ResponseWriter: c.Writer, maxAge: ttl}
		c.Writer = rw

		c.Next()

		if status := rw.Status(); status >= 200 && status < 300 {
			header := rw.Header().Clone()
			header.Del(HeaderCache)
			header.Del("Cache-Control")
			store.Set(key, &cacheEntry{
				status:   status,
				header:   header,
				body:     bytes.Clone(rw.body.Bytes()),
				storedAt: time.Now(),
			}, ttl)
		}
	}
}
