package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gomcpgo/superfetch/pkg/cache"
)

var downloadHashRe = regexp.MustCompile(`^[a-f0-9.]{8,64}$`)

// urlPathSlug derives a filename slug from a URL's path component, falling
// back to the host when the path is empty or root.
func urlPathSlug(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return u.Hostname(), nil
	}
	segments := strings.Split(path, "/")
	return segments[len(segments)-1], nil
}

var filenameUnsafeRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

const maxFilenameLen = 200

// sanitizeFilenameSlug strips characters unsafe in a Content-Disposition
// filename and caps length, per spec.md §4.6.
func sanitizeFilenameSlug(slug string) string {
	cleaned := filenameUnsafeRe.ReplaceAllString(slug, "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return ""
	}
	runes := []rune(cleaned)
	if len(runes) > maxFilenameLen {
		runes = runes[:maxFilenameLen]
	}
	return string(runes)
}

type cacheWrapper struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Content  string `json:"content"`
}

// downloadHandler implements GET /mcp/downloads/{namespace}/{hash} per
// spec.md §4.6: only the markdown namespace is servable; misses are 404,
// a disabled cache is 503.
func downloadHandler(c *cache.Cache, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		namespace := r.PathValue("namespace")
		hash := r.PathValue("hash")

		if namespace != "markdown" {
			http.NotFound(w, r)
			return
		}
		if !downloadHashRe.MatchString(hash) {
			http.NotFound(w, r)
			return
		}
		if !c.IsEnabled() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "cache disabled"})
			return
		}

		key := namespace + ":" + hash
		entry, ok := c.Get(key)
		if !ok {
			http.NotFound(w, r)
			return
		}

		var wrapper cacheWrapper
		body := entry.Content
		if err := json.Unmarshal([]byte(entry.Content), &wrapper); err == nil {
			if wrapper.Markdown != "" {
				body = wrapper.Markdown
			} else if wrapper.Content != "" {
				body = wrapper.Content
			}
		}

		slug := ""
		if wrapper.URL != "" {
			if parsed, err := urlPathSlug(wrapper.URL); err == nil {
				slug = sanitizeFilenameSlug(parsed)
			}
		}
		if slug == "" && wrapper.Title != "" {
			slug = sanitizeFilenameSlug(wrapper.Title)
		}
		if slug == "" {
			slug = hash[:min(8, len(hash))]
		}
		filename := slug + ".md"

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(ttl.Seconds())))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}
