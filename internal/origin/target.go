package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// Target represents the page's origin server.
type Target struct {
	base *url.URL
}

// Parse validates a raw origin URL and returns a Target.
func Parse(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse origin url %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("origin %q must use http or https scheme", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin %q must include a host", raw)
	}

	// Normalize to ensure trailing slash removed for stable path joins.
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return &Target{base: u}, nil
}

// URL returns a cloned url.URL for safe mutation by callers.
func (t *Target) URL() *url.URL {
	clone := *t.base
	return &clone
}

// Host reports the origin's host, used to classify same-origin requests.
func (t *Target) Host() string {
	return t.base.Host
}

// Resolve returns a fully-qualified URL assembled from the origin base,
// path, and query string.
func (t *Target) Resolve(path, rawQuery string) *url.URL {
	u := t.URL()
	u.Path = joinURLPath(u.Path, path)
	u.RawQuery = rawQuery
	return u
}

func joinURLPath(basePath, reqPath string) string {
	switch {
	case basePath == "":
		if strings.HasPrefix(reqPath, "/") {
			return reqPath
		}
		return "/" + reqPath
	case reqPath == "":
		return basePath
	}

	base := strings.TrimRight(basePath, "/")
	req := strings.TrimLeft(reqPath, "/")
	return base + "/" + req
}
