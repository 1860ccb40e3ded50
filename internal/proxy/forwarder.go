package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Forwarder streams a request to its target untouched by the cache layer.
// It carries the traffic the interceptor declines: non-GET methods and
// foreign-origin requests.
type Forwarder struct {
	Client         *http.Client
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Do forwards the request to the target URL and streams the response back.
func (f *Forwarder) Do(w http.ResponseWriter, r *http.Request, target *url.URL) error {
	if f.Client == nil {
		return errors.New("forwarder client is nil")
	}

	f.Logger.Debug("passing request through",
		slog.String("method", r.Method),
		slog.String("target", target.String()))

	ctx, cancel := context.WithTimeout(r.Context(), f.RequestTimeout)
	defer cancel()

	outbound, err := buildOutbound(ctx, r, target)
	if err != nil {
		return err
	}

	resp, err := f.Client.Do(outbound)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)

	if resp.Body != nil {
		buf := make([]byte, 32*1024)
		if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
			return err
		}
	}

	return nil
}

func buildOutbound(ctx context.Context, r *http.Request, target *url.URL) (*http.Request, error) {
	outbound, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}

	copyHeaders(outbound.Header, r.Header)
	for _, h := range hopHeaders {
		outbound.Header.Del(h)
	}

	stampForwardedHeaders(outbound.Header, r)

	outbound.ContentLength = r.ContentLength
	outbound.Host = target.Host

	return outbound, nil
}

func stampForwardedHeaders(header http.Header, r *http.Request) {
	clientIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		clientIP = r.RemoteAddr
	}

	if clientIP != "" {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", strings.Join([]string{prior, clientIP}, ", "))
		} else {
			header.Set("X-Forwarded-For", clientIP)
		}
	}

	if header.Get("X-Forwarded-Proto") == "" {
		header.Set("X-Forwarded-Proto", requestScheme(r))
	}

	header.Set("X-Forwarded-Host", r.Host)
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.URL.Scheme; scheme != "" {
		return scheme
	}
	return "http"
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
