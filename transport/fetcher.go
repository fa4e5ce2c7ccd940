// Package transport fetches planetoid payloads over HTTP, optionally through a
// persistent payload store, and decodes them into artifacts.
package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"rocktree.lol/store"
)

// Fetcher retrieves the payload at a URL.
type Fetcher interface {
	Fetch(c cx, url st) (b by, err er)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(c cx, url st) (by, er)

func (f FetcherFunc) Fetch(c cx, url st) (by, er) { return f(c, url) }

// DefaultUserAgent is sent with every request.
const DefaultUserAgent = "rocktree.lol/1"

// DefaultMaxBody bounds the size of a payload read from a response.
const DefaultMaxBody = 64 << 20

// HTTP fetches over net/http. The context of each call bounds the request.
type HTTP struct {
	Client    *http.Client
	UserAgent st
	MaxBody   int64
}

// NewHTTP creates a fetcher with a pooled client. Redirects are not followed,
// the endpoint answers directly.
func NewHTTP() *HTTP {
	return &HTTP{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) er {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: DefaultUserAgent,
		MaxBody:   DefaultMaxBody,
	}
}

func (h *HTTP) Fetch(c cx, url st) (b by, err er) {
	var req *http.Request
	if req, err = http.NewRequestWithContext(c, http.MethodGet, url, nil); chk.E(err) {
		return nil, &Error{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", h.UserAgent)
	var res *http.Response
	if res, err = h.Client.Do(req); err != nil {
		log.D.F("request %s failed: %v", url, err)
		return nil, RequestError(url, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, StatusError(url, res.StatusCode)
	}
	limit := h.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	if b, err = io.ReadAll(io.LimitReader(res.Body, limit+1)); err != nil {
		return nil, RequestError(url, err)
	}
	if int64(len(b)) > limit {
		return nil, &Error{URL: url, Err: errorf.E("payload exceeds %d bytes", limit)}
	}
	log.T.F("fetched %s, %d bytes", url, len(b))
	return
}

// Persistent serves payloads from a store and fetches the rest through
// Fetcher, storing what it gets. Only URLs naming an epoch are stored, so a
// stored value is never stale; the planetoid metadata always goes to Fetcher.
type Persistent struct {
	Fetcher
	Store store.I
}

// Versioned reports whether url names the epoch of its payload.
func Versioned(url st) bo { return strings.Contains(url, "/pb=") }

func (p *Persistent) Fetch(c cx, url st) (b by, err er) {
	if !Versioned(url) {
		return p.Fetcher.Fetch(c, url)
	}
	if b, err = p.Store.Get(c, url); err == nil {
		log.T.F("store hit %s", url)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		chk.E(err)
	}
	if b, err = p.Fetcher.Fetch(c, url); err != nil {
		return
	}
	// a payload that cannot be stored is still good for this call
	chk.E(p.Store.Put(c, url, b))
	return
}
