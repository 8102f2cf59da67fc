package jsonld

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-federation/core"
	"github.com/piprate/json-gold/ld"
)

// documentLoader fetches remote JSON-LD documents for the json-gold
// processor. In production mode every fetch target must pass the
// public-reachability check, so attacker-supplied identifiers cannot
// steer requests at the local network.
type documentLoader struct {
	client     *http.Client
	userAgent  string
	production bool
}

// NewDocumentLoader builds the federation document loader. The
// userAgent should identify this server's origin. Results are wrapped
// in json-gold's caching loader, so repeated context fetches within a
// process are served from memory.
func NewDocumentLoader(client *http.Client, userAgent string, production bool) ld.DocumentLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return ld.NewCachingDocumentLoader(&documentLoader{
		client:     client,
		userAgent:  userAgent,
		production: production,
	})
}

func (l *documentLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if l.production && !core.IsPublicURL(u) {
		return nil, &FetchError{URL: u}
	}

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	req.Header.Set("Accept", core.JSONAccepts)
	if strings.TrimSpace(l.userAgent) != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	res, err := l.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &FetchError{URL: u, StatusCode: res.StatusCode}
	}

	document, err := ld.DocumentFromReader(res.Body)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	return &ld.RemoteDocument{DocumentURL: u, Document: document}, nil
}
