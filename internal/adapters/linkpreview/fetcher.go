package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ylol-app/ylol/internal/domain"
)

const (
	maxBodyBytes   = 1 << 20
	defaultTimeout = 8 * time.Second
	userAgent      = "Mozilla/5.0 (compatible; ylol-preview/1.0)"
)

var ErrNoMetadata = errors.New("page has no preview metadata")

// Fetcher is a domain.LinkPreviewer that reads OpenGraph tags, falling back
// to <title> and <meta name="description">. Results are cached per URL.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]domain.LinkMetadata
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{
		client: client,
		cache:  make(map[string]domain.LinkMetadata),
	}
}

// Preview implements domain.LinkPreviewer.
func (f *Fetcher) Preview(ctx context.Context, rawURL string) (domain.LinkMetadata, error) {
	f.mu.Lock()
	meta, ok := f.cache[rawURL]
	f.mu.Unlock()
	if ok {
		return meta, nil
	}

	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return domain.LinkMetadata{}, fmt.Errorf("invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.LinkMetadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.LinkMetadata{}, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.LinkMetadata{}, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, rawURL)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "text/html" && mt != "application/xhtml+xml" {
			return domain.LinkMetadata{}, fmt.Errorf("%w: content type %s", ErrNoMetadata, mt)
		}
	}

	meta, err = Parse(io.LimitReader(resp.Body, maxBodyBytes), base)
	if err != nil {
		return domain.LinkMetadata{}, err
	}

	f.mu.Lock()
	f.cache[rawURL] = meta
	f.mu.Unlock()
	return meta, nil
}

// Parse extracts preview metadata from an HTML document. Relative image
// URLs are resolved against base.
func Parse(r io.Reader, base *url.URL) (domain.LinkMetadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return domain.LinkMetadata{}, fmt.Errorf("failed to parse html: %w", err)
	}

	var (
		meta        domain.LinkMetadata
		title, desc string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				key := getAttr(n, "property")
				if key == "" {
					key = getAttr(n, "name")
				}
				content := strings.TrimSpace(getAttr(n, "content"))
				switch strings.ToLower(key) {
				case "og:title":
					meta.Title = content
				case "og:description":
					meta.Description = content
				case "og:image", "og:image:url":
					if meta.PreviewImageLocator == "" {
						meta.PreviewImageLocator = resolve(base, content)
					}
				case "og:site_name":
					meta.SiteName = content
				case "description":
					desc = content
				}
			case atom.Title:
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Body:
				// metadata lives in <head>
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta.Title == "" {
		meta.Title = title
	}
	if meta.Description == "" {
		meta.Description = desc
	}
	if meta.SiteName == "" && base != nil {
		meta.SiteName = strings.TrimPrefix(base.Hostname(), "www.")
	}
	if meta.Title == "" && meta.Description == "" && meta.PreviewImageLocator == "" {
		return domain.LinkMetadata{}, ErrNoMetadata
	}
	return meta, nil
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
