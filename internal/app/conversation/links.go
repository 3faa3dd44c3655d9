package conversation

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ylol-app/ylol/internal/domain"
)

const (
	previewTimeout = 10 * time.Second
	maxPreviews    = 3
)

// extractURLs returns the http(s) URLs found in text, in order, without duplicates.
func extractURLs(text string) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	for _, field := range strings.Fields(text) {
		field = strings.TrimRight(field, ".,;:!?)\"'")
		field = strings.TrimLeft(field, "(\"'")
		u, err := url.Parse(field)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if seen[field] {
			continue
		}
		seen[field] = true
		out = append(out, field)
	}
	return out
}

func (c *Conversation) linkRefs(text string) []domain.MediaRef {
	urls := extractURLs(text)
	if len(urls) == 0 {
		return nil
	}
	refs := make([]domain.MediaRef, 0, len(urls))
	for _, u := range urls {
		refs = append(refs, domain.MediaRef{
			ID:        domain.MediaID(domain.NewID()),
			Kind:      domain.MediaLink,
			Locator:   u,
			CreatedAt: c.now(),
		})
	}
	return refs
}

// fetchPreviewsLocked resolves the links in msg concurrently. Each link
// attachment gets its own metadata and the first link that yields any becomes
// the message preview. Both are display-only.
func (c *Conversation) fetchPreviewsLocked(msg domain.Message) {
	if c.previewer == nil {
		return
	}
	var links []string
	for _, a := range msg.Attachments {
		if a.Kind == domain.MediaLink {
			links = append(links, a.Locator)
		}
	}
	if len(links) == 0 {
		return
	}
	if len(links) > maxPreviews {
		links = links[:maxPreviews]
	}

	c.startLocked(func() {
		ctx, cancel := context.WithTimeout(context.Background(), previewTimeout)
		defer cancel()

		results := make([]*domain.LinkMetadata, len(links))
		g, gctx := errgroup.WithContext(ctx)
		for i, link := range links {
			g.Go(func() error {
				meta, err := c.previewer.Preview(gctx, link)
				if err != nil {
					c.log.Debug("link preview failed", "url", link, "error", err)
					return nil
				}
				results[i] = &meta
				return nil
			})
		}
		_ = g.Wait()

		byURL := make(map[string]*domain.LinkMetadata, len(links))
		for i, meta := range results {
			if meta != nil {
				byURL[links[i]] = meta
			}
		}
		if len(byURL) > 0 {
			c.attachPreviews(msg.ID, links, byURL)
		}
	})
}

func (c *Conversation) attachPreviews(id domain.MessageID, order []string, byURL map[string]*domain.LinkMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for i := range c.state.Messages {
		m := &c.state.Messages[i]
		if m.ID != id {
			continue
		}
		// earlier snapshots share the attachment array
		m.Attachments = append([]domain.MediaRef(nil), m.Attachments...)
		for j := range m.Attachments {
			if meta, ok := byURL[m.Attachments[j].Locator]; ok && m.Attachments[j].Kind == domain.MediaLink {
				m.Attachments[j].Metadata = meta
			}
		}
		for _, u := range order {
			if meta, ok := byURL[u]; ok {
				m.Preview = meta
				break
			}
		}
		c.publishLocked()
		return
	}
}
