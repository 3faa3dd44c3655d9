package linkpreview_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylol-app/ylol/internal/adapters/linkpreview"
	"github.com/ylol-app/ylol/internal/domain"
)

const ogPage = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="A walk in the park">
<meta property="og:description" content="Photos from sunday">
<meta property="og:image" content="/img/cover.jpg">
<meta property="og:site_name" content="Parks Blog">
</head><body><p>hello</p></body></html>`

func TestParseOpenGraph(t *testing.T) {
	base, _ := url.Parse("https://parks.example/posts/1")
	meta, err := linkpreview.Parse(strings.NewReader(ogPage), base)
	require.NoError(t, err)

	assert.Equal(t, domain.LinkMetadata{
		Title:               "A walk in the park",
		Description:         "Photos from sunday",
		PreviewImageLocator: "https://parks.example/img/cover.jpg",
		SiteName:            "Parks Blog",
	}, meta)
}

func TestParseFallsBackToTitleAndDescription(t *testing.T) {
	base, _ := url.Parse("https://www.plain.example/")
	page := `<html><head><title> Plain page </title><meta name="description" content="just text"></head></html>`

	meta, err := linkpreview.Parse(strings.NewReader(page), base)
	require.NoError(t, err)
	assert.Equal(t, "Plain page", meta.Title)
	assert.Equal(t, "just text", meta.Description)
	assert.Equal(t, "plain.example", meta.SiteName)
}

func TestParseWithoutMetadata(t *testing.T) {
	_, err := linkpreview.Parse(strings.NewReader(`<html><body>nothing</body></html>`), nil)
	require.ErrorIs(t, err, linkpreview.ErrNoMetadata)
}

func TestFetcherPreviewCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, ogPage)
	}))
	defer srv.Close()

	f := linkpreview.NewFetcher(srv.Client())
	ctx := context.Background()

	meta, err := f.Preview(ctx, srv.URL+"/posts/1")
	require.NoError(t, err)
	assert.Equal(t, "A walk in the park", meta.Title)
	assert.Equal(t, srv.URL+"/img/cover.jpg", meta.PreviewImageLocator)

	_, err = f.Preview(ctx, srv.URL+"/posts/1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetcherPreviewErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{}`)
		}
	}))
	defer srv.Close()

	f := linkpreview.NewFetcher(srv.Client())
	ctx := context.Background()

	_, err := f.Preview(ctx, srv.URL+"/missing")
	assert.Error(t, err)

	_, err = f.Preview(ctx, srv.URL+"/json")
	assert.ErrorIs(t, err, linkpreview.ErrNoMetadata)

	_, err = f.Preview(ctx, "ftp://example.com/file")
	assert.Error(t, err)
}
