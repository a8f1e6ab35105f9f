package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/config"
	"github.com/gomcpgo/superfetch/pkg/fetch"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func testDeps() *Deps {
	cfg := &config.Config{
		FetchRetries:          1,
		RequestTimeout:        time.Second,
		MaxRedirects:          3,
		MaxContentLength:      1 << 20,
		MaxInlineContentChars: 20000,
		CacheTTL:              time.Hour,
	}
	return NewDeps(cfg, cache.New(true, time.Hour, 100), fetch.New("test/1.0", nil), workerpool.New(2))
}

func TestToolErrorMapsAppError(t *testing.T) {
	result, structured, err := toolError(apperrors.Validation("bad url"))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	m := structured.(map[string]interface{})
	assert.Equal(t, "bad url", m["error"])
	assert.Equal(t, "", m["code"])
}

func TestToolErrorWrapsPlainError(t *testing.T) {
	_, structured, err := toolError(assertError("boom"))
	require.NoError(t, err)
	m := structured.(map[string]interface{})
	assert.Equal(t, "boom", m["error"])
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestExtractBlocksWithoutMainExtraction(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	body := "<html><head><title>T</title></head><body><p>Hello world</p></body></html>"
	result, err := d.extractBlocks(body, "https://example.com/page", false, false)
	require.NoError(t, err)
	assert.Greater(t, result.Blocks, 0)
	assert.NotEmpty(t, result.Content)
}

func TestExtractBlocksIncludesMetadataBlock(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	body := `<html><head><title>My Title</title></head><body><p>Body text here</p></body></html>`
	result, err := d.extractBlocks(body, "https://example.com/page", false, true)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "metadata")
}

func TestRenderMarkdownRawTextHint(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	md, err := d.renderMarkdown("# Already Markdown\n\nSome text.", "https://example.com/doc.md", true)
	require.NoError(t, err)
	assert.Contains(t, md.Markdown, "Already Markdown")
}

func TestRenderMarkdownHTMLExtraction(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	body := `<html><head><title>Article</title></head><body><article><p>` +
		`This is a reasonably long paragraph of article content meant to pass readability heuristics for extraction testing purposes.` +
		`</p></article></body></html>`
	md, err := d.renderMarkdown(body, "https://example.com/article", true)
	require.NoError(t, err)
	assert.NotEmpty(t, md.Markdown)
}

func TestFetchURLsRejectsEmptyList(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	result, _, err := d.FetchURLs(context.Background(), nil, FetchURLsInput{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFetchLinksRejectsBadFilterPattern(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	result, _, err := d.FetchLinks(context.Background(), nil, FetchLinksInput{URL: "https://example.com", FilterPattern: "(unclosed"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFetchURLRejectsBlockedHost(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	result, _, err := d.FetchURL(context.Background(), nil, FetchURLInput{URL: "http://127.0.0.1/"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestReadCacheResourceHit(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	wrapper := markdownCacheWrapper{URL: "https://example.com", Title: "T", Markdown: "# Hi"}
	b, err := json.Marshal(wrapper)
	require.NoError(t, err)
	hash := "abcdef0123456789"
	d.Cache.Set("markdown:"+hash, string(b), nil)

	res, err := d.readCacheResource(context.Background(), &mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "superfetch://cache/markdown/" + hash},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "# Hi", res.Contents[0].Text)
}

func TestReadCacheResourceMiss(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	_, err := d.readCacheResource(context.Background(), &mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "superfetch://cache/markdown/0000000000000000"},
	})
	require.Error(t, err)
}

func TestReadCacheResourceRejectsUnsupportedNamespace(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	_, err := d.readCacheResource(context.Background(), &mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "superfetch://cache/url/0000000000000000"},
	})
	require.Error(t, err)
}

func TestReadCacheResourceRejectsMalformedURI(t *testing.T) {
	d := testDeps()
	defer d.Pool.Close()

	_, err := d.readCacheResource(context.Background(), &mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "not-a-cache-uri"},
	})
	require.Error(t, err)
}
