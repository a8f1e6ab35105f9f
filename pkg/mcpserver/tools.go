package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/transform"
)

// jsonlResult is fetch-url's transform output. Serialize caches it as a
// jsonlCacheWrapper, which keeps Title and Content but not Blocks.
type jsonlResult struct {
	Title   string
	Content string
	Blocks  int
}

type jsonlCacheWrapper struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

func (d *Deps) extractBlocks(body, normalizedURL string, extractMain, includeMetadata bool) (jsonlResult, error) {
	content := body
	title := ""

	if extractMain {
		if pageURL, perr := url.Parse(normalizedURL); perr == nil {
			if extracted, extractedTitle, accepted := transform.ExtractArticle(body, pageURL); accepted {
				content = extracted
				title = extractedTitle
			}
		}
	}

	var blocks []transform.Block
	if includeMetadata {
		meta := transform.ExtractMetadata(body)
		if title == "" {
			title = meta["title"]
		}
		blocks = append(blocks, transform.Block{Type: transform.BlockMetadata, Title: title, URL: normalizedURL})
	}

	parsed, err := transform.ParseContentBlocks(content)
	if err != nil {
		return jsonlResult{}, apperrors.Internal(err)
	}
	maxBlockLen := d.Cfg.MaxBlockLength
	for i := range parsed {
		parsed[i].Text = transform.TruncateBlockText(parsed[i].Text, maxBlockLen)
	}
	blocks = append(blocks, parsed...)

	return jsonlResult{Title: title, Content: transform.EncodeJSONL(blocks), Blocks: len(parsed)}, nil
}

// FetchURL implements the fetch-url tool (spec.md §6).
func (d *Deps) FetchURL(ctx context.Context, _ *mcp.CallToolRequest, in FetchURLInput) (*mcp.CallToolResult, any, error) {
	extractMain := boolOr(in.ExtractMainContent, true)
	includeMeta := boolOr(in.IncludeMetadata, true)
	maxContentLen := in.MaxContentLength
	if maxContentLen <= 0 {
		maxContentLen = d.Cfg.MaxContentLength
	}

	result, err := transform.ExecuteFetchPipeline(ctx, d.Cache, d.Fetch, transform.PipelineParams[jsonlResult]{
		URL:           in.URL,
		Namespace:     "url",
		CustomHeaders: in.CustomHeaders,
		Retries:       orInt(in.Retries, d.Cfg.FetchRetries),
		Timeout:       durationMillis(in.Timeout, d.Cfg.RequestTimeout),
		MaxRedirects:  d.Cfg.MaxRedirects,
		MaxContentLen: maxContentLen,
		CacheVary:     map[string]interface{}{"customHeaders": in.CustomHeaders, "extractMainContent": extractMain},
		Transform: func(body, normalizedURL string) (jsonlResult, error) {
			pooled, perr := d.Pool.Submit(ctx, func() (interface{}, error) {
				return d.extractBlocks(body, normalizedURL, extractMain, includeMeta)
			})
			if perr != nil {
				return jsonlResult{}, apperrors.Internal(perr)
			}
			return pooled.(jsonlResult), nil
		},
		Serialize: func(r jsonlResult) (string, error) {
			b, err := json.Marshal(jsonlCacheWrapper{URL: in.URL, Title: r.Title, Content: r.Content})
			return string(b), err
		},
		Deserialize: func(raw string) (jsonlResult, bool, error) {
			var wrapper jsonlCacheWrapper
			if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
				return jsonlResult{}, false, err
			}
			return jsonlResult{Title: wrapper.Title, Content: wrapper.Content}, true, nil
		},
	})
	if err != nil {
		return toolError(err)
	}

	inline, err := transform.ApplyInlineContentLimit(result.Data.Content, result.CacheKey, d.Cache.IsEnabled(), d.Cfg.MaxInlineContentChars)
	if err != nil {
		return toolError(err)
	}

	out := FetchURLOutput{
		URL:           result.URL,
		Title:         result.Data.Title,
		ContentBlocks: result.Data.Blocks,
		FetchedAt:     result.FetchedAt.UTC().Format(time.RFC3339),
		Format:        "jsonl",
		Content:       inline.Content,
		ResourceURI:   inline.ResourceURI,
		Cached:        result.FromCache,
		Truncated:     inline.Truncated,
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: out.Content}}}, out, nil
}

type markdownCacheWrapper struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Markdown string `json:"markdown"`
}

// FetchMarkdown implements the fetch-markdown tool.
func (d *Deps) FetchMarkdown(ctx context.Context, _ *mcp.CallToolRequest, in FetchMarkdownInput) (*mcp.CallToolResult, any, error) {
	includeMeta := boolOr(in.IncludeMetadata, true)

	result, err := transform.ExecuteFetchPipeline(ctx, d.Cache, d.Fetch, transform.PipelineParams[transform.MarkdownResult]{
		URL:           in.URL,
		Namespace:     "markdown",
		CustomHeaders: in.CustomHeaders,
		Retries:       orInt(in.Retries, d.Cfg.FetchRetries),
		Timeout:       durationMillis(in.Timeout, d.Cfg.RequestTimeout),
		MaxRedirects:  d.Cfg.MaxRedirects,
		MaxContentLen: d.Cfg.MaxContentLength,
		CacheVary:     map[string]interface{}{"customHeaders": in.CustomHeaders},
		Transform: func(body, normalizedURL string) (transform.MarkdownResult, error) {
			pooled, perr := d.Pool.Submit(ctx, func() (interface{}, error) {
				return d.renderMarkdown(body, normalizedURL, includeMeta)
			})
			if perr != nil {
				return transform.MarkdownResult{}, apperrors.Internal(perr)
			}
			return pooled.(transform.MarkdownResult), nil
		},
		Serialize: func(r transform.MarkdownResult) (string, error) {
			b, err := json.Marshal(markdownCacheWrapper{URL: in.URL, Title: r.Title, Markdown: r.Markdown})
			return string(b), err
		},
		Deserialize: func(raw string) (transform.MarkdownResult, bool, error) {
			var wrapper markdownCacheWrapper
			if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
				return transform.MarkdownResult{}, false, err
			}
			return transform.MarkdownResult{Markdown: wrapper.Markdown, Title: wrapper.Title}, true, nil
		},
	})
	if err != nil {
		return toolError(err)
	}

	inline, err := transform.ApplyInlineContentLimit(result.Data.Markdown, result.CacheKey, d.Cache.IsEnabled(), d.Cfg.MaxInlineContentChars)
	if err != nil {
		return toolError(err)
	}

	out := FetchMarkdownOutput{
		URL:       result.URL,
		Title:     result.Data.Title,
		FetchedAt: result.FetchedAt.UTC().Format(time.RFC3339),
		Markdown:  inline.Content,
		Truncated: inline.Truncated,
		Cached:    result.FromCache,
	}
	if inline.ResourceURI != "" {
		out.ResourceURI = inline.ResourceURI
		out.ResourceMimeType = "text/markdown"
		if key, perr := cache.ParseCacheKey(result.CacheKey); perr == nil {
			hash := key.URLHash
			if key.VaryHash != "" {
				hash += "." + key.VaryHash
			}
			out.File = &FetchFileInfo{
				DownloadURL: fmt.Sprintf("/mcp/downloads/markdown/%s", hash),
				FileName:    hash + ".md",
				ExpiresAt:   result.FetchedAt.Add(d.Cfg.CacheTTL).UTC().Format(time.RFC3339),
			}
		}
	}

	text := out.Markdown
	if text == "" {
		text = "(content available via resourceUri: " + out.ResourceURI + ")"
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}

func (d *Deps) renderMarkdown(body, normalizedURL string, includeMetadata bool) (transform.MarkdownResult, error) {
	if transform.HintsRawText(normalizedURL) || transform.LooksLikeRawMarkdown(body) {
		md := body
		if includeMetadata {
			md = transform.InjectFrontmatterSource(md, normalizedURL)
		}
		return transform.MarkdownResult{Markdown: md, Title: transform.FrontmatterTitle(md), Extracted: false}, nil
	}

	pageURL, _ := url.Parse(normalizedURL)
	content, title, accepted := transform.ExtractArticle(body, pageURL)
	if !accepted {
		content = body
	}
	if title == "" {
		meta := transform.ExtractMetadata(body)
		title = meta["title"]
	}
	md := transform.ToMarkdown(content)
	if includeMetadata {
		md = transform.InjectFrontmatterSource(md, normalizedURL)
	}
	return transform.MarkdownResult{Markdown: md, Title: title, Extracted: accepted}, nil
}

// FetchURLs implements the fetch-urls batch tool.
func (d *Deps) FetchURLs(ctx context.Context, _ *mcp.CallToolRequest, in FetchURLsInput) (*mcp.CallToolResult, any, error) {
	if len(in.URLs) == 0 {
		return toolError(apperrors.Validation("urls must contain at least 1 entry"))
	}
	urls := in.URLs
	if len(urls) > transform.MaxBatchURLs {
		urls = urls[:transform.MaxBatchURLs]
	}

	concurrency := in.Concurrency
	if concurrency <= 0 {
		concurrency = transform.DefaultConcurrency
	}
	if concurrency > transform.MaxBatchConcurrency {
		concurrency = transform.MaxBatchConcurrency
	}
	continueOnError := boolOr(in.ContinueOnError, true)
	format := in.Format
	if format == "" {
		format = "jsonl"
	}

	results := transform.RunBatch(ctx, urls, concurrency, continueOnError, func(taskCtx context.Context, _ int, u string) (interface{}, error) {
		if format == "markdown" {
			_, out, _ := d.FetchMarkdown(taskCtx, nil, FetchMarkdownInput{URL: u})
			if mo, ok := out.(FetchMarkdownOutput); ok {
				return mo, nil
			}
			return nil, apperrors.Internal(fmt.Errorf("fetch-markdown failed for %s", u))
		}
		_, out, _ := d.FetchURL(taskCtx, nil, FetchURLInput{URL: u})
		if fo, ok := out.(FetchURLOutput); ok {
			return fo, nil
		}
		return nil, apperrors.Internal(fmt.Errorf("fetch-url failed for %s", u))
	})

	items := make([]FetchURLsItemOutput, 0, len(results))
	for _, r := range results {
		item := FetchURLsItemOutput{Index: r.Index, URL: r.URL}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			switch v := r.Data.(type) {
			case FetchURLOutput:
				item.Title, item.Content, item.ResourceURI, item.Cached = v.Title, v.Content, v.ResourceURI, v.Cached
			case FetchMarkdownOutput:
				item.Title, item.Content, item.ResourceURI, item.Cached = v.Title, v.Markdown, v.ResourceURI, v.Cached
			}
		}
		items = append(items, item)
	}

	summary := transform.Summarize(results,
		func(v interface{}) bool {
			switch d := v.(type) {
			case FetchURLOutput:
				return d.Cached
			case FetchMarkdownOutput:
				return d.Cached
			}
			return false
		},
		func(v interface{}) int {
			if d, ok := v.(FetchURLOutput); ok {
				return d.ContentBlocks
			}
			return 0
		},
	)

	out := FetchURLsOutput{
		Results: items,
		Summary: BatchSummaryOutput{
			Total: summary.Total, Successful: summary.Successful,
			Failed: summary.Failed, Cached: summary.Cached,
			TotalContentBlocks: summary.TotalContentBlocks,
		},
		FetchedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("fetched %d/%d URLs", summary.Successful, summary.Total)}}}, out, nil
}

// FetchLinks implements the fetch-links tool.
func (d *Deps) FetchLinks(ctx context.Context, _ *mcp.CallToolRequest, in FetchLinksInput) (*mcp.CallToolResult, any, error) {
	opts := transform.ExtractLinksOptions{
		IncludeInternal: boolOr(in.IncludeInternal, true),
		IncludeExternal: boolOr(in.IncludeExternal, true),
		IncludeImages:   boolOr(in.IncludeImages, false),
		MaxLinks:        in.MaxLinks,
	}
	if in.FilterPattern != "" {
		re, err := transform.CompileFilterPattern(in.FilterPattern)
		if err != nil {
			return toolError(apperrors.Validation(err.Error()))
		}
		opts.Filter = re
	}

	type linksResult struct {
		Links     []transform.Link
		Filtered  int
		Truncated bool
	}

	result, err := transform.ExecuteFetchPipeline(ctx, d.Cache, d.Fetch, transform.PipelineParams[linksResult]{
		URL:           in.URL,
		Namespace:     "links",
		Retries:       d.Cfg.FetchRetries,
		Timeout:       d.Cfg.RequestTimeout,
		MaxRedirects:  d.Cfg.MaxRedirects,
		MaxContentLen: d.Cfg.MaxContentLength,
		CacheVary: map[string]interface{}{
			"filterPattern":   in.FilterPattern,
			"maxLinks":        in.MaxLinks,
			"includeInternal": opts.IncludeInternal,
			"includeExternal": opts.IncludeExternal,
			"includeImages":   opts.IncludeImages,
		},
		Transform: func(body, normalizedURL string) (linksResult, error) {
			base, perr := url.Parse(normalizedURL)
			if perr != nil {
				return linksResult{}, apperrors.Internal(perr)
			}
			extracted, eerr := transform.ExtractLinks(body, base, opts)
			if eerr != nil {
				return linksResult{}, apperrors.Internal(eerr)
			}
			return linksResult{Links: extracted.Links, Filtered: extracted.Filtered, Truncated: extracted.Truncated}, nil
		},
	})
	if err != nil {
		return toolError(err)
	}

	links := make([]LinkOutput, 0, len(result.Data.Links))
	for _, l := range result.Data.Links {
		links = append(links, LinkOutput{URL: l.URL, Text: l.Text, Kind: l.Kind})
	}

	out := FetchLinksOutput{
		Links:     links,
		LinkCount: len(links),
		Filtered:  result.Data.Filtered,
		Truncated: result.Data.Truncated,
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d links", out.LinkCount)}}}, out, nil
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
