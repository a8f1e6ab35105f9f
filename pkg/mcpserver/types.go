// Package mcpserver wires the Transform Pipeline and Content Cache into
// MCP tool and resource registrations (spec.md §4.7), following the
// register-tools/register-resources shape other_examples' go-sdk servers
// use (each HTTP session gets its own *mcp.Server sharing the process-wide
// config/cache/fetcher/worker-pool singletons via closures).
package mcpserver

import "time"

// FetchURLInput is fetch-url's tool input (spec.md §6).
type FetchURLInput struct {
	URL                string            `json:"url" jsonschema:"The absolute http(s) URL to fetch"`
	CustomHeaders      map[string]string `json:"customHeaders,omitempty" jsonschema:"Additional request headers"`
	Retries            int               `json:"retries,omitempty" jsonschema:"Retry attempts on transient failure"`
	Timeout            int               `json:"timeout,omitempty" jsonschema:"Request timeout in milliseconds"`
	ExtractMainContent *bool             `json:"extractMainContent,omitempty" jsonschema:"Run readability extraction before blocking (default true)"`
	IncludeMetadata    *bool             `json:"includeMetadata,omitempty" jsonschema:"Include a leading metadata block (default true)"`
	MaxContentLength   int64             `json:"maxContentLength,omitempty" jsonschema:"Maximum response size in bytes"`
}

// FetchURLOutput is fetch-url's structured result.
type FetchURLOutput struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	ContentBlocks int    `json:"contentBlocks"`
	FetchedAt     string `json:"fetchedAt"`
	Format        string `json:"format"`
	Content       string `json:"content,omitempty"`
	ResourceURI   string `json:"resourceUri,omitempty"`
	Cached        bool   `json:"cached"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// FetchMarkdownInput is fetch-markdown's tool input.
type FetchMarkdownInput struct {
	URL             string            `json:"url" jsonschema:"The absolute http(s) URL to fetch"`
	CustomHeaders   map[string]string `json:"customHeaders,omitempty"`
	Retries         int               `json:"retries,omitempty"`
	Timeout         int               `json:"timeout,omitempty"`
	IncludeMetadata *bool             `json:"includeMetadata,omitempty"`
}

// FetchFileInfo describes the downloadable artifact for a resource-backed
// markdown result.
type FetchFileInfo struct {
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
	ExpiresAt   string `json:"expiresAt"`
}

// FetchMarkdownOutput is fetch-markdown's structured result.
type FetchMarkdownOutput struct {
	URL             string         `json:"url"`
	Title           string         `json:"title,omitempty"`
	FetchedAt       string         `json:"fetchedAt"`
	Markdown        string         `json:"markdown,omitempty"`
	ResourceURI     string         `json:"resourceUri,omitempty"`
	ResourceMimeType string        `json:"resourceMimeType,omitempty"`
	Truncated       bool           `json:"truncated,omitempty"`
	Cached          bool           `json:"cached"`
	File            *FetchFileInfo `json:"file,omitempty"`
}

// FetchURLsInput is fetch-urls' batch tool input.
type FetchURLsInput struct {
	URLs            []string `json:"urls" jsonschema:"1 to 10 absolute http(s) URLs"`
	Concurrency     int      `json:"concurrency,omitempty" jsonschema:"Max simultaneous fetches, up to 5"`
	ContinueOnError *bool    `json:"continueOnError,omitempty" jsonschema:"Keep processing remaining URLs after a failure (default true)"`
	Format          string   `json:"format,omitempty" jsonschema:"jsonl or markdown (default jsonl)"`
}

// FetchURLsItemOutput is one element of fetch-urls' results array.
type FetchURLsItemOutput struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	Error       string `json:"error,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	ResourceURI string `json:"resourceUri,omitempty"`
	Cached      bool   `json:"cached,omitempty"`
}

// FetchURLsOutput is fetch-urls' structured result.
type FetchURLsOutput struct {
	Results   []FetchURLsItemOutput `json:"results"`
	Summary   BatchSummaryOutput    `json:"summary"`
	FetchedAt string                `json:"fetchedAt"`
}

// BatchSummaryOutput mirrors transform.BatchSummary for JSON shaping.
type BatchSummaryOutput struct {
	Total               int `json:"total"`
	Successful          int `json:"successful"`
	Failed              int `json:"failed"`
	Cached              int `json:"cached"`
	TotalContentBlocks  int `json:"totalContentBlocks"`
}

// FetchLinksInput is fetch-links' tool input.
type FetchLinksInput struct {
	URL             string `json:"url" jsonschema:"The absolute http(s) URL to extract links from"`
	IncludeInternal *bool  `json:"includeInternal,omitempty"`
	IncludeExternal *bool  `json:"includeExternal,omitempty"`
	IncludeImages   *bool  `json:"includeImages,omitempty"`
	MaxLinks        int    `json:"maxLinks,omitempty"`
	FilterPattern   string `json:"filterPattern,omitempty" jsonschema:"Regex filter, at most 200 chars"`
}

// FetchLinksOutput is fetch-links' structured result.
type FetchLinksOutput struct {
	Links     []LinkOutput `json:"links"`
	LinkCount int          `json:"linkCount"`
	Filtered  int          `json:"filtered"`
	Truncated bool         `json:"truncated"`
}

// LinkOutput mirrors transform.Link for JSON shaping.
type LinkOutput struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Kind string `json:"kind"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func durationMillis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
