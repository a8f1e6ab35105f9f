package mcpserver

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/config"
	"github.com/gomcpgo/superfetch/pkg/fetch"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

// toolAnnotations is the fixed annotation set spec.md §4.7 assigns every
// registered tool: read-only, non-destructive, idempotent, open-world.
var toolAnnotations = &mcp.ToolAnnotations{
	ReadOnlyHint:    true,
	DestructiveHint: boolPtr(false),
	IdempotentHint:  true,
	OpenWorldHint:   true,
}

func boolPtr(b bool) *bool { return &b }

// New builds the getServer callback the Streamable HTTP transport calls
// once per session, registering all four tools and the cache resource
// template against the shared singletons in deps.
func New(cfg *config.Config, c *cache.Cache, f *fetch.Fetcher, pool *workerpool.Pool) func(*http.Request) *mcp.Server {
	deps := NewDeps(cfg, c, f, pool)

	return func(_ *http.Request) *mcp.Server {
		server := mcp.NewServer(&mcp.Implementation{
			Name:    "superfetch",
			Version: ServerVersion,
		}, &mcp.ServerOptions{
			Instructions: "Fetch web pages and transform them into AI-readable JSONL content blocks or Markdown, with caching and link extraction.",
		})

		mcp.AddTool(server, &mcp.Tool{
			Name:        "fetch-url",
			Description: "Fetch a URL and return its content as structured JSONL content blocks.",
			Annotations: toolAnnotations,
		}, deps.FetchURL)

		mcp.AddTool(server, &mcp.Tool{
			Name:        "fetch-markdown",
			Description: "Fetch a URL and convert its main content to Markdown.",
			Annotations: toolAnnotations,
		}, deps.FetchMarkdown)

		mcp.AddTool(server, &mcp.Tool{
			Name:        "fetch-urls",
			Description: "Fetch up to 10 URLs concurrently and return per-URL results plus a summary.",
			Annotations: toolAnnotations,
		}, deps.FetchURLs)

		mcp.AddTool(server, &mcp.Tool{
			Name:        "fetch-links",
			Description: "Fetch a URL and extract its internal/external/image links.",
			Annotations: toolAnnotations,
		}, deps.FetchLinks)

		deps.registerResources(server)

		return server
	}
}

// ServerVersion is set at build time; defaulted here for dev builds.
var ServerVersion = "dev"
