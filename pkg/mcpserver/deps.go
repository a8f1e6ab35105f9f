package mcpserver

import (
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/config"
	"github.com/gomcpgo/superfetch/pkg/fetch"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

// Deps bundles the process-wide singletons every tool handler closes over.
// Each Streamable HTTP session gets its own *mcp.Server (per the SDK's
// per-session getServer callback convention) but all of them share these.
type Deps struct {
	Cfg   *config.Config
	Cache *cache.Cache
	Fetch *fetch.Fetcher
	Pool  *workerpool.Pool
}

// NewDeps constructs the shared dependency bundle directly, for callers
// (tests, the -test CLI mode) that want to invoke tool handlers without
// going through the Streamable HTTP transport.
func NewDeps(cfg *config.Config, c *cache.Cache, f *fetch.Fetcher, pool *workerpool.Pool) *Deps {
	return &Deps{Cfg: cfg, Cache: c, Fetch: f, Pool: pool}
}
