package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/cache"
)

const cacheResourceURITemplate = "superfetch://cache/{namespace}/{urlHash}"

var resourceURIRe = regexp.MustCompile(`^superfetch://cache/([^/]+)/([a-f0-9.]{8,64})$`)

// registerResources wires the superfetch://cache/{namespace}/{urlHash}
// resource template (spec.md §4.7): registration for discovery, a read
// handler that parses and validates URI parameters, and a cache-update
// relay that forwards notifications/resources/updated while the session
// is alive, composing rather than replacing any prior close handler per
// the "cyclic resource observer" design note.
func (d *Deps) registerResources(server *mcp.Server) func() {
	server.AddResourceTemplate(
		&mcp.ResourceTemplate{
			URITemplate: cacheResourceURITemplate,
			Name:        "cached-fetch-result",
			Description: "A previously fetched and transformed page, addressable by namespace and URL hash.",
			MIMEType:    "text/markdown",
		},
		d.readCacheResource,
	)

	unsubscribe := d.Cache.OnCacheUpdate(func(ev cache.UpdateEvent) {
		if ev.Namespace != "markdown" {
			return
		}
		uri := fmt.Sprintf("superfetch://cache/%s/%s", ev.Namespace, ev.URLHash)
		_ = server.ResourceUpdated(context.Background(), &mcp.ResourceUpdatedNotificationParams{URI: uri})
	})

	return unsubscribe
}

func (d *Deps) readCacheResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	m := resourceURIRe.FindStringSubmatch(req.Params.URI)
	if m == nil {
		return nil, apperrors.Validation("malformed cache resource URI: " + req.Params.URI)
	}
	namespace, hash := m[1], m[2]
	if namespace != "markdown" {
		return nil, apperrors.Validation("unsupported resource namespace: " + namespace)
	}

	entry, ok := d.Cache.Get(namespace + ":" + hash)
	if !ok {
		return nil, apperrors.New(apperrors.KindFetch, 404, "ENOTFOUND", "cache entry not found: "+req.Params.URI)
	}

	var wrapper markdownCacheWrapper
	if err := json.Unmarshal([]byte(entry.Content), &wrapper); err != nil {
		return nil, apperrors.Internal(err)
	}

	text := wrapper.Markdown
	if text == "" {
		text = strings.TrimSpace(entry.Content)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}
