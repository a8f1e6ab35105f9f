package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gomcpgo/superfetch/pkg/auth"
	"github.com/gomcpgo/superfetch/pkg/cache"
	"github.com/gomcpgo/superfetch/pkg/config"
	"github.com/gomcpgo/superfetch/pkg/fetch"
	"github.com/gomcpgo/superfetch/pkg/httpserver"
	"github.com/gomcpgo/superfetch/pkg/logging"
	"github.com/gomcpgo/superfetch/pkg/mcpserver"
	"github.com/gomcpgo/superfetch/pkg/session"
	"github.com/gomcpgo/superfetch/pkg/workerpool"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	testMode := flag.Bool("test", false, "Run a couple of sample fetch calls against the wired server and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	baseLogger := logging.New(cfg.LogLevel)
	defer baseLogger.Sync()
	ctx := logging.WithContext(context.Background(), baseLogger)

	c := cache.New(cfg.CacheEnabled, cfg.CacheTTL, cfg.DefaultMaxKeys)
	defer c.Close()

	fetcher := fetch.New(cfg.UserAgent, fetch.NewTelemetry())
	fetcher.Telemetry().Subscribe(func(ev fetch.Event) {
		baseLogger.Debugw("fetch event", "type", ev.Type, "url", ev.URL, "status", ev.Status, "code", ev.Code)
	})

	pool := workerpool.New(runtime.NumCPU())
	defer pool.Close()

	sessions := session.New(cfg.SessionMaxCount, cfg.SessionTTL, cfg.SessionInitTimeout)

	verifier := buildVerifier(cfg)

	mcpserver.ServerVersion = version
	httpserver.ServerVersion = version

	if *testMode {
		runTestMode(ctx, mcpserver.NewDeps(cfg, c, fetcher, pool))
		return
	}

	getServer := mcpserver.New(cfg, c, fetcher, pool)
	mcpHandler := mcp.NewStreamableHTTPHandler(getServer, nil)

	startedAt := time.Now()
	srv := httpserver.Build(cfg, mcpHandler, c, sessions, pool, verifier, startedAt)

	errCh := make(chan error, 1)
	go func() {
		baseLogger.Infow("superfetch listening", "host", cfg.Host, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		baseLogger.Fatalw("server error", "error", err)
	case sig := <-sigCh:
		baseLogger.Infow("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			baseLogger.Warnw("error during graceful shutdown", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		baseLogger.Warn("graceful shutdown timed out, forcing exit")
	}
}

func buildVerifier(cfg *config.Config) auth.Verifier {
	switch cfg.AuthMode {
	case config.AuthModeOAuth:
		return auth.NewOAuthVerifier(auth.OAuthConfig{
			IntrospectionURL: cfg.OAuth.IntrospectionURL,
			ClientID:         cfg.OAuth.ClientID,
			ClientSecret:     cfg.OAuth.ClientSecret,
			RequiredScopes:   cfg.OAuth.RequiredScopes,
			Timeout:          cfg.OAuth.IntrospectionTTL,
		})
	default:
		return auth.NewStaticVerifier(cfg.APIKey, cfg.AccessTokens)
	}
}

// runTestMode exercises fetch-markdown and fetch-url against a well-known
// URL directly against the tool handlers, without starting the HTTP
// listener or the Streamable HTTP transport. Mirrors the teacher's -test
// convenience flag.
func runTestMode(ctx context.Context, deps *mcpserver.Deps) {
	fmt.Println("superfetch - test mode")
	fmt.Println("=======================")

	const sampleURL = "https://example.com"

	fmt.Printf("\n== fetch-markdown: %s ==\n", sampleURL)
	printToolResult(deps.FetchMarkdown(ctx, nil, mcpserver.FetchMarkdownInput{URL: sampleURL}))

	fmt.Printf("\n== fetch-url: %s ==\n", sampleURL)
	printToolResult(deps.FetchURL(ctx, nil, mcpserver.FetchURLInput{URL: sampleURL}))
}

func printToolResult(result *mcp.CallToolResult, structured any, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if result != nil {
		for _, content := range result.Content {
			if tc, ok := content.(*mcp.TextContent); ok {
				fmt.Println(tc.Text)
			}
		}
	}
	if structured != nil {
		if b, err := json.MarshalIndent(structured, "", "  "); err == nil {
			fmt.Println(string(b))
		}
	}
}
