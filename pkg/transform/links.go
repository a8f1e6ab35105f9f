package transform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gomcpgo/superfetch/pkg/urlguard"
)

// Link is a single extracted anchor or image reference.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
	Kind string `json:"kind"` // internal|external|image
}

const maxFilterPatternLen = 200

// CompileFilterPattern validates a caller-supplied filter regex for length
// and backtracking risk before compiling it, per spec.md §4.4/§9 (ReDoS).
func CompileFilterPattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxFilterPatternLen {
		return nil, fmt.Errorf("filter pattern exceeds maximum length of %d characters", maxFilterPatternLen)
	}
	if err := checkReDoSRisk(pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter pattern: %w", err)
	}
	return re, nil
}

// checkReDoSRisk rejects patterns with nested quantifiers over
// alternation/groups, the classic catastrophic-backtracking shape. Go's
// RE2 engine (used by regexp) is itself immune to exponential blowup, but
// the check is kept so a user mistake is surfaced as a validation error
// rather than silently accepted and then behaving surprisingly under a
// future engine swap.
func checkReDoSRisk(pattern string) error {
	nestedQuantifier := regexp.MustCompile(`\([^)]*[+*][^)]*\)[+*]`)
	if nestedQuantifier.MatchString(pattern) {
		return fmt.Errorf("filter pattern rejected: nested quantifiers are not allowed")
	}
	return nil
}

// ExtractLinksOptions configures ExtractLinks.
type ExtractLinksOptions struct {
	IncludeInternal bool
	IncludeExternal bool
	IncludeImages   bool
	MaxLinks        int
	Filter          *regexp.Regexp
}

// ExtractLinksResult is the outcome of ExtractLinks.
type ExtractLinksResult struct {
	Links     []Link
	Filtered  int // count removed by the filter pattern
	Truncated bool
}

// ExtractLinks parses anchors and images out of htmlContent, resolves them
// against base, classifies, deduplicates, and applies filtering/truncation
// per spec.md §4.4.
func ExtractLinks(htmlContent string, base *url.URL, opts ExtractLinksOptions) (ExtractLinksResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ExtractLinksResult{}, err
	}

	seen := map[string]bool{}
	var links []Link
	filtered := 0

	addLink := func(raw, text, kind string) {
		resolved, err := resolveAgainst(base, raw)
		if err != nil || resolved == "" {
			return
		}
		if seen[resolved] {
			return
		}
		if opts.Filter != nil && !opts.Filter.MatchString(resolved) {
			filtered++
			return
		}
		seen[resolved] = true
		links = append(links, Link{URL: resolved, Text: strings.TrimSpace(text), Kind: kind})
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		kind := classifyLink(base, href)
		if kind == "internal" && !opts.IncludeInternal {
			return
		}
		if kind == "external" && !opts.IncludeExternal {
			return
		}
		addLink(href, s.Text(), kind)
	})

	if opts.IncludeImages {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			if src == "" {
				return
			}
			alt, _ := s.Attr("alt")
			addLink(src, alt, "image")
		})
	}

	truncated := false
	if opts.MaxLinks > 0 && len(links) > opts.MaxLinks {
		links = links[:opts.MaxLinks]
		truncated = true
	}

	return ExtractLinksResult{Links: links, Filtered: filtered, Truncated: truncated}, nil
}

func resolveAgainst(base *url.URL, raw string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func classifyLink(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return "external"
	}
	resolved := base.ResolveReference(ref)
	if urlguard.IsInternalURL(resolved, base) {
		return "internal"
	}
	return "external"
}
