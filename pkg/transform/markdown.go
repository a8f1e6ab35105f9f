package transform

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// strictSanitizePolicy strips all markup, used only as a last-resort
// fallback when goquery itself cannot parse the document.
var strictSanitizePolicy = bluemonday.StrictPolicy()

// MarkdownResult is a rendered Markdown document plus its title, as built
// by the fetch-markdown tool from ToMarkdown's output or a raw-text body.
type MarkdownResult struct {
	Markdown string
	Title    string
	Extracted bool // true if the readability path was used and accepted
}

var (
	frontmatterRe = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)
	atxHeadingRe  = regexp.MustCompile(`(?m)^#{1,6}\s`)
	listMarkerRe  = regexp.MustCompile(`(?m)^\s*([-*+])\s`)
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	htmlPrefixRe  = regexp.MustCompile(`(?i)^\s*(<!doctype|<html)`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// LooksLikeRawMarkdown implements the raw-text heuristic of spec.md §4.4: no
// <!doctype|<html> prefix, and either YAML frontmatter is present, or the
// body has at most two common HTML tags and shows markdown-like signals
// (ATX headings, list markers, or a paired fenced block).
func LooksLikeRawMarkdown(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return false
	}
	if htmlPrefixRe.MatchString(trimmed) {
		return false
	}
	if frontmatterRe.MatchString(trimmed) {
		return true
	}

	commonTags := tagRe.FindAllString(trimmed, -1)
	if len(commonTags) > 2 {
		return false
	}
	hasATX := atxHeadingRe.MatchString(trimmed)
	hasList := listMarkerRe.MatchString(trimmed)
	hasFenced := fencedCodeRe.MatchString(trimmed)
	return hasATX || hasList || hasFenced
}

// HintsRawText reports whether a URL path suggests raw text content (e.g.
// ".md"), independent of body sniffing.
func HintsRawText(normalizedURL string) bool {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range []string{".md", ".markdown", ".txt"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// InjectFrontmatterSource adds `source: "<url>"` to YAML frontmatter,
// creating one if absent and skipping if already present.
func InjectFrontmatterSource(body, sourceURL string) string {
	m := frontmatterRe.FindStringSubmatch(body)
	if m == nil {
		return "---\nsource: \"" + sourceURL + "\"\n---\n\n" + body
	}
	fm := m[0]
	inner := m[1]
	if strings.Contains(inner, "source:") {
		return body
	}
	newFm := strings.TrimSuffix(fm, "---\n")
	newFm = strings.TrimRight(newFm, "\n") + "\nsource: \"" + sourceURL + "\"\n---\n"
	return strings.Replace(body, fm, newFm, 1)
}

// FrontmatterTitle extracts title/name from YAML frontmatter, if present.
func FrontmatterTitle(body string) string {
	m := frontmatterRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		for _, key := range []string{"title:", "name:"} {
			if strings.HasPrefix(line, key) {
				v := strings.TrimSpace(strings.TrimPrefix(line, key))
				return strings.Trim(v, `"'`)
			}
		}
	}
	return ""
}

// strippedTagsLength approximates the "stripped tags" length used by the
// extraction quality gate: total text length with tags removed.
func strippedTagsLength(htmlContent string) int {
	return len([]rune(tagRe.ReplaceAllString(htmlContent, "")))
}

// ExtractArticle runs a readability-style extraction and applies the
// quality gate from spec.md §4.4: the article is accepted only if its text
// is at least 30% of the stripped-tags length of the original (or the
// original is under 100 chars, in which case extraction always wins).
func ExtractArticle(htmlContent string, pageURL *url.URL) (content, title string, accepted bool) {
	article, err := readability.FromReader(strings.NewReader(htmlContent), pageURL)
	if err != nil {
		return htmlContent, "", false
	}

	originalLen := strippedTagsLength(htmlContent)
	if originalLen < 100 {
		return article.Content, article.Title, true
	}

	extractedLen := len([]rune(article.TextContent))
	if float64(extractedLen) >= 0.3*float64(originalLen) {
		return article.Content, article.Title, true
	}
	return htmlContent, "", false
}

// ExtractMetadata builds a title/description/author metadata map from an
// HTML document's <meta> tags, preferring og: > twitter: > plain name.
func ExtractMetadata(htmlContent string) map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	meta := map[string]string{}
	pick := func(field string, candidates ...string) {
		for _, sel := range candidates {
			if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
				meta[field] = strings.TrimSpace(v)
				return
			}
		}
	}
	pick("title", "meta[property='og:title']", "meta[name='twitter:title']")
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		if _, ok := meta["title"]; !ok {
			meta["title"] = t
		}
	}
	pick("description", "meta[property='og:description']", "meta[name='twitter:description']", "meta[name='description']")
	pick("author", "meta[property='og:author']", "meta[name='twitter:creator']", "meta[name='author']")
	return meta
}

// ToMarkdown converts HTML content to Markdown prose, applying ATX
// headings, fenced code, `-` bullets, `_` italics and noise stripping, per
// spec.md §4.4. It is adapted from a hand-rolled node walker rather than a
// generic HTML-to-Markdown library since the quality-gate/extraction logic
// upstream of it is spec-specific.
func ToMarkdown(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		// Malformed beyond what goquery's tokenizer tolerates: fall back to
		// a strict strip-all-tags render rather than emitting raw markup.
		return strictSanitizePolicy.Sanitize(htmlContent)
	}
	stripNoise(doc.Selection)

	var b strings.Builder
	walkMarkdown(doc.Selection, &b, 0)

	result := b.String()
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(result)
}

func walkMarkdown(s *goquery.Selection, b *strings.Builder, listDepth int) {
	s.Contents().Each(func(_ int, sel *goquery.Selection) {
		node := sel.Get(0)

		if node.Type == html.TextNode {
			text := strings.TrimSpace(node.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
			return
		}
		if node.Type != html.ElementNode {
			return
		}

		switch node.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(node.Data[1] - '0')
			b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
			walkMarkdown(sel, b, listDepth)
			b.WriteString("\n\n")
		case "p":
			b.WriteString("\n\n")
			walkMarkdown(sel, b, listDepth)
			b.WriteString("\n\n")
		case "br":
			b.WriteString("\n")
		case "strong", "b":
			b.WriteString("**")
			walkMarkdown(sel, b, listDepth)
			b.WriteString("**")
		case "em", "i":
			b.WriteString("_")
			walkMarkdown(sel, b, listDepth)
			b.WriteString("_")
		case "code":
			b.WriteString("`")
			walkMarkdown(sel, b, listDepth)
			b.WriteString("`")
		case "pre":
			b.WriteString("\n\n```\n")
			b.WriteString(sel.Text())
			b.WriteString("\n```\n\n")
		case "a":
			href, exists := sel.Attr("href")
			if exists && href != "" {
				b.WriteString("[")
				walkMarkdown(sel, b, listDepth)
				b.WriteString("](" + href + ")")
			} else {
				walkMarkdown(sel, b, listDepth)
			}
		case "ul":
			b.WriteString("\n")
			walkMarkdown(sel, b, listDepth+1)
		case "ol":
			b.WriteString("\n")
			walkMarkdown(sel, b, listDepth+1)
		case "li":
			b.WriteString("\n" + strings.Repeat("  ", listDepth))
			if sel.Parent().Is("ol") {
				b.WriteString("1. ")
			} else {
				b.WriteString("- ")
			}
			walkMarkdown(sel, b, listDepth)
		case "blockquote":
			for _, line := range strings.Split(sel.Text(), "\n") {
				if strings.TrimSpace(line) != "" {
					b.WriteString("\n> " + strings.TrimSpace(line))
				}
			}
			b.WriteString("\n")
		case "hr":
			b.WriteString("\n\n---\n\n")
		case "img":
			alt, _ := sel.Attr("alt")
			src, exists := sel.Attr("src")
			if exists && src != "" {
				b.WriteString("![" + alt + "](" + src + ")")
			}
		default:
			walkMarkdown(sel, b, listDepth)
		}
	})
}
