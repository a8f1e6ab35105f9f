package transform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements stripped before any extraction, per
// spec.md §4.4 ("strip noise: SVGs, scripts, styles, explicit hidden
// elements, typical cookie banners").
const noiseSelector = "script, style, noscript, svg, template, [hidden], [aria-hidden='true']"

func stripNoise(doc *goquery.Selection) {
	doc.Find(noiseSelector).Remove()
	doc.Find("dialog").Each(func(_ int, s *goquery.Selection) {
		if len(strings.TrimSpace(s.Text())) < 500 {
			s.Remove()
		}
	})
}

// ParseContentBlocks walks HTML top-to-bottom emitting one Block per
// structural element, matching the tagged-union vocabulary in spec.md §3.
func ParseContentBlocks(htmlContent string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	stripNoise(doc.Selection)

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var blocks []Block
	walkBlocks(body, &blocks)
	return blocks, nil
}

func walkBlocks(sel *goquery.Selection, out *[]Block) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Type != html.ElementNode {
			return
		}
		switch node.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			level := int(node.Data[1] - '0')
			*out = append(*out, Block{Type: BlockHeading, Level: level, Text: text})
		case "p":
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			*out = append(*out, Block{Type: BlockParagraph, Text: text})
		case "ul", "ol":
			items := []string{}
			s.Find("li").Each(func(_ int, li *goquery.Selection) {
				t := strings.TrimSpace(li.Text())
				if t != "" {
					items = append(items, t)
				}
			})
			if len(items) > 0 {
				*out = append(*out, Block{Type: BlockList, Ordered: node.Data == "ol", Items: items})
			}
		case "pre":
			lang := ""
			s.Find("code").EachWithBreak(func(_ int, code *goquery.Selection) bool {
				for _, c := range codeClasses(code) {
					if strings.HasPrefix(c, "language-") {
						lang = strings.TrimPrefix(c, "language-")
						return false
					}
				}
				return true
			})
			text := s.Text()
			*out = append(*out, Block{Type: BlockCode, Language: lang, Text: text})
		case "table":
			headers := []string{}
			s.Find("thead th").Each(func(_ int, th *goquery.Selection) {
				headers = append(headers, strings.TrimSpace(th.Text()))
			})
			var rows [][]string
			s.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
				var row []string
				tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
					row = append(row, strings.TrimSpace(td.Text()))
				})
				if len(row) > 0 {
					rows = append(rows, row)
				}
			})
			*out = append(*out, Block{Type: BlockTable, Headers: headers, Rows: rows})
		case "blockquote":
			text := strings.TrimSpace(s.Text())
			if text != "" {
				*out = append(*out, Block{Type: BlockBlockquote, Text: text})
			}
		case "img":
			src, _ := s.Attr("src")
			if src == "" {
				return
			}
			alt, _ := s.Attr("alt")
			*out = append(*out, Block{Type: BlockImage, Src: src, Alt: alt})
		case "div", "section", "article", "main", "header", "footer", "body":
			walkBlocks(s, out)
		default:
			walkBlocks(s, out)
		}
	})
}

func codeClasses(s *goquery.Selection) []string {
	class, _ := s.Attr("class")
	if class == "" {
		return nil
	}
	return strings.Fields(class)
}
