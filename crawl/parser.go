package crawl

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/aeo-scorer/backend/models"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

const (
	minAnswerWords = 5
	maxAnswerWords = 40
)

// page is everything extracted from one HTML document.
type page struct {
	URL             string
	Title           string
	MetaDescription string
	H1              []string
	Headings        []models.Heading
	SchemaTypes     []string
	Text            string
	Paragraphs      int
	Stats           textStats
	HasCanonical    bool
	HasOpenGraph    bool
	HasTwitterCard  bool
	MobileViewport  bool
	Links           []string // absolute, same host, fragment stripped
}

// parsePage extracts page content from an HTML document. pageURL resolves
// relative links.
func parsePage(r io.Reader, contentType, pageURL string) (*page, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	enc, _, _ := charset.DetermineEncoding(data, contentType)
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		if !utf8.Valid(data) {
			return nil, err
		}
		utf8data = data
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8data))
	if err != nil {
		return nil, err
	}

	p := &page{URL: pageURL}

	// JSON-LD lives in script tags, so read it before scripts are dropped.
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v interface{}
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			p.SchemaTypes = append(p.SchemaTypes, jsonLDTypes(v)...)
		}
	})
	doc.Find("[itemtype]").Each(func(_ int, s *goquery.Selection) {
		for _, t := range strings.Fields(s.AttrOr("itemtype", "")) {
			if name := schemaName(t); name != "" {
				p.SchemaTypes = append(p.SchemaTypes, name)
			}
		}
	})

	doc.Find("script,noscript,style").Remove()

	p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	p.MetaDescription = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	p.HasCanonical = strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", "")) != ""
	p.HasOpenGraph = doc.Find(`meta[property^="og:"]`).Length() > 0
	p.HasTwitterCard = doc.Find(`meta[name="twitter:card"]`).Length() > 0
	doc.Find(`meta[name="viewport"]`).Each(func(_ int, s *goquery.Selection) {
		if strings.Contains(strings.ToLower(s.AttrOr("content", "")), "width=device-width") {
			p.MobileViewport = true
		}
	})

	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if text == "" {
			return
		}
		level := int(goquery.NodeName(s)[1] - '0')
		if level == 1 {
			p.H1 = append(p.H1, text)
		}
		p.Headings = append(p.Headings, models.Heading{
			Level:           level,
			Text:            text,
			HasDirectAnswer: isDirectAnswer(s.NextFiltered("p").Text()),
		})
	})

	var parts []string
	doc.Find("p,li").Each(func(_ int, s *goquery.Selection) {
		t := cleanText(s.Text())
		if t == "" {
			return
		}
		if goquery.NodeName(s) == "p" {
			p.Paragraphs++
		}
		parts = append(parts, t)
	})
	p.Text = strings.Join(parts, " ")
	p.Stats = analyzeText(strings.Join(parts, ". "))

	p.Links = sameHostLinks(doc, pageURL)
	return p, nil
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// isDirectAnswer reports whether a paragraph opens with a short, complete answer.
func isDirectAnswer(paragraph string) bool {
	words := len(strings.Fields(firstSentence(cleanText(paragraph))))
	return words >= minAnswerWords && words <= maxAnswerWords
}

// jsonLDTypes collects @type values, descending into @graph and arrays.
func jsonLDTypes(v interface{}) []string {
	var out []string
	switch node := v.(type) {
	case []interface{}:
		for _, item := range node {
			out = append(out, jsonLDTypes(item)...)
		}
	case map[string]interface{}:
		switch t := node["@type"].(type) {
		case string:
			out = append(out, schemaName(t))
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, schemaName(s))
				}
			}
		}
		if graph, ok := node["@graph"]; ok {
			out = append(out, jsonLDTypes(graph)...)
		}
	}
	kept := out[:0]
	for _, t := range out {
		if t != "" {
			kept = append(kept, t)
		}
	}
	return kept
}

// schemaName strips a schema.org URL down to the type name.
func schemaName(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.LastIndexAny(t, "/#:"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

func sameHostLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := map[string]bool{pageKey(base): true}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		u.Fragment = ""
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www.")) {
			return
		}
		if isAsset(u.Path) {
			return
		}
		if key := pageKey(u); !seen[key] {
			seen[key] = true
			links = append(links, u.String())
		}
	})
	return links
}

// pageKey identifies a page regardless of case, www. prefix, trailing slash
// and fragment, so "/" and "" name the same landing page.
func pageKey(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func isAsset(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range []string{".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".pdf", ".zip", ".xml"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// normalizeWords lower-cases text and keeps only letters and digits,
// padded with spaces so whole-word matches can use strings.Contains.
func normalizeWords(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// containsKeyword reports whether any keyword appears in text as whole words.
func containsKeyword(text string, keywords []string) bool {
	norm := normalizeWords(text)
	for _, kw := range keywords {
		k := strings.TrimSpace(normalizeWords(kw))
		if k != "" && strings.Contains(norm, " "+k+" ") {
			return true
		}
	}
	return false
}

// keywordDensity is the share of words, in percent, taken by keyword terms.
func keywordDensity(text string, keywords []string) float64 {
	words := strings.Fields(normalizeWords(text))
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		terms := strings.Fields(normalizeWords(kw))
		if len(terms) == 0 {
			continue
		}
		for i := 0; i+len(terms) <= len(words); i++ {
			if slices.Equal(words[i:i+len(terms)], terms) {
				matched += len(terms)
				i += len(terms) - 1
			}
		}
	}
	return 100 * float64(matched) / float64(len(words))
}
