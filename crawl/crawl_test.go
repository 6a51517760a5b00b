package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aeo-scorer/backend/models"
)

const homePage = `<!doctype html>
<html><head>
<title>Acme Running Shoes</title>
<meta name="description" content="Lightweight running shoes for every runner.">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta property="og:title" content="Acme">
<link rel="canonical" href="/">
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"Organization"},{"@type":["Product","Thing"]}]}</script>
<script>var ignored = "this text should not count";</script>
</head><body>
<h1>Running Shoes</h1>
<p>Acme makes lightweight running shoes for road runners. We ship worldwide.</p>
<h2>How long do running shoes last?</h2>
<p>Most running shoes last between five hundred and eight hundred kilometres of use.</p>
<h2>Contact</h2>
<p>Yes.</p>
<ul><li>Free returns on all orders</li></ul>
<a href="/about">About</a>
<a href="/about#team">Team</a>
<a href="https://other.example.org/x">External</a>
<a href="/logo.png">Logo</a>
<a href="mailto:hi@acme.test">Mail</a>
</body></html>`

const aboutPage = `<html><head><title>About Acme</title></head><body>
<div itemscope itemtype="https://schema.org/FAQPage"><h2>Who are we?</h2>
<p>We are a small team of runners building better shoes since 2010.</p></div>
<p>Our running shoes are tested on real roads.</p>
</body></html>`

func TestParsePage(t *testing.T) {
	p, err := parsePage(strings.NewReader(homePage), "text/html; charset=utf-8", "https://acme.test/")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	t.Run("Metadata", func(t *testing.T) {
		if p.Title != "Acme Running Shoes" {
			t.Errorf("Expected title, got %q", p.Title)
		}
		if !p.HasCanonical || !p.HasOpenGraph || !p.MobileViewport {
			t.Errorf("Expected canonical, og and viewport, got %+v", p)
		}
		if p.HasTwitterCard {
			t.Error("Expected no twitter card")
		}
	})

	t.Run("Schema", func(t *testing.T) {
		want := []string{"Organization", "Product", "Thing"}
		if fmt.Sprint(p.SchemaTypes) != fmt.Sprint(want) {
			t.Errorf("Expected %v, got %v", want, p.SchemaTypes)
		}
	})

	t.Run("Headings", func(t *testing.T) {
		if len(p.Headings) != 3 {
			t.Fatalf("Expected 3 headings, got %d", len(p.Headings))
		}
		if !p.Headings[0].HasDirectAnswer || !p.Headings[1].HasDirectAnswer {
			t.Errorf("Expected direct answers under first two headings: %+v", p.Headings)
		}
		if p.Headings[2].HasDirectAnswer {
			t.Error("One-word paragraph should not count as a direct answer")
		}
		if len(p.H1) != 1 || p.H1[0] != "Running Shoes" {
			t.Errorf("Expected one h1, got %v", p.H1)
		}
	})

	t.Run("Text", func(t *testing.T) {
		if strings.Contains(p.Text, "ignored") {
			t.Error("Script text leaked into content")
		}
		if p.Paragraphs != 3 {
			t.Errorf("Expected 3 paragraphs, got %d", p.Paragraphs)
		}
		if p.Stats.Words == 0 || p.Stats.Sentences == 0 {
			t.Errorf("Expected text stats, got %+v", p.Stats)
		}
	})

	t.Run("Links", func(t *testing.T) {
		if len(p.Links) != 1 || p.Links[0] != "https://acme.test/about" {
			t.Errorf("Expected only the about link, got %v", p.Links)
		}
	})
}

func TestKeywordMatching(t *testing.T) {
	keywords := []string{"running shoes"}
	if !containsKeyword("Acme Running-Shoes!", keywords) {
		t.Error("Expected phrase match across punctuation")
	}
	if containsKeyword("frontrunning shoes", keywords) {
		t.Error("Expected whole-word match only")
	}
	d := keywordDensity("running shoes are shoes for running", keywords)
	if math.Abs(d-100*2.0/6.0) > 1e-9 {
		t.Errorf("Expected density 33.3, got %v", d)
	}
	if d := keywordDensity("seo seo seo seo", []string{"seo"}); d != 100 {
		t.Errorf("Expected adjacent repeats to count, got %v", d)
	}
	if d := keywordDensity("running shoes running shoes", keywords); d != 100 {
		t.Errorf("Expected adjacent phrases to count, got %v", d)
	}
	if d := keywordDensity("a a a", []string{"a a"}); d > 100 {
		t.Errorf("Density must not exceed 100, got %v", d)
	}
	if keywordDensity("", keywords) != 0 {
		t.Error("Expected zero density for empty text")
	}
}

func TestReadability(t *testing.T) {
	st := analyzeText("The cat sat. The dog ran.")
	if st.Sentences != 2 || st.Words != 6 {
		t.Fatalf("Expected 2 sentences and 6 words, got %+v", st)
	}
	if st.AvgSentenceLength() != 3 {
		t.Errorf("Expected avg 3, got %v", st.AvgSentenceLength())
	}
	if r := st.Readability(); r != 100 {
		t.Errorf("Expected readability clamped to 100, got %v", r)
	}
	if (textStats{}).Readability() != 0 {
		t.Error("Expected zero readability for empty text")
	}
}

func TestCrawler(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(homePage))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(aboutPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewCrawler(5, 0, nil)
	data, err := c.Crawl(context.Background(), srv.URL, []string{"running shoes"})
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	if data.PagesAnalyzed != 2 {
		t.Errorf("Expected 2 pages, got %d", data.PagesAnalyzed)
	}
	if data.Title != "Acme Running Shoes" {
		t.Errorf("Expected landing page title, got %q", data.Title)
	}
	if !data.HasSchema("FAQPage") || !data.HasSchema("Organization") {
		t.Errorf("Expected schema from both pages, got %+v", data.SchemaMarkup)
	}
	if data.TechnicalSignals.HasHTTPS {
		t.Error("httptest server is plain http")
	}
	if !data.KeywordAnalysis.TitleContainsKeyword || !data.KeywordAnalysis.H1ContainsKeyword {
		t.Errorf("Expected keyword in title and h1, got %+v", data.KeywordAnalysis)
	}
	sum := 0
	for _, p := range data.Pages {
		sum += p.WordCount
	}
	if data.ContentStats.WordCount != sum {
		t.Errorf("Expected word count %d, got %d", sum, data.ContentStats.WordCount)
	}

	t.Run("SinglePage", func(t *testing.T) {
		data, err := NewCrawler(1, 0, nil).Crawl(context.Background(), srv.URL, nil)
		if err != nil {
			t.Fatalf("crawl: %v", err)
		}
		if data.PagesAnalyzed != 1 {
			t.Errorf("Expected 1 page, got %d", data.PagesAnalyzed)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := c.Crawl(context.Background(), srv.URL+"/missing", nil)
		if !errors.Is(err, ErrCrawlFailed) {
			t.Errorf("Expected ErrCrawlFailed, got %v", err)
		}
	})

	t.Run("BadURL", func(t *testing.T) {
		if _, err := c.Crawl(context.Background(), "ftp://acme.test", nil); !errors.Is(err, ErrCrawlFailed) {
			t.Errorf("Expected ErrCrawlFailed, got %v", err)
		}
	})
}

const selfLinkingHome = `<html><head><title>Acme</title></head><body>
<nav><a href="/">Home</a><a href="https://WWW.acme.test/#top">Top</a><a href="/about">About</a></nav>
<h1>What is Acme?</h1>
<p>Acme builds running shoes for road runners.</p>
</body></html>`

const plainAbout = `<html><head><title>About</title></head><body>
<h1>About us</h1>
<p>We are runners building better shoes.</p>
</body></html>`

func TestCrawlerSkipsLandingPageLinks(t *testing.T) {
	homeFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		homeFetches++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(selfLinkingHome))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(plainAbout))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	data, err := NewCrawler(5, 0, nil).Crawl(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if homeFetches != 1 {
		t.Errorf("Expected the landing page fetched once, got %d", homeFetches)
	}
	if data.PagesAnalyzed != 2 {
		t.Errorf("Expected 2 pages, got %d", data.PagesAnalyzed)
	}
	if data.ContentStats.WordCount != 13 {
		t.Errorf("Expected 13 words, got %d", data.ContentStats.WordCount)
	}
	questions := 0
	for _, h := range data.Headings {
		if strings.HasSuffix(h.Text, "?") {
			questions++
		}
	}
	if questions != 1 {
		t.Errorf("Expected one question heading, got %d in %+v", questions, data.Headings)
	}
}

func TestSameHostLinksSkipsSelf(t *testing.T) {
	p, err := parsePage(strings.NewReader(selfLinkingHome), "text/html", "https://acme.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Links) != 1 || p.Links[0] != "https://acme.test/about" {
		t.Errorf("Expected only the about link, got %v", p.Links)
	}
}

func TestWithoutPage(t *testing.T) {
	links := []string{"https://acme.test/", "https://www.acme.test", "https://acme.test/about", "https://acme.test/?page=2"}
	got := withoutPage(links, "https://acme.test")
	if len(got) != 2 || got[0] != "https://acme.test/about" || got[1] != "https://acme.test/?page=2" {
		t.Errorf("Unexpected links %v", got)
	}
}

type fakeInvoker struct {
	reply string
	err   error
	name  string
	body  interface{}
}

func (f *fakeInvoker) Invoke(_ context.Context, name string, body, out interface{}) error {
	f.name, f.body = name, body
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func TestRemoteClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		inv := &fakeInvoker{reply: `{"success":true,"data":{"url":"https://a.test","title":"A",
			"contentStats":{"wordCount":-4,"readabilityScore":140},
			"headings":[{"level":9,"text":"bad"},{"level":2,"text":" ok "}]}}`}
		data, err := NewRemoteClient(inv).Crawl(ctx, "https://a.test", nil)
		if err != nil {
			t.Fatalf("crawl: %v", err)
		}
		if inv.name != "crawl-website" {
			t.Errorf("Expected crawl-website, got %s", inv.name)
		}
		if req := inv.body.(crawlRequest); req.Keywords == nil {
			t.Error("Expected keywords to be sent as an empty list")
		}
		if data.ContentStats.WordCount != 0 || data.ContentStats.ReadabilityScore != 100 {
			t.Errorf("Expected clamped stats, got %+v", data.ContentStats)
		}
		if len(data.Headings) != 1 || data.Headings[0].Text != "ok" {
			t.Errorf("Expected one valid heading, got %+v", data.Headings)
		}
	})

	t.Run("ReportedFailure", func(t *testing.T) {
		inv := &fakeInvoker{reply: `{"success":false,"error":"blocked"}`}
		_, err := NewRemoteClient(inv).Crawl(ctx, "https://a.test", nil)
		if !errors.Is(err, ErrCrawlFailed) || !strings.Contains(err.Error(), "blocked") {
			t.Errorf("Expected ErrCrawlFailed with message, got %v", err)
		}
	})

	t.Run("MissingData", func(t *testing.T) {
		inv := &fakeInvoker{reply: `{"success":true}`}
		if _, err := NewRemoteClient(inv).Crawl(ctx, "https://a.test", nil); !errors.Is(err, models.ErrInvalidPayload) {
			t.Errorf("Expected ErrInvalidPayload, got %v", err)
		}
	})

	t.Run("TransportError", func(t *testing.T) {
		inv := &fakeInvoker{err: errors.New("dial")}
		if _, err := NewRemoteClient(inv).Crawl(ctx, "https://a.test", nil); !errors.Is(err, ErrCrawlFailed) {
			t.Errorf("Expected ErrCrawlFailed, got %v", err)
		}
	})
}
