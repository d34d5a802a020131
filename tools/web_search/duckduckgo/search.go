package duckduckgo

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mohammad-safakhou/researcher/tools/web_search/models"
	"github.com/mohammad-safakhou/researcher/tools/web_search/transport"
)

// DefaultEndpoint is the JavaScript-free results page; it needs no API key.
const DefaultEndpoint = "https://lite.duckduckgo.com/lite/"

const userAgent = "Mozilla/5.0 (compatible; researcher/1.0)"

type Search struct {
	Endpoint string
	http     *transport.Client
}

func New(opts transport.Options) *Search {
	return &Search{Endpoint: DefaultEndpoint, http: transport.New(opts)}
}

func (s *Search) Name() string { return "duckduckgo" }

func (s *Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	form := url.Values{"q": {q}}
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"User-Agent":   userAgent,
	}
	body, err := s.http.Do(ctx, http.MethodPost, s.Endpoint, headers, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	return parseLite(body, k)
}

// parseLite pairs result links with their snippet cells in document order.
func parseLite(page []byte, k int) ([]models.Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var out []models.Result
	doc.Find("a.result-link").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		out = append(out, models.Result{
			Title: strings.TrimSpace(a.Text()),
			URL:   resolveRedirect(href),
		})
	})
	doc.Find("td.result-snippet").Each(func(i int, td *goquery.Selection) {
		if i < len(out) {
			out[i].Snippet = strings.Join(strings.Fields(td.Text()), " ")
		}
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// resolveRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
