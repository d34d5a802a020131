package readable

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/tools/web_fetch/models"
)

const (
	userAgent   = "Mozilla/5.0 (compatible; researcher/1.0)"
	maxBodySize = 4 << 20
)

// Fetch downloads a page over plain HTTP and extracts its main text.
type Fetch struct {
	Timeout  time.Duration
	MaxChars int
	client   *http.Client
}

func New(timeout time.Duration, maxChars int) *Fetch {
	return &Fetch{Timeout: timeout, MaxChars: maxChars, client: &http.Client{Timeout: timeout}}
}

func (f *Fetch) Exec(ctx context.Context, link string) (models.Result, error) {
	if strings.TrimSpace(link) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	pageURL, err := url.Parse(link)
	if err != nil {
		return models.Result{}, fmt.Errorf("parse url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return models.Result{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return models.Result{URL: link, Status: 599, FetchMS: elapsedMS(t0)}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Result{URL: link, Status: resp.StatusCode, FetchMS: elapsedMS(t0)}, fmt.Errorf("fetch %s: status %d", link, resp.StatusCode)
	}
	html, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return models.Result{URL: link, Status: resp.StatusCode, FetchMS: elapsedMS(t0)}, err
	}

	article, err := readability.FromReader(bytes.NewReader(html), pageURL)
	if err != nil {
		return models.Result{URL: link, Status: resp.StatusCode, FetchMS: elapsedMS(t0)}, fmt.Errorf("readability: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	text = helpers.TruncateRunes(text, f.MaxChars)

	sum := sha1.Sum(html)
	return models.Result{
		URL:      link,
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: article.SiteName,
		Text:     text,
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   resp.StatusCode,
		FetchMS:  elapsedMS(t0),
	}, nil
}

func elapsedMS(t0 time.Time) int {
	return int(time.Since(t0) / time.Millisecond)
}
