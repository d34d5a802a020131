package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true, "utm_term": true,
	"utm_content": true, "utm_id": true, "gclid": true, "dclid": true,
	"fbclid": true, "msclkid": true, "igshid": true,
}

// CanonicalURL normalises a link for comparison: lowercase scheme and host,
// no default port, no fragment, a cleaned path, tracking parameters dropped
// and the remaining query sorted. Schemeless input is treated as https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		if u, err = url.Parse("https://" + strings.TrimPrefix(raw, "//")); err != nil {
			return "", err
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("not a web url")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""

	p := path.Clean("/" + u.Path)
	if p != "/" && strings.HasSuffix(u.Path, "/") {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""

	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] {
			q.Del(key)
		}
	}
	for _, vals := range q {
		sort.Strings(vals)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Domain returns the lowercase host of a web link, or "".
func Domain(raw string) string {
	c, err := CanonicalURL(raw)
	if err != nil {
		return ""
	}
	u, _ := url.Parse(c)
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// DedupeCitations drops repeated citations, comparing links by their
// canonical form and other entries by trimmed text. The first spelling of
// each citation is kept, in order.
func DedupeCitations(citations []string) []string {
	out := make([]string, 0, len(citations))
	seen := make(map[string]bool, len(citations))
	for _, c := range citations {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := c
		if canonical, err := CanonicalURL(c); err == nil && strings.Contains(c, ".") {
			key = canonical
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
