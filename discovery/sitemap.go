package discovery

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// SitemapNamespace is the sitemaps.org schema namespace.
const SitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// xmlURLSet is the root element of a sitemap. Only elements in the
// sitemaps.org namespace are decoded.
type xmlURLSet struct {
	XMLName xml.Name `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 urlset"`
	URLs    []xmlURL `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 url"`
}

type xmlURL struct {
	Loc string `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 loc"`
}

// ParseSitemap returns the <url><loc> values of a sitemap in document order.
func ParseSitemap(r io.Reader) ([]string, error) {
	var urlset xmlURLSet
	if err := xml.NewDecoder(r).Decode(&urlset); err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	urls := make([]string, 0, len(urlset.URLs))
	for _, u := range urlset.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}
