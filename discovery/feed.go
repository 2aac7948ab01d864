package discovery

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
)

// ParseFeed returns the item links of an RSS or Atom feed in document order.
func ParseFeed(r io.Reader) ([]string, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if link := strings.TrimSpace(item.Link); link != "" {
			urls = append(urls, link)
		}
	}
	return urls, nil
}
