package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// Announcement is a publisher feed entry about a new release.
type Announcement struct {
	GUID        string
	Title       string
	Link        string
	PublishedAt *time.Time
}

// Watcher polls the publisher's RSS/Atom feed for new release announcements.
type Watcher struct {
	client       Getter
	gofeedParser *gofeed.Parser
	feedURL      string
	match        string

	mu     sync.Mutex
	seen   map[string]bool
	primed bool
}

func NewWatcher(client Getter, feedURL, match string) *Watcher {
	return &Watcher{
		client:       client,
		gofeedParser: gofeed.NewParser(),
		feedURL:      feedURL,
		match:        match,
		seen:         make(map[string]bool),
	}
}

// Poll returns matching entries not yet acknowledged. The first poll only
// records what is already published and returns nothing.
func (w *Watcher) Poll(ctx context.Context) ([]Announcement, error) {
	data, err := w.client.Get(ctx, w.feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := w.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var fresh []Announcement
	picked := make(map[string]bool)
	for _, item := range feed.Items {
		if item == nil || !strings.Contains(item.Title, w.match) {
			continue
		}

		id := cmp.Or(item.GUID, item.Link)
		if w.seen[id] || picked[id] {
			continue
		}

		if !w.primed {
			w.seen[id] = true
			continue
		}

		picked[id] = true
		fresh = append(fresh, Announcement{
			GUID:        id,
			Title:       item.Title,
			Link:        item.Link,
			PublishedAt: item.PublishedParsed,
		})
	}

	if !w.primed {
		slog.Debug("Release feed primed", "url", w.feedURL, "known", len(w.seen))
		w.primed = true
	}

	return fresh, nil
}

// Acknowledge marks announcements as handled; later polls skip them.
func (w *Watcher) Acknowledge(announcements []Announcement) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, a := range announcements {
		w.seen[a.GUID] = true
	}
}
