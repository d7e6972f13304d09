package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/ae-comb/app/period"
)

// Locator walks the per fiscal year index pages and collects release links
// for the requested months.
type Locator struct {
	client Getter
	cfg    *Config
}

func NewLocator(client Getter, cfg *Config) *Locator {
	return &Locator{client: client, cfg: cfg}
}

// Locate visits index pages in fiscal year order. A failing page is recorded
// in the report and skipped. Links keep their on-page order; a URL seen twice
// is returned once.
func (l *Locator) Locate(ctx context.Context, r period.Range, report *Report) ([]Link, error) {
	var links []Link
	seen := make(map[string]bool)

	for _, fy := range r.FiscalYears() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		indexURL := l.cfg.IndexURLFor(fy)
		slog.Info("Accessing index page", "fiscal_year", fy.Label(), "url", indexURL)

		found, err := l.scanIndex(ctx, indexURL, fy, r, report)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrIndexFetch, err)
			slog.Warn("Failed to access index page", "fiscal_year", fy.Label(), "url", indexURL, "error", err)
			report.Add(Outcome{Stage: StageIndex, URL: indexURL, Err: err})
			continue
		}
		report.Add(Outcome{Stage: StageIndex, URL: indexURL})

		for _, link := range found {
			if seen[link.URL] {
				slog.Debug("Duplicate release link, skipping", "url", link.URL)
				continue
			}
			seen[link.URL] = true
			links = append(links, link)
		}
	}

	return links, nil
}

func (l *Locator) scanIndex(ctx context.Context, indexURL string, fy period.FiscalYear, r period.Range, report *Report) ([]Link, error) {
	body, err := l.client.Get(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(indexURL)
	if err != nil {
		return nil, fmt.Errorf("invalid index URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page: %w", err)
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		text := normalizeText(s.Text())
		if !IsReleaseLink(text, l.cfg.LinkMarker, l.cfg.FormatMarker) {
			return
		}

		href, _ := s.Attr("href")
		target, err := resolve(base, href)
		if err != nil {
			slog.Warn("Skipping link with invalid address", "text", text, "href", href, "error", err)
			report.Add(Outcome{Stage: StageLink, URL: href, Err: fmt.Errorf("%w: %w", ErrLinkParse, err)})
			return
		}

		month, ok := ParseLinkText(text)
		if !ok {
			slog.Warn("Skipping link without month and year", "text", text, "url", target)
			report.Add(Outcome{Stage: StageLink, URL: target, Err: fmt.Errorf("%w: %q", ErrLinkParse, text)})
			return
		}

		if !r.Contains(month) {
			slog.Debug("Release outside requested range", "month", month.String(), "url", target)
			return
		}

		report.Add(Outcome{Stage: StageLink, URL: target, Month: month})
		links = append(links, Link{Text: text, URL: target, Month: month, FiscalYear: fy})
	})

	return links, nil
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
