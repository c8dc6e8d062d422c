package news

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>stock - Google News</title>
<item>
  <title>Microsoft shares surge after earnings beat</title>
  <link>https://example.com/a</link>
  <pubDate>Mon, 04 Mar 2024 09:30:00 GMT</pubDate>
  <description>&lt;a href="https://example.com/a"&gt;Microsoft shares surge&lt;/a&gt;&amp;nbsp;&amp;nbsp;Example News</description>
</item>
<item>
  <title>Analysts weigh cloud growth outlook</title>
  <link>https://example.com/b</link>
  <pubDate>Tue, 05 Mar 2024 14:00:00 +0100</pubDate>
  <description>Plain text summary</description>
</item>
<item>
  <title></title>
  <link>https://example.com/empty</link>
</item>
</channel></rss>`

func TestParseFeed(t *testing.T) {
	articles, err := ParseFeed("MSFT", feedFixture)
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("articles = %d, want 2 (empty title skipped)", len(articles))
	}

	first := articles[0]
	if first.Ticker != "MSFT" {
		t.Fatalf("ticker = %s, want MSFT", first.Ticker)
	}
	if first.Title != "Microsoft shares surge after earnings beat" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.Link != "https://example.com/a" {
		t.Fatalf("unexpected link %q", first.Link)
	}
	want := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	if !first.PublishedAt.Equal(want) {
		t.Fatalf("published = %v, want %v", first.PublishedAt, want)
	}
	if strings.Contains(first.Description, "<") {
		t.Fatalf("description still carries markup: %q", first.Description)
	}

	second := articles[1]
	wantZoned := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)
	if !second.PublishedAt.Equal(wantZoned) {
		t.Fatalf("zoned published = %v, want %v", second.PublishedAt, wantZoned)
	}
	if second.Description != "Plain text summary" {
		t.Fatalf("unexpected description %q", second.Description)
	}
}

func TestParseFeedCapsPerTicker(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<rss version="2.0"><channel>`)
	for i := 0; i < maxPerTicker+5; i++ {
		fmt.Fprintf(&b, "<item><title>Headline %d</title></item>", i)
	}
	b.WriteString(`</channel></rss>`)

	articles, err := ParseFeed("MSFT", b.String())
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if len(articles) != maxPerTicker {
		t.Fatalf("articles = %d, want cap of %d", len(articles), maxPerTicker)
	}
}

func TestParseFeedRejectsMalformedBody(t *testing.T) {
	if _, err := ParseFeed("MSFT", ""); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := ParseFeed("MSFT", "not xml at all"); err == nil {
		t.Fatalf("expected error for non-XML body")
	}
}

func TestCleanDescription(t *testing.T) {
	got := cleanDescription(`<a href="https://example.com">Shares rise</a> - Example News`)
	if got != "Shares rise - Example News" {
		t.Fatalf("cleanDescription = %q", got)
	}
	if cleanDescription("  ") != "" {
		t.Fatalf("whitespace-only description should clean to empty")
	}
}
