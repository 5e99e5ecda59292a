package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"flatbot/internal/model"
)

const notAvailable = "N/A"

// Listing is a single scraped search result, keyed by its canonical URL.
type Listing struct {
	URL         string
	Title       string
	Price       string
	PriceValue  float64
	Rooms       string
	Size        string
	Floor       string
	Description string
	Thumbnail   string
}

// Record maps a scrape result onto a CRM record. Stage and source are left
// for the caller to set.
func (l Listing) Record() model.Listing {
	return model.Listing{
		IdealistaURL: l.URL,
		Title:        l.Title,
		Price:        l.Price,
		PriceValue:   l.PriceValue,
		Rooms:        l.Rooms,
		Size:         l.Size,
		Floor:        l.Floor,
		Description:  l.Description,
		Thumbnail:    l.Thumbnail,
	}
}

// ParsePrice converts a display price like "1.234 €/mes" into a formatted
// string and its numeric value. Unparsable input comes back unchanged with a
// zero value; this never fails.
func ParsePrice(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return notAvailable, 0
	}

	clean := strings.ReplaceAll(text, "€", "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	// drop per-unit suffixes such as /mes
	if i := strings.Index(clean, "/"); i >= 0 {
		clean = clean[:i]
	}

	fields := strings.Fields(clean)
	if len(fields) == 0 {
		return text, 0
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || value < 0 {
		return text, 0
	}
	return formatPrice(value), value
}

// formatPrice renders a numeric price with space-grouped thousands, e.g.
// "1 234 €".
func formatPrice(v float64) string {
	digits := strconv.FormatFloat(v, 'f', 0, 64)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteString(" €")
	return b.String()
}

// ParseSearchPage extracts every listing card from a search results page.
// Fragments without a discoverable link are skipped; that is an expected
// "not a listing" case, not a failure.
func ParseSearchPage(html, pageURL string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)

	cards := doc.Find("article.item")
	if cards.Length() == 0 {
		cards = doc.Find("article")
	}

	var listings []Listing
	cards.Each(func(_ int, sel *goquery.Selection) {
		if l := parseCard(sel, base); l != nil {
			listings = append(listings, *l)
		}
	})
	return listings, nil
}

// parseCard extracts one listing from a search result card. Returns nil when
// the card has no item link.
func parseCard(sel *goquery.Selection, base *url.URL) *Listing {
	link := sel.Find("a.item-link").First()
	if link.Length() == 0 {
		return nil
	}
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if href == "" {
		return nil
	}
	if ref, err := url.Parse(href); err == nil && base != nil {
		href = base.ResolveReference(ref).String()
	}
	href = NormalizeURL(href)

	price, priceValue := ParsePrice(text(sel.Find("span.item-price").First()))

	// Detail spans are positional: rooms, size, floor, in that order.
	details := sel.Find("span.item-detail")

	desc := sel.Find("div.item-description").First()
	if desc.Length() == 0 {
		desc = sel.Find("div.description").First()
	}

	return &Listing{
		URL:         href,
		Title:       text(link),
		Price:       price,
		PriceValue:  priceValue,
		Rooms:       detailAt(details, 0),
		Size:        detailAt(details, 1),
		Floor:       detailAt(details, 2),
		Description: text(desc),
		Thumbnail:   cardThumbnail(sel),
	}
}

func detailAt(details *goquery.Selection, i int) string {
	if i >= details.Length() {
		return notAvailable
	}
	if t := text(details.Eq(i)); t != "" {
		return t
	}
	return notAvailable
}

// cardThumbnail prefers an eagerly-loaded src over the lazy-load attribute.
func cardThumbnail(sel *goquery.Selection) string {
	img := sel.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	if src := img.AttrOr("src", ""); src != "" {
		return src
	}
	return img.AttrOr("data-src", "")
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}
