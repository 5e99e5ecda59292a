package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxDescriptionLen caps the description pulled from a detail page.
const maxDescriptionLen = 500

// ParseDetailPage extracts a listing from a single listing detail page, used
// by the URL-import flows. Detail pages lay fields out differently from
// search cards, so selectors and fallbacks differ.
func ParseDetailPage(html, pageURL string) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := text(doc.Find("span.main-info__title-main").First())
	if title == "" {
		title = "Unknown"
	}

	price, priceValue := ParsePrice(text(doc.Find("span.info-data-price").First()))

	var rooms, size string
	doc.Find("div.info-features span").Each(func(_ int, s *goquery.Selection) {
		t := text(s)
		lower := strings.ToLower(t)
		switch {
		case rooms == "" && strings.Contains(lower, "hab"):
			rooms = t
		case size == "" && (strings.Contains(lower, "m²") || strings.Contains(lower, "m2")):
			size = t
		}
	})

	var floor string
	doc.Find("section.details-property li, section.details-property span").
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := text(s); strings.Contains(strings.ToLower(t), "planta") {
				floor = t
				return false
			}
			return true
		})

	description := text(doc.Find("div.comment").First())
	if runes := []rune(description); len(runes) > maxDescriptionLen {
		description = string(runes[:maxDescriptionLen])
	}

	thumbnail := doc.Find("img.image-focus").First().AttrOr("src", "")
	if thumbnail == "" {
		thumbnail = doc.Find(".detail-image-gallery img").First().AttrOr("src", "")
	}

	return &Listing{
		URL:         NormalizeURL(pageURL),
		Title:       title,
		Price:       price,
		PriceValue:  priceValue,
		Rooms:       rooms,
		Size:        size,
		Floor:       floor,
		Description: description,
		Thumbnail:   thumbnail,
	}, nil
}
