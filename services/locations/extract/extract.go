package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"wastemap-backend/lib/htmlutil"
	"wastemap-backend/services/locations/fetch"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/locations/extract")

// RawRecord is a single unvalidated location pulled out of markup.
// Everything is a string, missing fields are empty. The normalizer is
// the only place that turns these into typed values.
type RawRecord struct {
	PageURL    string `json:"page_url"`
	PageNumber int    `json:"page_number"`
	DetailURL  string `json:"detail_url"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Latitude   string `json:"latitude"`
	Longitude  string `json:"longitude"`
	Services   string `json:"services"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Hours      string `json:"hours"`
	ScrapedAt  string `json:"scrape_ts"`
}

// selectors are anchored to the site's semantic block classes rather
// than styling classes, so presentation-only changes don't break them
const (
	listingCardSelector    = "div.white-box"
	listingAddressSelector = "div.location-info__text"
	detailBoxSelector      = "div.location-box"
	infoBlockSelector      = "div.info-block"
	infoBlockTitleSelector = "div.info-block__title"
	infoBlockDescSelector  = "div.info-block__desc p"
)

// ParseError is a single-record extraction failure. The page
// continues, the record is skipped and counted.
type ParseError struct {
	PageURL string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse record on %s: %s", e.PageURL, e.Reason)
}

// Listing parses a paginated listing page into the cards it carries.
// A malformed card is skipped (returned in errs) without giving up on
// the rest of the page; zero records with no errors is a legal result.
func Listing(ctx context.Context, page fetch.SourcePage, pageNumber int) ([]RawRecord, []error) {
	_, span := tracer.Start(ctx, "Listing")
	defer span.End()
	span.SetAttributes(attribute.String("url", page.URL))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, []error{&ParseError{PageURL: page.URL, Reason: err.Error()}}
	}

	base, _ := url.Parse(page.URL)

	var records []RawRecord
	var errs []error
	doc.Find(listingCardSelector).Each(func(_ int, card *goquery.Selection) {
		anchor := card.Find("a").First()
		href := anchor.AttrOr("href", "")
		name := htmlutil.CleanText(card.Find("h2").First().Text())
		if name == "" {
			errs = append(errs, &ParseError{PageURL: page.URL, Reason: "card without a name"})
			return
		}
		if href == "" {
			errs = append(errs, &ParseError{PageURL: page.URL, Reason: fmt.Sprintf("card %q without a detail link", name)})
			return
		}

		address := htmlutil.CleanText(card.Find(listingAddressSelector).First().Text())
		address = strings.TrimSpace(strings.TrimPrefix(address, "Address:"))

		records = append(records, RawRecord{
			PageURL:    page.URL,
			PageNumber: pageNumber,
			DetailURL:  resolveHref(base, href),
			Name:       name,
			Address:    address,
			ScrapedAt:  page.FetchedAt.Format("2006-01-02 15:04:05"),
		})
	})

	return records, errs
}

var latLongPattern = regexp.MustCompile(`\?q=([^,&]+),([^&]+)`)

// Detail enriches a listing card with whatever the detail page has:
// coordinates from the map link, the offered services list, contact
// fields and opening hours. Fields the detail page omits keep the
// card's values, per the card-as-fallback behavior of the source.
func Detail(ctx context.Context, page fetch.SourcePage, card RawRecord) RawRecord {
	_, span := tracer.Start(ctx, "Detail")
	defer span.End()
	span.SetAttributes(attribute.String("url", page.URL))

	out := card
	out.ScrapedAt = page.FetchedAt.Format("2006-01-02 15:04:05")

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return out
	}
	box := doc.Find(detailBoxSelector).First()
	if box.Length() == 0 {
		return out
	}

	if name := htmlutil.CleanText(box.Find("h1").First().Text()); name != "" {
		out.Name = name
	}

	addressAnchor := box.Find(infoBlockSelector + ":first-of-type p a").First()
	if address := htmlutil.CleanText(addressAnchor.Text()); address != "" {
		out.Address = address
	}
	if mapHref := addressAnchor.AttrOr("href", ""); mapHref != "" {
		if groups := latLongPattern.FindStringSubmatch(mapHref); groups != nil {
			out.Latitude = groups[1]
			out.Longitude = groups[2]
		}
	}

	box.Find(infoBlockSelector).Each(func(_ int, block *goquery.Selection) {
		title := htmlutil.CleanText(block.Find(infoBlockTitleSelector).First().Text())
		desc := htmlutil.CleanText(block.Find(infoBlockDescSelector).First().Text())
		if desc == "" {
			return
		}
		switch {
		case strings.Contains(title, "Services"):
			out.Services = desc
		case strings.Contains(title, "Hours"):
			out.Hours = desc
		}
	})

	if phone := box.Find(`a[href^="tel:"]`).First().AttrOr("href", ""); phone != "" {
		out.Phone = htmlutil.CleanText(strings.TrimPrefix(phone, "tel:"))
	}
	if email := box.Find(`a[href^="mailto:"]`).First().AttrOr("href", ""); email != "" {
		out.Email = htmlutil.CleanText(strings.TrimPrefix(email, "mailto:"))
	}

	return out
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
