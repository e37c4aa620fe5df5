package extract

import (
	"strings"
	"unicode"

	"github.com/bryan-buckman/dealscout/internal/cleanup"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/shopspring/decimal"
)

type record struct {
	name     string
	price    decimal.Decimal
	hasPrice bool
}

func (r *record) complete() bool {
	return r != nil && r.name != "" && r.hasPrice
}

// parseReply reads numbered PRODUKT/PREIS pairs out of a model reply.
// A PRODUKT line starts a new record; a PREIS line prices the current one.
func parseReply(reply string) []model.ExtractedProduct {
	var records []record
	var cur *record
	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		switch {
		case strings.Contains(label, "PRODUKT"):
			if cur.complete() {
				records = append(records, *cur)
			}
			cur = &record{name: cleanup.DisplayName(value)}
		case strings.Contains(label, "PREIS"):
			if cur != nil {
				cur.price = parseModelPrice(value)
				cur.hasPrice = true
			}
		}
	}
	if cur.complete() {
		records = append(records, *cur)
	}

	products := make([]model.ExtractedProduct, 0, len(records))
	for _, r := range records {
		p := model.ExtractedProduct{Name: r.name, AskingPrice: r.price}
		if len(records) > 1 {
			p.BundleSize = len(records)
		}
		products = append(products, p)
	}
	return products
}

// parseLegacyReply handles the older single-pair reply without numbering
// and without a guaranteed PREIS line.
func parseLegacyReply(reply, title string) []model.ExtractedProduct {
	var name string
	var price decimal.Decimal
	var sawPrice bool
	for _, line := range strings.Split(reply, "\n") {
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		switch {
		case name == "" && strings.Contains(label, "PRODUKT"):
			name = cleanup.DisplayName(value)
		case !sawPrice && strings.Contains(label, "PREIS"):
			price = parseModelPrice(value)
			sawPrice = true
		}
	}
	if name == "" && !sawPrice {
		return nil
	}
	if name == "" {
		name = title
	}
	return []model.ExtractedProduct{{Name: name, AskingPrice: price}}
}

// splitLabel splits "PRODUKT 1: Foo" into an upper-cased label and a value.
func splitLabel(line string) (label, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.ToUpper(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

var currencyMarkers = strings.NewReplacer("€", "", "EUR", "", "eur", "", "Euro", "", "euro", "")

// parseModelPrice converts the model's price text to a decimal. Anything that
// does not survive the cleanup yields zero instead of an error.
func parseModelPrice(s string) decimal.Decimal {
	s = currencyMarkers.Replace(s)
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	// "1.299.00" came from "1.299,00": all but the last period are thousands separators.
	if n := strings.Count(s, "."); n > 1 {
		s = strings.Replace(s, ".", "", n-1)
	}
	s = strings.Trim(s, ".")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// physicalKeywords hint that an entry is about a tangible product even when
// the model returned no price. They match whole words only, so "ware" does
// not match "Software".
var physicalKeywords = map[string]struct{}{
	"kamera": {}, "laptop": {}, "notebook": {}, "smartphone": {}, "handy": {}, "kopfhörer": {}, "buch": {},
	"kleidung": {}, "möbel": {}, "spielzeug": {}, "konsole": {}, "monitor": {}, "tastatur": {}, "maus": {},
	"gerät": {}, "produkt": {}, "artikel": {}, "ware": {},
}

func mentionsPhysicalProduct(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := physicalKeywords[w]; ok {
			return true
		}
	}
	return false
}
