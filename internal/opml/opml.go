// Package opml imports and exports deal source lists as OPML.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bryan-buckman/dealscout/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and returns its feeds in document order.
// Feeds inside folders are named "Folder/Title". Duplicate URLs are dropped.
func Parse(r io.Reader) ([]model.Source, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var sources []model.Source
	seen := make(map[string]bool)
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			switch {
			case o.XMLURL != "":
				u := strings.TrimSpace(o.XMLURL)
				if seen[u] {
					continue
				}
				seen[u] = true
				title := o.Title
				if title == "" {
					title = o.Text
				}
				if title == "" {
					title = u
				}
				sources = append(sources, model.Source{
					Name: strings.Join(append(append([]string{}, path...), title), "/"),
					URL:  u,
				})
			case len(o.Outlines) > 0:
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path, name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return sources, nil
}

// Export renders sources as a flat OPML 2.0 document.
func Export(title string, sources []model.Source, created time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: created.Format(time.RFC1123Z),
		},
	}
	for _, s := range sources {
		name := s.Name
		if name == "" {
			name = s.URL
		}
		doc.Body.Outlines = append(doc.Body.Outlines, Outline{
			Text:   name,
			Title:  name,
			Type:   "rss",
			XMLURL: s.URL,
		})
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
