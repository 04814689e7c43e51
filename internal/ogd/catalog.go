package ogd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reDigitGroups = regexp.MustCompile(`\d+`)

// CatalogInfo is the metadata scraped from a resource's catalog page on
// data.gov.in. The catalog is where operators confirm they are syncing the
// dataset they think they are; the resource API itself carries none of this.
type CatalogInfo struct {
	Title       string
	Fields      map[string]string
	RecordCount int // 0 when the page does not state one
}

// FetchCatalog downloads and parses the catalog page at pageURL.
func FetchCatalog(ctx context.Context, httpc *http.Client, pageURL string) (CatalogInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return CatalogInfo{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return CatalogInfo{}, fmt.Errorf("fetch catalog %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CatalogInfo{}, fmt.Errorf("fetch catalog %s: status %d", pageURL, resp.StatusCode)
	}
	return ParseCatalog(resp.Body)
}

// ParseCatalog extracts dataset metadata from a catalog page.
//
// The page layout is a heading plus definition lists of label/value pairs.
// Labels vary between catalog revisions, so everything found is passed
// through in Fields; only the title and a record count get dedicated
// handling.
func ParseCatalog(r io.Reader) (CatalogInfo, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return CatalogInfo{}, fmt.Errorf("parse catalog html: %w", err)
	}

	info := CatalogInfo{Fields: map[string]string{}}

	info.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if info.Title == "" {
		info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dts := dl.Find("dt")
		dds := dl.Find("dd")
		dts.Each(func(i int, dt *goquery.Selection) {
			if i >= dds.Length() {
				return
			}
			label := strings.TrimSpace(dt.Text())
			value := strings.TrimSpace(dds.Eq(i).Text())
			if label == "" || value == "" {
				return
			}
			info.Fields[label] = value
		})
	})

	for label, value := range info.Fields {
		if strings.Contains(strings.ToLower(label), "record") {
			if n, ok := parseCount(value); ok {
				info.RecordCount = n
			}
		}
	}
	return info, nil
}

// parseCount extracts an integer from text like "2,000,000 records",
// joining digit groups across separators.
func parseCount(s string) (int, bool) {
	parts := reDigitGroups.FindAllString(s, -1)
	if len(parts) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.Join(parts, ""))
	if err != nil {
		return 0, false
	}
	return n, true
}
