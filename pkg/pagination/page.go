package pagination

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

// Info is the pagination block of a page.
type Info struct {
	Count int     `json:"count"`
	Pages int     `json:"pages"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
}

// Page is one decoded HTTP response before its results are typed.
type Page struct {
	Info    Info              `json:"info"`
	Results []json.RawMessage `json:"results"`
}

// NextCursor returns the next page URL, or "" when the page is the last.
func (p Page) NextCursor() string {
	if p.Info.Next == nil {
		return ""
	}
	return strings.TrimSpace(*p.Info.Next)
}

// RequestURL builds the cursor for page n of a kind's endpoint.
func RequestURL(base string, kind record.Kind, page int) string {
	return strings.TrimRight(base, "/") + "/" + kind.String() + "/?page=" + strconv.Itoa(page)
}

// ParsePage decodes a page body. Both info and results must be present.
func ParsePage(body []byte) (Page, error) {
	var raw struct {
		Info    *Info              `json:"info"`
		Results *[]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	if raw.Info == nil {
		return Page{}, fmt.Errorf("page has no info block")
	}
	if raw.Results == nil {
		return Page{}, fmt.Errorf("page has no results")
	}

	return Page{Info: *raw.Info, Results: *raw.Results}, nil
}

// Decode types the page results as records of kind.
func (p Page) Decode(kind record.Kind) ([]record.Record, error) {
	return record.Decode(kind, p.Results)
}
