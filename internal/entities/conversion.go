package entities

import "strconv"

// PageSelector names the pages a conversion should produce: the whole
// document, or a single 1-based page.
type PageSelector struct {
	All  bool
	Page int
}

func AllPages() PageSelector { return PageSelector{All: true} }

func SinglePage(n int) PageSelector { return PageSelector{Page: n} }

func (s PageSelector) String() string {
	if s.All {
		return "all"
	}
	return strconv.Itoa(s.Page)
}

// ConversionRequest is the typed, validated form of one conversion
// call. It carries the upload by value; nothing here outlives the
// request that created it.
type ConversionRequest struct {
	Filename string
	Ext      string
	Data     []byte
	DPI      int
	Pages    PageSelector
}

// RasterPage is one rendered page image.
type RasterPage struct {
	Number int
	Width  int
	Height int
	PNG    []byte
}

// ConversionResult holds the produced pages in increasing page order.
type ConversionResult struct {
	Filename   string
	TotalPages int
	Pages      []RasterPage
}
