// Package extractor pulls embedded assets out of a loaded PDF document.
package extractor

import (
	"errors"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
)

// ErrEncrypted is returned for documents that still carry an Encrypt entry.
var ErrEncrypted = errors.New("document is encrypted")

// Extractor walks the pages of one document.
type Extractor struct {
	doc    *raw.Document
	pages  []raw.ObjectRef
	limits filters.Limits
}

// New creates an extractor over doc. The document must be decrypted.
func New(doc *raw.Document) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if doc.Encrypted() {
		return nil, ErrEncrypted
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, err
	}
	return &Extractor{doc: doc, pages: pages, limits: filters.DefaultLimits()}, nil
}

// PageCount returns the number of pages found in the page tree.
func (e *Extractor) PageCount() int { return len(e.pages) }

// resources returns the Resources dictionary of page, looking through the
// Parent chain when the page inherits it.
func (e *Extractor) resources(page *raw.DictObj) *raw.DictObj {
	seen := make(map[*raw.DictObj]bool)
	for node := page; node != nil && !seen[node]; node = e.doc.ResolveDict(node.Get("Parent")) {
		seen[node] = true
		if res := e.doc.ResolveDict(node.Get("Resources")); res != nil {
			return res
		}
	}
	return nil
}

func intValue(doc *raw.Document, dict *raw.DictObj, key string) int {
	if n, ok := doc.Resolve(dict.Get(key)).(raw.NumberObj); ok {
		return int(n.Int())
	}
	return 0
}

// colorSpaceName reduces a colour space entry to the family name, so that
// [/ICCBased 5 0 R] reports ICCBased and [/Indexed ...] reports Indexed.
func colorSpaceName(doc *raw.Document, obj raw.Object) string {
	switch v := doc.Resolve(obj).(type) {
	case raw.NameObj:
		return v.Val
	case *raw.ArrayObj:
		if len(v.Items) > 0 {
			if n, ok := doc.Resolve(v.Items[0]).(raw.NameObj); ok {
				return n.Val
			}
		}
	}
	return ""
}

// iccComponents returns N of an ICCBased colour space, or 0.
func iccComponents(doc *raw.Document, obj raw.Object) int {
	arr, ok := doc.Resolve(obj).(*raw.ArrayObj)
	if !ok || len(arr.Items) < 2 {
		return 0
	}
	if name, _ := doc.Resolve(arr.Items[0]).(raw.NameObj); name.Val != "ICCBased" {
		return 0
	}
	stream := doc.ResolveDict(arr.Items[1])
	if stream == nil {
		return 0
	}
	return intValue(doc, stream, "N")
}
