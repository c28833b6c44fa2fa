// Package clone deep-copies object graphs from one raw.Document into
// another, remapping references and breaking cycles.
package clone

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfforge/ir/raw"
)

// ErrMissingObject is returned when a reference names an object that is not
// in the source document.
var ErrMissingObject = errors.New("missing object")

// inheritable lists the page attributes a page may take from an ancestor
// Pages node.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// Copy copies the object src stores under id, and everything it references,
// into dst and returns the id the copy lives under.
//
// visited maps source ids to destination ids. An id already present is not
// copied again, so reusing one map across calls shares common objects and
// cycles terminate. On error, every object this call created is removed from
// dst and visited.
func Copy(dst, src *raw.Document, visited map[raw.ObjectRef]raw.ObjectRef, id raw.ObjectRef) (raw.ObjectRef, error) {
	c := &copier{dst: dst, src: src, visited: visited}
	ref, err := c.ref(id)
	if err != nil {
		c.rollback()
		return raw.ObjectRef{}, err
	}
	return ref, nil
}

type copier struct {
	dst, src *raw.Document
	visited  map[raw.ObjectRef]raw.ObjectRef
	created  []raw.ObjectRef
}

func (c *copier) ref(id raw.ObjectRef) (raw.ObjectRef, error) {
	if mapped, ok := c.visited[id]; ok {
		return mapped, nil
	}
	obj, ok := c.src.Objects[id]
	if !ok {
		return raw.ObjectRef{}, fmt.Errorf("%w: %s", ErrMissingObject, id)
	}
	// reserve before recursing so references back to id resolve to newRef
	newRef := c.reserve(id)
	out, err := c.object(obj)
	if err != nil {
		return raw.ObjectRef{}, err
	}
	c.dst.Set(newRef, out)
	return newRef, nil
}

func (c *copier) reserve(id raw.ObjectRef) raw.ObjectRef {
	newRef := c.dst.Alloc()
	c.visited[id] = newRef
	c.created = append(c.created, id)
	return newRef
}

func (c *copier) object(obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.RefObj:
		r, err := c.ref(v.R)
		if err != nil {
			return nil, err
		}
		return raw.Ref(r), nil
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, 0, len(v.Items))}
		for _, item := range v.Items {
			copied, err := c.object(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, copied)
		}
		return out, nil
	case *raw.DictObj:
		return c.dict(v)
	case *raw.StreamObj:
		d, err := c.dict(v.Dict)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(d, append([]byte(nil), v.Data...)), nil
	case raw.StringObj:
		return raw.StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}, nil
	case nil:
		return raw.NullObj{}, nil
	}
	return obj, nil
}

func (c *copier) dict(d *raw.DictObj) (*raw.DictObj, error) {
	out := raw.Dict()
	if d == nil {
		return out, nil
	}
	for _, k := range d.Keys() {
		copied, err := c.object(d.KV[k])
		if err != nil {
			return nil, err
		}
		out.Set(k, copied)
	}
	return out, nil
}

func (c *copier) rollback() {
	for _, id := range c.created {
		if ref, ok := c.visited[id]; ok {
			delete(c.dst.Objects, ref)
			delete(c.visited, id)
		}
	}
	c.created = nil
}

// Copier copies objects from one source document into a destination,
// sharing one visited map across calls so that objects common to several
// copies, such as fonts and images used by many pages, are copied once.
type Copier struct {
	dst, src *raw.Document
	visited  map[raw.ObjectRef]raw.ObjectRef
}

// NewCopier creates a Copier from src into dst.
func NewCopier(dst, src *raw.Document) *Copier {
	return &Copier{dst: dst, src: src, visited: make(map[raw.ObjectRef]raw.ObjectRef)}
}

// Len returns how many source objects have been copied so far.
func (c *Copier) Len() int { return len(c.visited) }

// CopyRef copies the object src stores under id.
func (c *Copier) CopyRef(id raw.ObjectRef) (raw.ObjectRef, error) {
	return Copy(c.dst, c.src, c.visited, id)
}

// Copy copies a direct object, translating every reference it holds.
func (c *Copier) Copy(obj raw.Object) (raw.Object, error) {
	cp := &copier{dst: c.dst, src: c.src, visited: c.visited}
	out, err := cp.object(obj)
	if err != nil {
		cp.rollback()
		return nil, err
	}
	return out, nil
}

// CopyPage copies the page src stores under page and attaches it to parent,
// a Pages node of the destination.
//
// Copying the same page again yields a new page object that shares every
// sub-resource with the earlier copy. Attributes the page inherits from its
// source ancestors are stored on the copy itself, and the source Parent chain
// is not copied.
func (c *Copier) CopyPage(page, parent raw.ObjectRef) (raw.ObjectRef, error) {
	obj, ok := c.src.Objects[page]
	if !ok {
		return raw.ObjectRef{}, fmt.Errorf("%w: page %s", ErrMissingObject, page)
	}
	pageDict := c.src.ResolveDict(obj)
	if pageDict == nil {
		return raw.ObjectRef{}, fmt.Errorf("page %s is a %s, not a dictionary", page, obj.Type())
	}

	flat := raw.Dict()
	for k, v := range pageDict.KV {
		flat.Set(k, v)
	}
	for k, v := range inheritedAttributes(c.src, pageDict) {
		if flat.Get(k) == nil {
			flat.Set(k, v)
		}
	}
	flat.Delete("Parent")

	delete(c.visited, page)
	cp := &copier{dst: c.dst, src: c.src, visited: c.visited}
	newRef := cp.reserve(page)
	out, err := cp.dict(flat)
	if err != nil {
		cp.rollback()
		return raw.ObjectRef{}, err
	}
	out.Set("Parent", raw.Ref(parent))
	c.dst.Set(newRef, out)
	return newRef, nil
}

// inheritedAttributes collects the inheritable attributes found on the
// ancestors of page, nearest ancestor first.
func inheritedAttributes(doc *raw.Document, page *raw.DictObj) map[string]raw.Object {
	found := make(map[string]raw.Object)
	seen := make(map[raw.ObjectRef]bool)
	parent, ok := page.Get("Parent").(raw.RefObj)
	for ok && !seen[parent.R] {
		seen[parent.R] = true
		node := doc.ResolveDict(parent)
		if node == nil {
			break
		}
		for _, k := range inheritable {
			if _, done := found[k]; done {
				continue
			}
			if v := node.Get(k); v != nil {
				found[k] = v
			}
		}
		parent, ok = node.Get("Parent").(raw.RefObj)
	}
	return found
}
