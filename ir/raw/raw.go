// Package raw is the typed object model of a PDF file: indirect objects
// addressed by ObjectRef, held in a Document's object table together with the
// trailer dictionary.
package raw

import (
	"errors"
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object within one Document.
// Two documents may reuse the same numbers independently.
type ObjectRef struct {
	Num uint32
	Gen uint16
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

var (
	// ErrNoRoot is returned when the trailer has no usable Root catalog.
	ErrNoRoot = errors.New("document has no root catalog")
	// ErrNoPageTree is returned when the catalog has no Pages dictionary.
	ErrNoPageTree = errors.New("catalog has no page tree")
)

// maxRefChain bounds how many reference hops Resolve follows.
const maxRefChain = 32

// Document is the root container for raw PDF objects.
//
// Every reference inside a live object must resolve to a key of Objects;
// writer.Validate rejects documents that break this.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g., "1.7"

	next uint32
}

// NewDocument returns an empty document with an empty trailer.
func NewDocument(version string) *Document {
	if version == "" {
		version = "1.7"
	}
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: version,
	}
}

// MaxObjNum returns the highest object number in the table.
func (d *Document) MaxObjNum() uint32 {
	var max uint32
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Alloc reserves a fresh object id. The id is backed by a NullObj placeholder
// until Set stores the real object, so references to it never dangle.
func (d *Document) Alloc() ObjectRef {
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	if d.next == 0 {
		d.next = d.MaxObjNum() + 1
	}
	for {
		ref := ObjectRef{Num: d.next}
		d.next++
		if _, taken := d.Objects[ref]; !taken {
			d.Objects[ref] = NullObj{}
			return ref
		}
	}
}

// Add stores obj under a freshly allocated id.
func (d *Document) Add(obj Object) ObjectRef {
	ref := d.Alloc()
	d.Objects[ref] = obj
	return ref
}

// Set stores obj under ref, replacing any placeholder.
func (d *Document) Set(ref ObjectRef, obj Object) {
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	d.Objects[ref] = obj
	if ref.Num >= d.next && d.next != 0 {
		d.next = ref.Num + 1
	}
}

// Get returns the object stored under ref.
func (d *Document) Get(ref ObjectRef) (Object, bool) {
	obj, ok := d.Objects[ref]
	return obj, ok
}

// Resolve follows references until it reaches a direct object. Missing
// targets and overly long chains resolve to nil.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < maxRefChain; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return nil
		}
		obj = next
	}
	return nil
}

// ResolveDict resolves obj and returns it as a dictionary. A stream resolves
// to its dictionary.
func (d *Document) ResolveDict(obj Object) *DictObj {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

// Refs returns every id of the object table in ascending order.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// Root returns the catalog dictionary named by the trailer.
func (d *Document) Root() (*DictObj, error) {
	if d.Trailer == nil {
		return nil, ErrNoRoot
	}
	root := d.ResolveDict(d.Trailer.Get("Root"))
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// Pages returns the page objects in document order by walking the page tree
// depth first. Nodes already visited are skipped, so a cyclic Kids structure
// terminates.
func (d *Document) Pages() ([]ObjectRef, error) {
	root, err := d.Root()
	if err != nil {
		return nil, err
	}
	top, ok := root.Get("Pages").(RefObj)
	if !ok {
		return nil, ErrNoPageTree
	}
	var pages []ObjectRef
	seen := make(map[ObjectRef]bool)
	var walk func(ref ObjectRef)
	walk = func(ref ObjectRef) {
		if seen[ref] {
			return
		}
		seen[ref] = true
		node := d.ResolveDict(RefObj{R: ref})
		if node == nil {
			return
		}
		kids, hasKids := d.Resolve(node.Get("Kids")).(*ArrayObj)
		if node.Name("Type") == "Page" || (!hasKids && node.Name("Type") != "Pages") {
			pages = append(pages, ref)
			return
		}
		if !hasKids {
			return
		}
		for _, kid := range kids.Items {
			if r, ok := kid.(RefObj); ok {
				walk(r.R)
			}
		}
	}
	walk(top.R)
	return pages, nil
}

// PageCount returns the number of pages reachable from the catalog.
func (d *Document) PageCount() int {
	pages, err := d.Pages()
	if err != nil {
		return 0
	}
	return len(pages)
}

// Encrypted reports whether the trailer carries an Encrypt entry.
func (d *Document) Encrypted() bool {
	return d.Trailer != nil && d.Trailer.Get("Encrypt") != nil
}
