package optimize

import (
	"github.com/wudi/pdfforge/ir/raw"
)

// structural object types that must keep their identity
var keepIdentity = map[string]bool{"Page": true, "Pages": true, "Catalog": true}

// combineObjects merges identical objects into the one with the lowest id
// and rewrites references. It repeats until nothing changes, since merging
// can make referring objects identical in turn.
func (o *Optimizer) combineObjects(doc *raw.Document, includeOthers bool) int {
	merged := 0
	changed := true
	for changed {
		changed = false
		seen := make(map[digest]raw.ObjectRef)
		replacements := make(map[raw.ObjectRef]raw.ObjectRef)

		for _, ref := range doc.Refs() {
			obj := doc.Objects[ref]
			switch v := obj.(type) {
			case *raw.StreamObj:
			case *raw.DictObj:
				if !includeOthers || keepIdentity[v.Name("Type")] {
					continue
				}
			case *raw.ArrayObj:
				if !includeOthers {
					continue
				}
			default:
				continue
			}
			h := hashObject(obj)
			if original, ok := seen[h]; ok {
				replacements[ref] = original
			} else {
				seen[h] = ref
			}
		}

		if len(replacements) > 0 {
			changed = true
			merged += len(replacements)
			o.applyReplacements(doc, replacements)
			for dup := range replacements {
				delete(doc.Objects, dup)
			}
		}
	}
	return merged
}

func (o *Optimizer) applyReplacements(doc *raw.Document, replacements map[raw.ObjectRef]raw.ObjectRef) {
	for _, obj := range doc.Objects {
		o.replaceRefsInObject(obj, replacements)
	}
	o.replaceRefsInObject(doc.Trailer, replacements)
}

func (o *Optimizer) replaceRefsInObject(obj raw.Object, replacements map[raw.ObjectRef]raw.ObjectRef) {
	switch t := obj.(type) {
	case *raw.ArrayObj:
		for i, val := range t.Items {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.Items[i] = raw.Ref(newRef)
				}
			} else {
				o.replaceRefsInObject(val, replacements)
			}
		}
	case *raw.DictObj:
		for key, val := range t.KV {
			if ref, ok := val.(raw.RefObj); ok {
				if newRef, found := replacements[ref.Ref()]; found {
					t.KV[key] = raw.Ref(newRef)
				}
			} else {
				o.replaceRefsInObject(val, replacements)
			}
		}
	case *raw.StreamObj:
		o.replaceRefsInObject(t.Dict, replacements)
	}
}
