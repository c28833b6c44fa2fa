package optimize

import (
	"github.com/wudi/pdfforge/ir/raw"
)

// cleanUnusedObjects deletes every object the trailer cannot reach.
func (o *Optimizer) cleanUnusedObjects(doc *raw.Document) int {
	reachable := make(map[raw.ObjectRef]bool)
	if doc.Trailer != nil {
		o.markReachable(doc, doc.Trailer, reachable)
	}
	removed := 0
	for ref := range doc.Objects {
		if !reachable[ref] {
			delete(doc.Objects, ref)
			removed++
		}
	}
	return removed
}

func (o *Optimizer) markReachable(doc *raw.Document, obj raw.Object, reachable map[raw.ObjectRef]bool) {
	switch t := obj.(type) {
	case raw.RefObj:
		ref := t.Ref()
		if reachable[ref] {
			return
		}
		reachable[ref] = true
		if target, ok := doc.Objects[ref]; ok {
			o.markReachable(doc, target, reachable)
		}
	case *raw.ArrayObj:
		for _, v := range t.Items {
			o.markReachable(doc, v, reachable)
		}
	case *raw.DictObj:
		for _, v := range t.KV {
			o.markReachable(doc, v, reachable)
		}
	case *raw.StreamObj:
		o.markReachable(doc, t.Dict, reachable)
	}
}
