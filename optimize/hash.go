package optimize

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfforge/ir/raw"
)

type digest [blake2b.Size256]byte

func hashObject(obj raw.Object) digest {
	h, _ := blake2b.New256(nil)
	writeHash(h, obj)
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

func writeHash(h hash.Hash, obj raw.Object) {
	if obj == nil {
		fmt.Fprint(h, "nil")
		return
	}
	fmt.Fprint(h, obj.Type(), ":")
	switch t := obj.(type) {
	case raw.NameObj:
		fmt.Fprintf(h, "%q", t.Value())
	case raw.NumberObj:
		if t.IsInteger() {
			fmt.Fprint(h, t.Int())
		} else {
			fmt.Fprint(h, t.Float())
		}
	case raw.BoolObj:
		fmt.Fprint(h, t.Value())
	case raw.StringObj:
		fmt.Fprintf(h, "%d:", len(t.Value()))
		h.Write(t.Value())
	case raw.RefObj:
		fmt.Fprintf(h, "%d %d R", t.Ref().Num, t.Ref().Gen)
	case *raw.ArrayObj:
		fmt.Fprint(h, "[")
		for _, v := range t.Items {
			writeHash(h, v)
			fmt.Fprint(h, ",")
		}
		fmt.Fprint(h, "]")
	case *raw.DictObj:
		fmt.Fprint(h, "<<")
		for _, k := range t.Keys() {
			fmt.Fprintf(h, "%q", k)
			writeHash(h, t.KV[k])
		}
		fmt.Fprint(h, ">>")
	case *raw.StreamObj:
		writeHash(h, t.Dict)
		fmt.Fprintf(h, "%d:", len(t.Data))
		h.Write(t.Data)
	}
}
