package security

import (
	"github.com/wudi/pdfforge/ir/raw"
)

// Decrypt authenticates password against doc's Encrypt dictionary, decrypts
// every other object in place and removes the encryption. The trailer ID is
// kept.
func Decrypt(doc *raw.Document, password string) error {
	if !doc.Encrypted() {
		return ErrNotEncrypted
	}
	encVal := doc.Trailer.Get("Encrypt")
	encDict := doc.ResolveDict(encVal)
	h, err := NewHandler(encDict, FileID(doc), password)
	if err != nil {
		return err
	}
	encRef, indirect := encVal.(raw.RefObj)
	for _, ref := range doc.Refs() {
		if indirect && ref == encRef.R {
			continue
		}
		obj := doc.Objects[ref]
		if s, ok := obj.(*raw.StreamObj); ok && s.Dict.Name("Type") == "XRef" {
			continue
		}
		doc.Objects[ref] = h.DecryptObject(ref, obj)
	}
	if indirect {
		delete(doc.Objects, encRef.R)
	}
	doc.Trailer.Delete("Encrypt")
	return nil
}
