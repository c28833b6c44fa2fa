package security

import (
	"bytes"
	"crypto/md5"
	"fmt"

	"github.com/wudi/pdfforge/ir/raw"
)

// Handler holds the authenticated state of one encrypted document.
type Handler struct {
	key   []byte
	owner bool
}

// NewHandler authenticates password against an Encrypt dictionary, first as
// the user password (Algorithm 6) and then as the owner password
// (Algorithm 7).
func NewHandler(encrypt *raw.DictObj, fileID []byte, password string) (*Handler, error) {
	if encrypt == nil {
		return nil, ErrNotEncrypted
	}
	if f := encrypt.Name("Filter"); f != "Standard" {
		return nil, fmt.Errorf("%w: filter %q", ErrUnsupported, f)
	}
	v, _ := encrypt.Int("V")
	r, _ := encrypt.Int("R")
	if (v != 0 && v != 1) || r != 2 {
		return nil, fmt.Errorf("%w: V=%d R=%d", ErrUnsupported, v, r)
	}
	o, okO := stringBytes(encrypt, "O")
	u, okU := stringBytes(encrypt, "U")
	p, okP := encrypt.Int("P")
	if !okO || !okU || !okP || len(o) < 32 || len(u) < 32 {
		return nil, fmt.Errorf("%w: incomplete encryption dictionary", ErrUnsupported)
	}
	o, u = o[:32], u[:32]
	perms := int32(uint32(p))

	pwd := PasswordBytes(password)
	if key := deriveKey(padPassword(pwd), o, perms, fileID); bytes.Equal(ComputeU(key), u) {
		return &Handler{key: key}, nil
	}
	ownerDigest := md5.Sum(padPassword(pwd))
	userPad := rc4Simple(ownerDigest[:KeyLength], o)
	if key := deriveKey(userPad, o, perms, fileID); bytes.Equal(ComputeU(key), u) {
		return &Handler{key: key, owner: true}, nil
	}
	return nil, ErrInvalidPassword
}

// Key returns a copy of the global encryption key.
func (h *Handler) Key() []byte { return append([]byte(nil), h.key...) }

// Owner reports whether the owner password authenticated.
func (h *Handler) Owner() bool { return h.owner }

// DecryptObject decrypts every string and stream payload of the indirect
// object ref in place and returns it.
func (h *Handler) DecryptObject(ref raw.ObjectRef, obj raw.Object) raw.Object {
	return cryptObject(obj, ObjectKey(h.key, ref))
}

func stringBytes(d *raw.DictObj, key string) ([]byte, bool) {
	s, ok := d.Get(key).(raw.StringObj)
	if !ok {
		return nil, false
	}
	return s.Bytes, true
}

// FileID returns the first element of the trailer ID array.
func FileID(doc *raw.Document) []byte {
	if doc.Trailer == nil {
		return nil
	}
	arr, ok := doc.Resolve(doc.Trailer.Get("ID")).(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	s, ok := doc.Resolve(arr.Items[0]).(raw.StringObj)
	if !ok {
		return nil
	}
	return s.Bytes
}
