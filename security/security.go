// Package security implements the PDF Standard Security Handler, revision 2
// (40-bit RC4): key derivation, in-place encryption of a document and its
// inverse.
package security

import (
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfforge/ir/raw"
)

var (
	// ErrInvalidPassword is returned when neither the user nor the owner
	// password check succeeds.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnsupported is returned for handlers other than Standard V1/R2.
	ErrUnsupported = errors.New("unsupported encryption")
	// ErrAlreadyEncrypted is returned when protecting an encrypted document.
	ErrAlreadyEncrypted = errors.New("document is already encrypted")
	// ErrNotEncrypted is returned when decrypting a plain document.
	ErrNotEncrypted = errors.New("document is not encrypted")
)

// KeyLength is the global key size of revision 2, in bytes.
const KeyLength = 5

// Permissions selects the operations a user who opened the document with
// the user password may perform. A false field clears the matching bit of P.
type Permissions struct {
	Print             bool // bit 3
	Modify            bool // bit 4
	Copy              bool // bit 5
	ModifyAnnotations bool // bit 6
	FillForms         bool // bit 9
	ExtractAccessible bool // bit 10
	Assemble          bool // bit 11
	PrintHighQuality  bool // bit 12
}

// AllPermissions grants everything; its PermissionsValue is -4.
func AllPermissions() Permissions {
	return Permissions{true, true, true, true, true, true, true, true}
}

// PermissionsValue builds the Standard security permissions flags for a document.
func PermissionsValue(p Permissions) int32 {
	val := int32(-4) // bits 1-2 must be 0
	if !p.Print {
		val &^= 1 << 2
	}
	if !p.Modify {
		val &^= 1 << 3
	}
	if !p.Copy {
		val &^= 1 << 4
	}
	if !p.ModifyAnnotations {
		val &^= 1 << 5
	}
	if !p.FillForms {
		val &^= 1 << 8
	}
	if !p.ExtractAccessible {
		val &^= 1 << 9
	}
	if !p.Assemble {
		val &^= 1 << 10
	}
	if !p.PrintHighQuality {
		val &^= 1 << 11
	}
	return val
}

// Helpers
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// PasswordBytes converts a password to the byte form key derivation uses:
// NFC normalized, then Latin-1 encoded with '?' for runes Latin-1 lacks.
func PasswordBytes(password string) []byte {
	password = norm.NFC.String(password)
	out := make([]byte, 0, len(password))
	for _, r := range password {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// PadPassword pads or truncates the password to 32 bytes (Algorithm 2 step a).
func PadPassword(password string) []byte {
	return padPassword(PasswordBytes(password))
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

// ComputeO derives the owner value (Algorithm 3, revision 2).
func ComputeO(ownerPassword, userPassword string) []byte {
	ownerDigest := md5.Sum(PadPassword(ownerPassword))
	return rc4Simple(ownerDigest[:KeyLength], PadPassword(userPassword))
}

// ComputeKey derives the global encryption key (Algorithm 2, revision 2).
func ComputeKey(userPassword string, o []byte, p int32, fileID []byte) []byte {
	return deriveKey(PadPassword(userPassword), o, p, fileID)
}

func deriveKey(paddedUser, o []byte, p int32, fileID []byte) []byte {
	data := make([]byte, 0, 32+len(o)+4+len(fileID))
	data = append(data, paddedUser...)
	data = append(data, o...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(p))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	sum := md5.Sum(data)
	return append([]byte(nil), sum[:KeyLength]...)
}

// ComputeU derives the user value (Algorithm 4).
func ComputeU(key []byte) []byte {
	return rc4Simple(key, passwordPadding)
}

// ObjectKey derives the key of one indirect object (Algorithm 1).
func ObjectKey(key []byte, ref raw.ObjectRef) []byte {
	buf := make([]byte, 0, len(key)+5)
	buf = append(buf, key...)
	buf = append(buf, byte(ref.Num), byte(ref.Num>>8), byte(ref.Num>>16))
	buf = append(buf, byte(ref.Gen), byte(ref.Gen>>8))
	hashLen := len(key) + 5
	if hashLen > 16 {
		hashLen = 16
	}
	sum := md5.Sum(buf)
	return append([]byte(nil), sum[:hashLen]...)
}

func rc4Simple(key []byte, data []byte) []byte {
	out := make([]byte, len(data))
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, data)
	return out
}

// cryptObject applies RC4 with key to every string and stream payload in obj.
// Arrays, dictionaries and streams are transformed in place.
func cryptObject(obj raw.Object, key []byte) raw.Object {
	switch v := obj.(type) {
	case raw.StringObj:
		return raw.StringObj{Bytes: rc4Simple(key, v.Bytes), Hex: v.Hex}
	case *raw.ArrayObj:
		for i, item := range v.Items {
			v.Items[i] = cryptObject(item, key)
		}
		return v
	case *raw.DictObj:
		if v == nil {
			return v
		}
		for k, item := range v.KV {
			v.KV[k] = cryptObject(item, key)
		}
		return v
	case *raw.StreamObj:
		cryptObject(v.Dict, key)
		v.Data = rc4Simple(key, v.Data)
		return v
	default:
		return obj
	}
}
