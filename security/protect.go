package security

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfforge/ir/raw"
)

// Config selects passwords and permissions for Protect.
type Config struct {
	UserPassword string
	// OwnerPassword defaults to UserPassword.
	OwnerPassword string
	// Permissions defaults to AllPermissions.
	Permissions *Permissions
	// FileID is used when the trailer has no ID. When both are empty an ID is
	// derived from IDSeed and the object count.
	FileID []byte
	IDSeed string
}

// Params is the encryption state of one Protect call.
type Params struct {
	Key       []byte
	O         []byte
	U         []byte
	P         int32
	FileID    []byte
	EncryptID raw.ObjectRef
}

// Protect encrypts every string and stream of doc in place with the
// revision 2 handler, then adds the unencrypted Encrypt dictionary and points
// the trailer at it.
func Protect(doc *raw.Document, cfg Config) (*Params, error) {
	if doc.Trailer == nil {
		return nil, raw.ErrNoRoot
	}
	if doc.Encrypted() {
		return nil, ErrAlreadyEncrypted
	}
	owner := cfg.OwnerPassword
	if owner == "" {
		owner = cfg.UserPassword
	}
	perms := AllPermissions()
	if cfg.Permissions != nil {
		perms = *cfg.Permissions
	}
	fileID := ensureFileID(doc, cfg)

	params := &Params{P: PermissionsValue(perms), FileID: fileID}
	params.O = ComputeO(owner, cfg.UserPassword)
	params.Key = ComputeKey(cfg.UserPassword, params.O, params.P, fileID)
	params.U = ComputeU(params.Key)

	for _, ref := range doc.Refs() {
		doc.Objects[ref] = cryptObject(doc.Objects[ref], ObjectKey(params.Key, ref))
	}

	enc := raw.Dict()
	enc.Set("Filter", raw.NameLiteral("Standard"))
	enc.Set("V", raw.NumberInt(1))
	enc.Set("R", raw.NumberInt(2))
	enc.Set("Length", raw.NumberInt(40))
	enc.Set("P", raw.NumberInt(int64(params.P)))
	enc.Set("O", raw.HexStr(params.O))
	enc.Set("U", raw.HexStr(params.U))
	params.EncryptID = doc.Add(enc)
	doc.Trailer.Set("Encrypt", raw.Ref(params.EncryptID))
	return params, nil
}

// ensureFileID returns the first trailer ID, creating the ID array when it is
// missing.
func ensureFileID(doc *raw.Document, cfg Config) []byte {
	if id := FileID(doc); len(id) > 0 {
		return id
	}
	id := cfg.FileID
	if len(id) == 0 {
		id = GenerateFileID(cfg.IDSeed, len(doc.Objects))
	}
	doc.Trailer.Set("ID", raw.NewArray(raw.HexStr(id), raw.HexStr(id)))
	return id
}

// GenerateFileID hashes seed and the object count into a 16-byte ID.
func GenerateFileID(seed string, objects int) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(seed))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(objects))
	h.Write(n[:])
	return h.Sum(nil)
}
