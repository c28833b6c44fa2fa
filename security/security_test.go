package security

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/pdfforge/ir/raw"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func testFileID() []byte {
	id := make([]byte, 16)
	for i := range id {
		id[i] = byte(i)
	}
	return id
}

func TestPadPassword(t *testing.T) {
	if got := PadPassword(""); !bytes.Equal(got, passwordPadding) {
		t.Fatalf("empty password should pad to the constant, got %x", got)
	}
	got := PadPassword("ab")
	if len(got) != 32 || got[0] != 'a' || got[1] != 'b' || got[2] != 0x28 {
		t.Fatalf("unexpected padding %x", got)
	}
	long := PadPassword("0123456789012345678901234567890123456789")
	if string(long) != "01234567890123456789012345678901" {
		t.Fatalf("long password should truncate, got %q", long)
	}
}

func TestPasswordBytesLatin1(t *testing.T) {
	// decomposed e + combining acute normalizes to U+00E9
	if got := PasswordBytes("cafe\u0301"); !bytes.Equal(got, []byte{'c', 'a', 'f', 0xe9}) {
		t.Fatalf("unexpected latin-1 bytes %x", got)
	}
	if got := PasswordBytes("密"); !bytes.Equal(got, []byte("?")) {
		t.Fatalf("non latin-1 rune should become '?', got %q", got)
	}
}

func TestKnownAnswerRevision2(t *testing.T) {
	id := testFileID()
	o := ComputeO("secret", "secret")
	if want := mustHex(t, "e5a8d2687bd9d0cff946b7ac55f51081dcf0d116554c4bfcb0a5e446f69ea48a"); !bytes.Equal(o, want) {
		t.Fatalf("O mismatch:\n got %x\nwant %x", o, want)
	}
	key := ComputeKey("secret", o, -4, id)
	if want := mustHex(t, "2e3cf0aa1c"); !bytes.Equal(key, want) {
		t.Fatalf("key mismatch: got %x want %x", key, want)
	}
	u := ComputeU(key)
	if want := mustHex(t, "290751e36c1abc5fb40ef2f5c646655466c801fe4bff29c03dfee78639ece1d7"); !bytes.Equal(u, want) {
		t.Fatalf("U mismatch:\n got %x\nwant %x", u, want)
	}
	objKey := ObjectKey(key, raw.ObjectRef{Num: 1})
	if want := mustHex(t, "9803658f0d409bc60df8"); !bytes.Equal(objKey, want) {
		t.Fatalf("object key mismatch: got %x want %x", objKey, want)
	}
	if got := rc4Simple(objKey, []byte("hello")); !bytes.Equal(got, mustHex(t, "9222784348")) {
		t.Fatalf("ciphertext mismatch: got %x", got)
	}
}

func TestKnownAnswerSeparateOwner(t *testing.T) {
	id := testFileID()
	perms := PermissionsValue(Permissions{})
	if perms != -3904 {
		t.Fatalf("unexpected permissions value %d", perms)
	}
	o := ComputeO("owner", "user")
	if want := mustHex(t, "94e8094419662a774442fb072e3d9f19e9d130ec09a4d0061e78fe920f7ab62f"); !bytes.Equal(o, want) {
		t.Fatalf("O mismatch: got %x", o)
	}
	key := ComputeKey("user", o, perms, id)
	if want := mustHex(t, "7fca5cfcc5"); !bytes.Equal(key, want) {
		t.Fatalf("key mismatch: got %x", key)
	}
}

func TestDerivationIsDeterministic(t *testing.T) {
	id := testFileID()
	o1, o2 := ComputeO("pw", "pw"), ComputeO("pw", "pw")
	k1, k2 := ComputeKey("pw", o1, -4, id), ComputeKey("pw", o2, -4, id)
	if !bytes.Equal(o1, o2) || !bytes.Equal(k1, k2) || !bytes.Equal(ComputeU(k1), ComputeU(k2)) {
		t.Fatalf("derivation must be deterministic")
	}
	if len(o1) != 32 || len(k1) != KeyLength || len(ComputeU(k1)) != 32 {
		t.Fatalf("unexpected lengths O=%d key=%d", len(o1), len(k1))
	}
}

func TestObjectKeyLength(t *testing.T) {
	if got := len(ObjectKey(make([]byte, 5), raw.ObjectRef{Num: 7})); got != 10 {
		t.Fatalf("40-bit object key should be 10 bytes, got %d", got)
	}
	if got := len(ObjectKey(make([]byte, 16), raw.ObjectRef{Num: 7})); got != 16 {
		t.Fatalf("object key is capped at 16 bytes, got %d", got)
	}
}

func TestPermissionsValue(t *testing.T) {
	if got := PermissionsValue(AllPermissions()); got != -4 {
		t.Fatalf("all permissions should be -4, got %d", got)
	}
	if got := PermissionsValue(Permissions{}); got != -3904 {
		t.Fatalf("no permissions should be -3904, got %d", got)
	}
}

func TestHandlerUserAndOwnerPasswords(t *testing.T) {
	id := testFileID()
	o := ComputeO("owner", "user")
	key := ComputeKey("user", o, -4, id)
	enc := raw.Dict()
	enc.Set("Filter", raw.NameLiteral("Standard"))
	enc.Set("V", raw.NumberInt(1))
	enc.Set("R", raw.NumberInt(2))
	enc.Set("O", raw.Str(o))
	enc.Set("U", raw.Str(ComputeU(key)))
	enc.Set("P", raw.NumberInt(-4))

	h, err := NewHandler(enc, id, "user")
	if err != nil || h.Owner() || !bytes.Equal(h.Key(), key) {
		t.Fatalf("user password: handler=%v err=%v", h, err)
	}
	h, err = NewHandler(enc, id, "owner")
	if err != nil || !h.Owner() || !bytes.Equal(h.Key(), key) {
		t.Fatalf("owner password: handler=%v err=%v", h, err)
	}
	if _, err := NewHandler(enc, id, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	enc.Set("R", raw.NumberInt(3))
	if _, err := NewHandler(enc, id, "user"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func sampleDocument() *raw.Document {
	doc := raw.NewDocument("1.7")
	content := doc.Add(raw.NewStream(raw.Dict(), []byte("BT (Hello) Tj ET")))
	page := raw.Dict()
	page.Set("Type", raw.NameLiteral("Page"))
	page.Set("Contents", raw.Ref(content))
	pageRef := doc.Add(page)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", raw.NewArray(raw.Ref(pageRef)))
	pages.Set("Count", raw.NumberInt(1))
	pagesRef := doc.Add(pages)
	page.Set("Parent", raw.Ref(pagesRef))
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Quarterly report")))
	info.Set("Keywords", raw.NewArray(raw.Str([]byte("a")), raw.HexStr([]byte{1, 2})))
	infoRef := doc.Add(info)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesRef))
	doc.Trailer.Set("Root", raw.Ref(doc.Add(catalog)))
	doc.Trailer.Set("Info", raw.Ref(infoRef))
	return doc
}

func TestProtectEncryptsStringsAndStreams(t *testing.T) {
	doc := sampleDocument()
	before := sampleDocument()
	params, err := Protect(doc, Config{UserPassword: "secret", FileID: testFileID()})
	if err != nil {
		t.Fatalf("protect: %v", err)
	}

	// Encrypt dictionary is stored as computed, not transformed.
	enc := doc.ResolveDict(doc.Trailer.Get("Encrypt"))
	if enc == nil {
		t.Fatalf("trailer Encrypt missing")
	}
	if got, _ := stringBytes(enc, "O"); !bytes.Equal(got, params.O) {
		t.Fatalf("O in Encrypt dictionary was transformed")
	}
	if got, _ := stringBytes(enc, "U"); !bytes.Equal(got, params.U) {
		t.Fatalf("U in Encrypt dictionary was transformed")
	}
	if p, _ := enc.Int("P"); p != -4 || enc.Name("Filter") != "Standard" {
		t.Fatalf("unexpected Encrypt dictionary %v", enc.KV)
	}
	if !bytes.Equal(FileID(doc), testFileID()) {
		t.Fatalf("trailer ID not set")
	}

	for ref, obj := range before.Objects {
		got := doc.Objects[ref]
		switch want := obj.(type) {
		case *raw.StreamObj:
			s := got.(*raw.StreamObj)
			if bytes.Equal(s.Data, want.Data) {
				t.Fatalf("stream %v left in clear", ref)
			}
			if !bytes.Equal(rc4Simple(ObjectKey(params.Key, ref), s.Data), want.Data) {
				t.Fatalf("stream %v does not decrypt back", ref)
			}
		case *raw.DictObj:
			if title, ok := want.Get("Title").(raw.StringObj); ok {
				gotTitle := got.(*raw.DictObj).Get("Title").(raw.StringObj)
				if bytes.Equal(gotTitle.Bytes, title.Bytes) {
					t.Fatalf("Info title left in clear")
				}
			}
			if want.Name("Type") != got.(*raw.DictObj).Name("Type") {
				t.Fatalf("names must never be encrypted")
			}
		}
	}
}

func TestProtectThenDecryptRestoresDocument(t *testing.T) {
	doc := sampleDocument()
	want := sampleDocument()
	if _, err := Protect(doc, Config{UserPassword: "user", OwnerPassword: "owner", IDSeed: "/tmp/report.pdf"}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	if _, err := Protect(doc, Config{UserPassword: "again"}); !errors.Is(err, ErrAlreadyEncrypted) {
		t.Fatalf("expected ErrAlreadyEncrypted, got %v", err)
	}
	if err := Decrypt(doc, "bad"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if err := Decrypt(doc, "owner"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if doc.Encrypted() {
		t.Fatalf("Encrypt entry should be removed")
	}
	doc.Trailer.Delete("ID")
	if diff := cmp.Diff(want, doc, cmpopts.IgnoreUnexported(raw.Document{})); diff != "" {
		t.Fatalf("document mismatch after round trip (-want +got):\n%s", diff)
	}
}

func TestProtectStreamWithoutDictionary(t *testing.T) {
	doc := sampleDocument()
	ref := doc.Add(raw.NewStream(nil, []byte("x")))
	if _, err := Protect(doc, Config{UserPassword: "pw"}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	if got := doc.Objects[ref].(*raw.StreamObj).Data; bytes.Equal(got, []byte("x")) {
		t.Fatalf("payload left in clear")
	}
	if err := Decrypt(doc, "pw"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got := doc.Objects[ref].(*raw.StreamObj).Data; string(got) != "x" {
		t.Fatalf("payload = %q after decrypt, want %q", got, "x")
	}
}

func TestGenerateFileID(t *testing.T) {
	a := GenerateFileID("/in/a.pdf", 10)
	if len(a) != 16 {
		t.Fatalf("file ID should be 16 bytes, got %d", len(a))
	}
	if !bytes.Equal(a, GenerateFileID("/in/a.pdf", 10)) {
		t.Fatalf("file ID must be deterministic")
	}
	if bytes.Equal(a, GenerateFileID("/in/b.pdf", 10)) {
		t.Fatalf("different seeds should give different IDs")
	}
}
