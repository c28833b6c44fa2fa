package parser_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wudi/pdfforge/filters"
	"github.com/wudi/pdfforge/ir/raw"
	"github.com/wudi/pdfforge/parser"
	"github.com/wudi/pdfforge/recovery"
	"github.com/wudi/pdfforge/security"
	"github.com/wudi/pdfforge/writer"
)

// buildClassicPDF writes the given object bodies as objects 1..n followed by
// a classic xref table. Object 1 must be the catalog.
func buildClassicPDF(header string, bodies ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString(header + "\n")
	offsets := make([]int, len(bodies))
	for i, body := range bodies {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(bodies)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, xrefOffset)
	return buf.Bytes()
}

func onePageBodies() []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R >>",
		"<< /Length 7 >>\nstream\nBT ET Q\nendstream",
	}
}

func parse(t *testing.T, data []byte, cfg parser.Config) (*raw.Document, error) {
	t.Helper()
	return parser.NewDocumentParser(cfg).ParseBytes(context.Background(), data)
}

func TestParseClassicXRef(t *testing.T) {
	doc, err := parse(t, buildClassicPDF("%PDF-1.4", onePageBodies()...), parser.Config{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.4" {
		t.Fatalf("version = %q, want 1.4", doc.Version)
	}
	if len(doc.Objects) != 4 {
		t.Fatalf("objects = %d, want 4", len(doc.Objects))
	}
	if n := doc.PageCount(); n != 1 {
		t.Fatalf("page count = %d, want 1", n)
	}
	s, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok || string(s.Data) != "BT ET Q" {
		t.Fatalf("unexpected content stream %#v", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if got := doc.Trailer.Keys(); !cmp.Equal(got, []string{"Root"}) {
		t.Fatalf("trailer keys = %v, want [Root]", got)
	}
}

func TestParseUsesCatalogVersion(t *testing.T) {
	bodies := onePageBodies()
	bodies[0] = "<< /Type /Catalog /Pages 2 0 R /Version /1.6 >>"
	doc, err := parse(t, buildClassicPDF("%PDF-1.3", bodies...), parser.Config{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.6" {
		t.Fatalf("version = %q, want 1.6", doc.Version)
	}
}

func TestParseObjectStreamAndXRefStream(t *testing.T) {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>",
	}
	var header, body bytes.Buffer
	for i, o := range objs {
		fmt.Fprintf(&header, "%d %d ", i+1, body.Len())
		body.WriteString(o + "\n")
	}
	payload, err := filters.EncodeFlate(append(header.Bytes(), body.Bytes()...), 6)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	stmOffset := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /ObjStm /N 3 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", header.Len(), len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOffset := buf.Len()
	row := func(typ byte, f2 int, f3 byte) []byte {
		return []byte{typ, byte(f2 >> 8), byte(f2), f3}
	}
	var rows []byte
	rows = append(rows, row(0, 0, 0)...)
	for i := range objs {
		rows = append(rows, row(2, 4, byte(i))...)
	}
	rows = append(rows, row(1, stmOffset, 0)...)
	rows = append(rows, row(1, xrefOffset, 0)...)
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)

	doc, err := parse(t, buf.Bytes(), parser.Config{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// object and xref streams are layout bookkeeping and are dropped
	want := []raw.ObjectRef{{Num: 1}, {Num: 2}, {Num: 3}}
	if diff := cmp.Diff(want, doc.Refs()); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	if n := doc.PageCount(); n != 1 {
		t.Fatalf("page count = %d, want 1", n)
	}
}

func TestParseRejectsNonPDF(t *testing.T) {
	_, err := parse(t, []byte("hello world"), parser.Config{})
	if !errors.Is(err, parser.ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestRecoveryStrategies(t *testing.T) {
	bodies := onePageBodies()
	data := buildClassicPDF("%PDF-1.7", bodies...)
	// corrupt the header of object 4 so it cannot be located
	data = bytes.Replace(data, []byte("4 0 obj"), []byte("x y obj"), 1)

	if _, err := parse(t, data, parser.Config{}); err == nil {
		t.Fatalf("strict parse should fail")
	}

	lenient := recovery.NewLenientStrategy(nil)
	doc, err := parse(t, data, parser.Config{Recovery: lenient})
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 4}]; ok {
		t.Fatalf("broken object should be skipped")
	}
	if len(lenient.Errors) != 1 {
		t.Fatalf("lenient recorded %d errors, want 1", len(lenient.Errors))
	}
	// the reference to the skipped object is gone, so the document saves
	page := doc.Objects[raw.ObjectRef{Num: 3}].(*raw.DictObj)
	if page.Get("Contents") != nil {
		t.Fatalf("dangling Contents should be removed, got %v", page.Get("Contents"))
	}
	if err := writer.Validate(doc); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func protectedFile(t *testing.T, user, owner string) (*raw.Document, []byte) {
	t.Helper()
	doc, err := parse(t, buildClassicPDF("%PDF-1.7", onePageBodies()...), parser.Config{})
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	info := raw.Dict()
	info.Set("Title", raw.Str([]byte("Quarterly (draft)")))
	doc.Trailer.Set("Info", raw.Ref(doc.Add(info)))

	enc, err := parse(t, buildClassicPDF("%PDF-1.7", onePageBodies()...), parser.Config{})
	if err != nil {
		t.Fatalf("parse plain: %v", err)
	}
	encInfo := raw.Dict()
	encInfo.Set("Title", raw.Str([]byte("Quarterly (draft)")))
	enc.Trailer.Set("Info", raw.Ref(enc.Add(encInfo)))
	if _, err := security.Protect(enc, security.Config{UserPassword: user, OwnerPassword: owner, IDSeed: "fixture"}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	var buf bytes.Buffer
	if err := writer.Write(context.Background(), enc, &buf, writer.Config{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("Quarterly")) || bytes.Contains(buf.Bytes(), []byte("BT ET Q")) {
		t.Fatalf("plaintext leaked into encrypted file")
	}
	doc.Trailer.Set("ID", enc.Trailer.Get("ID"))
	return doc, buf.Bytes()
}

func TestParseEncryptedDocument(t *testing.T) {
	plain, data := protectedFile(t, "user", "owner")

	if _, err := parse(t, data, parser.Config{}); !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
	if _, err := parse(t, data, parser.Config{Password: "nope"}); !errors.Is(err, security.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	for _, pwd := range []string{"user", "owner"} {
		doc, err := parse(t, data, parser.Config{Password: pwd})
		if err != nil {
			t.Fatalf("parse with %q: %v", pwd, err)
		}
		if doc.Encrypted() {
			t.Fatalf("trailer still names an Encrypt dictionary")
		}
		if diff := cmp.Diff(plain, doc, cmpopts.IgnoreUnexported(raw.Document{})); diff != "" {
			t.Fatalf("decrypted document mismatch with %q (-want +got):\n%s", pwd, diff)
		}
	}
}

func TestParseEmptyUserPasswordOpensWithoutPrompt(t *testing.T) {
	_, data := protectedFile(t, "", "owner")
	doc, err := parse(t, data, parser.Config{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	info := doc.ResolveDict(doc.Trailer.Get("Info"))
	if got := string(info.Get("Title").(raw.StringObj).Bytes); !strings.HasPrefix(got, "Quarterly") {
		t.Fatalf("title = %q", got)
	}
}
