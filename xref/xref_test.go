package xref_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfforge/xref"
)

func buildSimplePDF() ([]byte, map[uint32]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[uint32]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := uint32(1); i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Type() != "table" {
		t.Fatalf("unexpected table type %q", table.Type())
	}
	for obj, off := range offsets {
		e, ok := table.Lookup(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if e.Kind != xref.EntryInUse || e.Offset != off || e.Gen != 0 {
			t.Fatalf("object %d: expected offset %d, got %+v", obj, off, e)
		}
	}
	if _, ok := table.Lookup(0); ok {
		t.Fatalf("object 0 must be free")
	}
	if diff := cmp.Diff([]uint32{1, 2}, table.Objects()); diff != "" {
		t.Fatalf("objects mismatch (-want +got):\n%s", diff)
	}
}

func TestResolverFollowsPrev(t *testing.T) {
	pdf, _ := buildSimplePDF()
	buf := bytes.NewBuffer(append([]byte(nil), pdf...))
	firstXRef := bytes.LastIndex(pdf, []byte("xref\n0 3"))

	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 /Updated true >>\nendobj\n")
	off3 := buf.Len()
	buf.WriteString("3 0 obj\n(new)\nendobj\n")
	xrefOffset := buf.Len()
	buf.WriteString("xref\n2 2\n")
	buf.WriteString(fmt.Sprintf("%010d 00000 n \n%010d 00000 n \n", off2, off3))
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size 4 /Prev %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", firstXRef, xrefOffset))

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e, _ := table.Lookup(2); e.Offset != int64(off2) {
		t.Fatalf("newest section must win for object 2, got %+v", e)
	}
	if _, ok := table.Lookup(1); !ok {
		t.Fatalf("object 1 from the older section missing")
	}
	if size, _ := table.Trailer().Int("Size"); size != 4 {
		t.Fatalf("newest trailer Size should win, got %d", size)
	}
}

func buildXRefStreamPDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off4 := buf.Len()
	buf.WriteString("4 0 obj\n<< /Type /ObjStm /N 1 /First 4 /Length 44 >>\nstream\n2 0 << /Type /Pages /Kids [] /Count 0 >>    \nendstream\nendobj\n")

	xrefOffset := buf.Len()
	rows := []byte{
		0, 0, 0, 255,
		1, byte(off1 >> 8), byte(off1), 0,
		2, 0, 4, 0,
		0, 0, 0, 0,
		1, byte(off4 >> 8), byte(off4), 0,
		1, byte(xrefOffset >> 8), byte(xrefOffset), 0,
	}
	buf.WriteString(fmt.Sprintf("5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows)))
	buf.Write(rows)
	buf.WriteString("\nendstream\nendobj\n")
	buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset))
	return buf.Bytes()
}

func TestResolverParsesXRefStream(t *testing.T) {
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buildXRefStreamPDF())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Type() != "stream" {
		t.Fatalf("unexpected type %q", table.Type())
	}
	e, ok := table.Lookup(2)
	if !ok || e.Kind != xref.EntryCompressed || e.Stream != 4 || e.Index != 0 {
		t.Fatalf("object 2 should live in object stream 4, got %+v", e)
	}
	if _, ok := table.Lookup(3); ok {
		t.Fatalf("object 3 is free")
	}
	if table.Trailer().Get("Root") == nil {
		t.Fatalf("trailer Root missing")
	}
}

func TestResolverErrors(t *testing.T) {
	resolver := xref.NewResolver(xref.ResolverConfig{})
	if _, err := resolver.Resolve(context.Background(), []byte("%PDF-1.7\nno xref here")); !errors.Is(err, xref.ErrNoStartXRef) {
		t.Fatalf("expected ErrNoStartXRef, got %v", err)
	}
	bad := []byte("%PDF-1.7\ngarbage garbage\nstartxref\n9\n%%EOF")
	if _, err := resolver.Resolve(context.Background(), bad); !errors.Is(err, xref.ErrBadXRef) {
		t.Fatalf("expected ErrBadXRef, got %v", err)
	}
}
