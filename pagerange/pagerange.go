// Package pagerange parses page range lists such as "1-3, 5, 8-end".
package pagerange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoRanges is returned when the input holds no range at all.
var ErrNoRanges = errors.New("no valid page ranges provided")

// DefaultEndWords are the words accepted in place of the last page number.
var DefaultEndWords = []string{"end", "fin", "ende", "fine", "fim", "einde", "koniec"}

// Error reports the token that made a range list invalid.
type Error struct {
	Token  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid page range %q: %s", e.Token, e.Reason)
}

// Range is an inclusive, 1-based page interval.
type Range struct {
	Start, End int
}

// Pages lists the page numbers of r in order.
func (r Range) Pages() []int {
	if r.End < r.Start {
		return nil
	}
	out := make([]int, 0, r.End-r.Start+1)
	for p := r.Start; p <= r.End; p++ {
		out = append(out, p)
	}
	return out
}

func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// FileName names the output file holding r, e.g. "report_pages_1-3.pdf".
func (r Range) FileName(stem string) string {
	if r.Start == r.End {
		return fmt.Sprintf("%s_page_%d.pdf", stem, r.Start)
	}
	return fmt.Sprintf("%s_pages_%d-%d.pdf", stem, r.Start, r.End)
}

// Options customizes parsing.
type Options struct {
	// EndWords replaces DefaultEndWords. Matching ignores case.
	EndWords []string
}

// Parse parses s against a document of total pages with the default options.
func Parse(s string, total int) ([]Range, error) {
	return ParseWith(s, total, Options{})
}

// ParseWith parses a comma separated list of page numbers and "start-end"
// ranges. Any invalid token fails the whole list. Duplicates and overlaps are
// kept in input order.
func ParseWith(s string, total int, opts Options) ([]Range, error) {
	endWords := opts.EndWords
	if len(endWords) == 0 {
		endWords = DefaultEndWords
	}
	var out []Range
	for _, part := range strings.Split(s, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		r, err := parseToken(token, total, endWords)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoRanges
	}
	return out, nil
}

func parseToken(token string, total int, endWords []string) (Range, error) {
	fail := func(format string, args ...any) (Range, error) {
		return Range{}, &Error{Token: token, Reason: fmt.Sprintf(format, args...)}
	}
	startStr, endStr, isRange := strings.Cut(token, "-")
	startStr = strings.TrimSpace(startStr)
	start, ok := pageNumber(startStr)
	if !ok {
		if isRange {
			return fail("invalid start page %q", startStr)
		}
		return fail("invalid page number %q", startStr)
	}
	end := start
	if isRange {
		endStr = strings.TrimSpace(endStr)
		if isEndWord(endStr, endWords) {
			end = total
		} else if end, ok = pageNumber(endStr); !ok {
			return fail("invalid end page %q", endStr)
		}
	}
	if start < 1 || end < 1 {
		return fail("page numbers must be >= 1")
	}
	if start > end {
		return fail("start %d is after end %d", start, end)
	}
	if end > total {
		return fail("page %d exceeds total pages (%d)", end, total)
	}
	return Range{Start: start, End: end}, nil
}

// pageNumber accepts plain decimal digits only.
func pageNumber(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func isEndWord(s string, words []string) bool {
	for _, w := range words {
		if strings.EqualFold(s, w) {
			return true
		}
	}
	return false
}
