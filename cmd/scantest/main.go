package main

import (
	"fmt"
	"io"
	"os"

	"github.com/wudi/pdfforge/scanner"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: scantest <pdf>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	s := scanner.New(data, scanner.Config{})
	for i := 0; i < 200000; i++ { // limit to avoid flooding
		tok, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Printf("ERR: %v\n", err)
			break
		}
		fmt.Printf("%d@%d %s\n", tok.Type, tok.Pos, describe(tok))
	}
}

func describe(tok scanner.Token) string {
	switch tok.Type {
	case scanner.TokenName:
		return "/" + tok.Str
	case scanner.TokenKeyword:
		return tok.Str
	case scanner.TokenString:
		if tok.Hex {
			return fmt.Sprintf("<%x>", tok.Bytes)
		}
		return fmt.Sprintf("(%q)", tok.Bytes)
	case scanner.TokenNumber:
		if tok.IsInt {
			return fmt.Sprint(tok.Int)
		}
		return fmt.Sprint(tok.Float)
	case scanner.TokenBoolean:
		return fmt.Sprint(tok.Bool)
	case scanner.TokenNull:
		return "null"
	case scanner.TokenRef:
		return fmt.Sprintf("%d %d R", tok.Int, tok.Gen)
	case scanner.TokenStream:
		return fmt.Sprintf("stream (%d bytes)", len(tok.Bytes))
	}
	return tok.Str
}
