// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package lexer_test

import (
	"testing"

	"github.com/tombchain/tombc/lang/lexer"
	"github.com/tombchain/tombc/lang/token"
)

type tokenCase struct {
	kind   token.Kind
	lexeme string
}

func runTokenize(t *testing.T, name, input string, want []tokenCase) {
	t.Helper()
	t.Run(name, func(t *testing.T) {
		t.Helper()
		l := lexer.New("test.tomb", input)
		toks := l.Tokenize()

		if len(toks) == 0 {
			t.Fatal("Tokenize returned empty slice")
		}
		last := toks[len(toks)-1]
		if last.Kind != token.EOF {
			t.Errorf("last token is %s, want EOF", last.Kind)
		}
		body := toks[:len(toks)-1]

		if len(body) != len(want) {
			t.Errorf("got %d tokens (excl. EOF), want %d", len(body), len(want))
			for i, tok := range body {
				t.Logf("  [%d] %s %q", i, tok.Kind, tok.Lexeme)
			}
			return
		}
		for i, w := range want {
			got := body[i]
			if got.Kind != w.kind {
				t.Errorf("token[%d]: kind = %s, want %s (lexeme %q)", i, got.Kind, w.kind, got.Lexeme)
			}
			if got.Lexeme != w.lexeme {
				t.Errorf("token[%d]: lexeme = %q, want %q", i, got.Lexeme, w.lexeme)
			}
		}
	})
}

func TestLiterals(t *testing.T) {
	runTokenize(t, "number", "42", []tokenCase{{token.Number, "42"}})
	runTokenize(t, "negative number", "-7", []tokenCase{{token.Number, "-7"}})
	runTokenize(t, "string", `"hi there"`, []tokenCase{{token.String, "hi there"}})
	runTokenize(t, "bool true", "true", []tokenCase{{token.Bool, "true"}})
	runTokenize(t, "bool false", "false", []tokenCase{{token.Bool, "false"}})
	runTokenize(t, "address", "@abc123", []tokenCase{{token.Address, "abc123"}})
	runTokenize(t, "hash", "#deadBEEF", []tokenCase{{token.Hash, "deadBEEF"}})
	runTokenize(t, "bytes", "0xCAFE01", []tokenCase{{token.Bytes, "CAFE01"}})
	runTokenize(t, "macro", "$THIS_ADDRESS", []tokenCase{{token.Macro, "THIS_ADDRESS"}})
}

func TestIdentifiersKeywordsAndTypes(t *testing.T) {
	runTokenize(t, "plain ident", "balances", []tokenCase{{token.Identifier, "balances"}})
	runTokenize(t, "keyword stays identifier", "contract", []tokenCase{{token.Identifier, "contract"}})
	runTokenize(t, "type name", "number", []tokenCase{{token.Type, "number"}})
	runTokenize(t, "storage type name", "storage_map", []tokenCase{{token.Type, "storage_map"}})
}

func TestOperatorsSeparatorsSelector(t *testing.T) {
	runTokenize(t, "operators", ":= == != <= >= << >> += -= *= /= %= &= |= ^= <<= >>=", []tokenCase{
		{token.Operator, ":="}, {token.Operator, "=="}, {token.Operator, "!="},
		{token.Operator, "<="}, {token.Operator, ">="}, {token.Operator, "<<"},
		{token.Operator, ">>"}, {token.Operator, "+="}, {token.Operator, "-="},
		{token.Operator, "*="}, {token.Operator, "/="}, {token.Operator, "%="},
		{token.Operator, "&="}, {token.Operator, "|="}, {token.Operator, "^="},
		{token.Operator, "<<="}, {token.Operator, ">>="},
	})
	runTokenize(t, "separators", "( ) { } [ ] , ; : =", []tokenCase{
		{token.Separator, "("}, {token.Separator, ")"}, {token.Separator, "{"},
		{token.Separator, "}"}, {token.Separator, "["}, {token.Separator, "]"},
		{token.Separator, ","}, {token.Separator, ";"}, {token.Separator, ":"},
		{token.Separator, "="},
	})
	runTokenize(t, "selector", "a.b", []tokenCase{
		{token.Identifier, "a"}, {token.Selector, "."}, {token.Identifier, "b"},
	})
}

func TestCommentsAreSkipped(t *testing.T) {
	runTokenize(t, "line comment", "a // trailing comment\nb", []tokenCase{
		{token.Identifier, "a"}, {token.Identifier, "b"},
	})
	runTokenize(t, "block comment", "a /* inline\nmultiline */ b", []tokenCase{
		{token.Identifier, "a"}, {token.Identifier, "b"},
	})
}

func TestAsmBlockCapturedVerbatim(t *testing.T) {
	l := lexer.New("test.tomb", "asm { LOAD r1 $0\nADD r1 r1 r1 }")
	tok := l.NextToken()
	if tok.Kind != token.Identifier || tok.Lexeme != "asm" {
		t.Fatalf("expected asm keyword, got %s %q", tok.Kind, tok.Lexeme)
	}
	brace := l.NextToken()
	if brace.Kind != token.Separator || brace.Lexeme != "{" {
		t.Fatalf("expected '{', got %s %q", brace.Kind, brace.Lexeme)
	}
	body := l.ReadAsmBody()
	if body.Kind != token.Asm {
		t.Fatalf("expected Asm token, got %s", body.Kind)
	}
	want := " LOAD r1 $0\nADD r1 r1 r1 "
	if body.Lexeme != want {
		t.Errorf("asm body = %q, want %q", body.Lexeme, want)
	}
	closeBrace := l.NextToken()
	if closeBrace.Kind != token.Separator || closeBrace.Lexeme != "}" {
		t.Fatalf("expected '}', got %s %q", closeBrace.Kind, closeBrace.Lexeme)
	}
}

func TestUnterminatedStringIsLexError(t *testing.T) {
	l := lexer.New("test.tomb", `"never closed`)
	l.Tokenize()
	if err := l.Err(); err == nil {
		t.Fatal("expected a LexError for an unterminated string")
	}
}
