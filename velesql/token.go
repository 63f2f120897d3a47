package velesql

import (
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokPunct
	tokLiteral
)

type token struct {
	kind tokenKind
	text string
}

// lex splits query text into identifiers, punctuation and literals.
// String literals and "--" comments are skipped over so that keywords inside them are never seen.
// It is lenient: malformed input still yields the tokens that could be recognized.
func lex(in string) []token {
	var toks []token
	for len(in) > 0 {
		in = skipblank(in)
		if len(in) == 0 {
			break
		}
		r, size := utf8.DecodeRuneInString(in)
		switch {
		case r == '\'' || r == '"':
			end := closingQuote(in, byte(r))
			toks = append(toks, token{kind: tokLiteral, text: in[:end]})
			in = in[end:]
		case r == '-' && len(in) > 1 && in[1] == '-':
			in = skipLine(in)
		case isIdentStart(r):
			ident, rest := lexIdent(in)
			toks = append(toks, token{kind: tokIdent, text: ident})
			in = rest
		case isDigit(r):
			end := 0
			for end < len(in) && (in[end] == '.' || isDigit(rune(in[end]))) {
				end++
			}
			toks = append(toks, token{kind: tokLiteral, text: in[:end]})
			in = in[end:]
		default:
			toks = append(toks, token{kind: tokPunct, text: in[:size]})
			in = in[size:]
		}
	}
	return toks
}

// identifier: \p{L}+[_\p{L}0-9]*
func lexIdent(in string) (string, string) {
	pos := 0
	for pos < len(in) {
		r, size := utf8.DecodeRuneInString(in[pos:])
		if r == utf8.RuneError || (!isIdentStart(r) && !unicode.IsDigit(r)) {
			break
		}
		pos += size
	}
	return in[:pos], in[pos:]
}

// isDigit only accepts ASCII digits, other Unicode digits are lexed as punctuation.
func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// closingQuote returns the index right after the quote closing the literal that starts in[0].
// Doubled quotes are escapes. Unterminated literals run to the end of the input.
func closingQuote(in string, quote byte) int {
	for i := 1; i < len(in); i++ {
		if in[i] != quote {
			continue
		}
		if i+1 < len(in) && in[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(in)
}

func skipLine(in string) string {
	for i := 0; i < len(in); i++ {
		if in[i] == '\n' {
			return in[i+1:]
		}
	}
	return ""
}

func skipblank(in string) string {
	for len(in) > 0 {
		r, size := utf8.DecodeRuneInString(in)
		if r != utf8.RuneError && unicode.IsSpace(r) {
			in = in[size:]
			continue
		}
		break
	}
	return in
}
