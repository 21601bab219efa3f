// Package cases converts identifiers between naming conventions.
//
// Every converter shares one tokenizer: the input is split at lower-to-upper
// transitions (a digit counts as lower), at acronym-to-titlecase transitions
// ("HTTPResponse" -> "HTTP", "Response") and at every run of characters that
// are neither letters nor digits. Tokens are lower-cased and then joined per
// convention:
//
//	Snake("UserID")        // user_id
//	Camel("user_id")       // userId
//	Pascal("user-id")      // UserId
//	Constant("some-thing") // SOME_THING
//	Kebab("HTTPResponse")  // http-response
//	Header("user_id")      // User-Id
//
// All converters are total: any string, including the empty string, maps to
// a result without panicking.
package cases

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Converter renames a parameter key.
type Converter func(string) string

// Identity returns s unchanged.
func Identity(s string) string { return s }

// Snake converts s to snake_case.
func Snake(s string) string {
	return strings.Join(words(s), "_")
}

// Camel converts s to camelCase.
func Camel(s string) string {
	ws := words(s)
	for i := 1; i < len(ws); i++ {
		ws[i] = capitalize(ws[i])
	}
	return strings.Join(ws, "")
}

// Pascal converts s to PascalCase.
func Pascal(s string) string {
	ws := words(s)
	for i := range ws {
		ws[i] = capitalize(ws[i])
	}
	return strings.Join(ws, "")
}

// Constant converts s to CONSTANT_CASE.
func Constant(s string) string {
	return strings.ToUpper(strings.Join(words(s), "_"))
}

// Kebab converts s to kebab-case.
func Kebab(s string) string {
	return strings.Join(words(s), "-")
}

// Header converts s to Header-Case, the conventional spelling of HTTP
// header names.
func Header(s string) string {
	ws := words(s)
	for i := range ws {
		ws[i] = capitalize(ws[i])
	}
	return strings.Join(ws, "-")
}

// words splits s into lower-case tokens.
func words(s string) []string {
	runes := []rune(s)
	var (
		out     []string
		current []rune
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if !isAlnum(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsLower(prev) || unicode.IsDigit(prev):
				flush()
			case unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				// "HTTPResponse": R starts a new word.
				flush()
			}
		}
		current = append(current, r)
	}
	flush()
	return out
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func capitalize(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if r == utf8.RuneError {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
