package router

import (
	"html"
	"strings"

	"github.com/google/uuid"
)

func newReqID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func escape(s string) string { return html.EscapeString(s) }

// splitCommand separates "/cmd@bot rest" into the lowercased command word
// and the untouched remainder.
func splitCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word = text[1:]
	if i := strings.IndexAny(word, " \t\n\r"); i >= 0 {
		rest = strings.TrimSpace(word[i+1:])
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	return word, rest, word != ""
}

// tokenizeCommandLine splits command text into tokens while supporting quotes.
// Examples:
//
//	/cmd a "b c" 'd e'
func tokenizeCommandLine(s string) []string {
	var out []string
	for i := 0; ; {
		tok, next, ok := scanToken(s, i)
		if !ok {
			return out
		}
		out = append(out, tok)
		i = next
	}
}

// cutTokens reads up to n tokens from s and returns the remainder untouched,
// so job args keep their JSON quoting.
func cutTokens(s string, n int) (toks []string, rest string) {
	i := 0
	for len(toks) < n {
		tok, next, ok := scanToken(s, i)
		if !ok {
			return toks, ""
		}
		toks = append(toks, tok)
		i = next
	}
	return toks, strings.TrimSpace(s[i:])
}

// scanToken reads one token starting at s[i]. Quotes group words and a
// backslash escapes the next byte.
func scanToken(s string, i int) (tok string, next int, ok bool) {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if i >= len(s) {
		return "", i, false
	}
	var (
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	for ; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ:
			if ch == qChar {
				inQ = false
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			inQ = true
			qChar = ch
		case isSpace(ch):
			return buf.String(), i, true
		default:
			buf.WriteByte(ch)
		}
	}
	return buf.String(), i, true
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
