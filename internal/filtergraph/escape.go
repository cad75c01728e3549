package filtergraph

import "strings"

// Drawtext text values are embedded in a single-quoted field of the filter
// expression grammar. Three metacharacters need neutralizing: backslash
// (the grammar's escape character), single quote (the field delimiter) and
// colon (the argument separator). Backslashes must be doubled first;
// running the quote or colon pass earlier would double-escape the
// backslashes those passes introduce.
const quoteSeq = `'\\\''`

// Escape prepares arbitrary user text for a drawtext text='...' field.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, quoteSeq)
	s = strings.ReplaceAll(s, `:`, `\:`)
	return s
}

// Unescape inverts Escape exactly, pass order reversed.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\:`, `:`)
	s = strings.ReplaceAll(s, quoteSeq, `'`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
