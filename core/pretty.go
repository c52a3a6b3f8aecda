package core

import (
	"strings"
)

// clause keywords that start a new line, two word ones are matched first
var clauseKeywords = map[string]bool{
	"SELECT":      true,
	"FROM":        true,
	"WHERE":       true,
	"AND":         true,
	"HAVING":      true,
	"GROUP BY":    true,
	"ORDER BY":    true,
	"LIMIT":       true,
	"OFFSET":      true,
	"VALUES":      true,
	"SET":         true,
	"RETURNING":   true,
	"LEFT JOIN":   true,
	"INSERT INTO": true,
	"DELETE FROM": true,
}

// Prettify breaks a compiled statement into one clause per line for display.
// Quoted identifiers and string literals are copied as they are.
func Prettify(text, dbType string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 64)

	backtick := strings.HasPrefix(strings.ToLower(dbType), "m")
	n := len(text)

	for i := 0; i < n; i++ {
		ch := text[i]

		if ch == '\'' || ch == '"' || (backtick && ch == '`') {
			j := quotedEnd(text, i)
			sb.WriteString(text[i:j])
			i = j - 1
			continue
		}

		if isWordChar(ch) && (i == 0 || !isWordChar(text[i-1])) {
			j := wordEnd(text, i)
			word := strings.ToUpper(text[i:j])

			// look ahead for a two word keyword
			if j < n && text[j] == ' ' {
				k := wordEnd(text, j+1)
				if pair := word + " " + strings.ToUpper(text[j+1:k]); k > j+1 && clauseKeywords[pair] {
					newClause(&sb, pair)
					i = k - 1
					continue
				}
			}
			if clauseKeywords[word] {
				newClause(&sb, word)
				i = j - 1
				continue
			}
		}

		if ch == ' ' && strings.HasSuffix(sb.String(), "\n") {
			continue
		}
		sb.WriteByte(ch)
	}
	return strings.TrimSpace(sb.String())
}

func newClause(sb *strings.Builder, kw string) {
	s := sb.String()
	if len(s) != 0 {
		if strings.HasSuffix(s, " ") {
			trimmed := strings.TrimRight(s, " ")
			sb.Reset()
			sb.WriteString(trimmed)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(kw)
}

// quotedEnd returns the index just past the quoted run starting at i. A
// doubled quote character is an escaped quote.
func quotedEnd(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}

func wordEnd(s string, i int) int {
	for i < len(s) && isWordChar(s[i]) {
		i++
	}
	return i
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
