package parser

import (
	"strings"
	"unicode"
)

// Repair rewrites almost-JSON into JSON. It quotes bare object keys, converts
// single-quoted strings, maps Python literals (True, False, None), drops
// trailing commas and closes unterminated strings, arrays and objects.
// Valid JSON is returned unchanged apart from whitespace-insensitive edits.
func Repair(text string) string {
	src := []rune(strings.TrimSpace(text))
	var out strings.Builder
	out.Grow(len(src) + 8)

	var stack []rune
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			i = copyString(src, i, &out)

		case c == '{' || c == '[':
			stack = append(stack, c)
			out.WriteRune(c)

		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			out.WriteRune(c)

		case c == ',':
			next := skipSpace(src, i+1)
			if next >= len(src) || src[next] == '}' || src[next] == ']' {
				continue
			}
			out.WriteRune(c)

		case c == '_' || unicode.IsLetter(c):
			end := i
			for end < len(src) && (src[end] == '_' || src[end] == '-' || unicode.IsLetter(src[end]) || unicode.IsDigit(src[end])) {
				end++
			}
			word := string(src[i:end])
			next := skipSpace(src, end)
			switch {
			case next < len(src) && src[next] == ':':
				out.WriteString(`"` + word + `"`)
			case word == "True":
				out.WriteString("true")
			case word == "False":
				out.WriteString("false")
			case word == "None":
				out.WriteString("null")
			default:
				out.WriteString(word)
			}
			i = end - 1

		default:
			out.WriteRune(c)
		}
	}

	for j := len(stack) - 1; j >= 0; j-- {
		if stack[j] == '{' {
			out.WriteRune('}')
		} else {
			out.WriteRune(']')
		}
	}
	return out.String()
}

// copyString writes the string literal starting at src[start] as a
// double-quoted JSON string and returns the index of its closing quote.
// An unterminated string is closed at the end of input.
func copyString(src []rune, start int, out *strings.Builder) int {
	quote := src[start]
	out.WriteRune('"')

	i := start + 1
	for ; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			if quote == '\'' && src[i+1] == '\'' {
				out.WriteRune('\'')
			} else {
				out.WriteRune(c)
				out.WriteRune(src[i+1])
			}
			i++
		case c == quote:
			out.WriteRune('"')
			return i
		case c == '"':
			out.WriteString(`\"`)
		case c == '\n':
			out.WriteString(`\n`)
		default:
			out.WriteRune(c)
		}
	}

	out.WriteRune('"')
	return i
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && unicode.IsSpace(src[i]) {
		i++
	}
	return i
}
