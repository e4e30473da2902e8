package anthropic

import (
	"encoding/json"
	"strings"
)

// extractJSON returns the first balanced JSON object in a model reply. When
// the reply is truncated mid-object the unbalanced remainder is returned for
// repair. The second result is false when the reply carries no object at all.
func extractJSON(reply string) (string, bool) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return reply[start : i+1], true
			}
		}
	}

	// Truncated reply; hand the open tail to the repairer.
	return reply[start:], true
}

// repairJSON fixes the defects model replies are known to carry: trailing
// commas before a closing bracket, unclosed brackets and braces, and trailing
// text after the object. Already-valid input is returned unchanged, which
// makes the repair idempotent.
func repairJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if json.Valid([]byte(raw)) {
		return raw
	}

	var out strings.Builder
	out.Grow(len(raw))

	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			trimTrailingComma(&out)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				out.WriteByte(c)
				return out.String()
			}
		}
		out.WriteByte(c)
	}

	// Truncated mid-string: close the string before closing brackets.
	if inString {
		out.WriteByte('"')
	}
	trimTrailingComma(&out)
	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteByte(stack[i])
	}
	return out.String()
}

// trimTrailingComma removes a trailing comma, and any whitespace around it,
// from the builder.
func trimTrailingComma(out *strings.Builder) {
	s := out.String()
	trimmed := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") {
		trimmed = strings.TrimRight(trimmed[:len(trimmed)-1], " \t\r\n")
	}
	if trimmed == s {
		return
	}
	out.Reset()
	out.WriteString(trimmed)
}
