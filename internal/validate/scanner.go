package validate

// balancedSpan locates the first top-level JSON object or array in s and the
// end of its matching close bracket. Brackets inside string literals are
// ignored using a small state machine (inString/escape) instead of a regex,
// so payloads containing "]" or "}" in free text scan correctly.
//
// Returns the start index, the index one past the closing bracket, and
// whether a complete balanced span was found. When no close is found, start
// still reports where the candidate span began (or -1 when s contains no
// opening bracket at all).
func balancedSpan(s string) (start, end int, ok bool) {
	start = -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			break
		}
	}
	if start == -1 {
		return -1, -1, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return start, -1, false
}
