package engine

import (
	"regexp"
	"strings"
)

// Currency phrases are not Starlark. They are rewritten into builtin calls:
//
//	12.5 EUR         -> money(12.5, "EUR")
//	<expr> to GBP    -> convert(<expr>, "GBP")
//
// A number followed by an identifier is never valid Starlark, and neither is
// "to" between two operands, so the rewrite only touches input that would
// otherwise fail to parse.
var (
	amountPattern  = regexp.MustCompile(`(^|[^\w.])(\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)[ \t]*([A-Z]{3})\b`)
	convertPattern = regexp.MustCompile(`^(.*\S)[ \t]+to[ \t]+([A-Z]{3})[ \t]*$`)
	assignPattern  = regexp.MustCompile(`^[ \t]*[A-Za-z_]\w*[ \t]*=[ \t]*[^= \t]`)
)

func lower(src string) string {
	masked := maskLiterals(src)
	var b strings.Builder
	last := 0
	for _, m := range amountPattern.FindAllStringSubmatchIndex(masked, -1) {
		b.WriteString(src[last:m[4]])
		b.WriteString("money(")
		b.WriteString(src[m[4]:m[5]])
		b.WriteString(`, "`)
		b.WriteString(src[m[6]:m[7]])
		b.WriteString(`")`)
		last = m[7]
	}
	b.WriteString(src[last:])
	src = b.String()

	trimmed := strings.TrimRight(src, " \t\r\n")
	if strings.ContainsAny(trimmed, "\n") {
		return src
	}
	m := convertPattern.FindStringSubmatchIndex(maskLiterals(trimmed))
	if m == nil {
		return src
	}
	lhs, code := trimmed[m[2]:m[3]], trimmed[m[4]:m[5]]
	prefix := ""
	// "x = a to EUR" converts a and binds the result
	if a := assignPattern.FindStringIndex(maskLiterals(lhs)); a != nil {
		prefix, lhs = lhs[:a[1]-1], lhs[a[1]-1:]
	}
	return prefix + `convert(` + lhs + `, "` + code + `")`
}

// maskLiterals blanks out string literal contents and comments with '_' so the
// patterns above only see code. The result has the same length as src.
func maskLiterals(src string) string {
	b := []byte(src)
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case '#':
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = '_'
			}
		case '\'', '"':
			q := b[i]
			triple := i+2 < len(b) && b[i+1] == q && b[i+2] == q
			if triple {
				i += 2
			}
			for i++; i < len(b); i++ {
				if b[i] == '\\' && i+1 < len(b) {
					b[i], b[i+1] = '_', '_'
					i++
					continue
				}
				if b[i] == q {
					if !triple {
						break
					}
					if i+2 < len(b) && b[i+1] == q && b[i+2] == q {
						i += 2
						break
					}
				}
				if b[i] == '\n' && !triple {
					break
				}
				b[i] = '_'
			}
		}
	}
	return string(b)
}
