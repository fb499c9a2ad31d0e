package routemock

import (
	"regexp"
	"strings"
)

// compileGlob turns a URL glob into an anchored regular expression.
//
//	**  any run of characters, including '/'
//	*   any run of characters except '/'
//	{a,b} either alternative
//
// Everything else, '?' included, matches literally, as in Playwright route
// globs since 1.52.
func compileGlob(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	inGroup := false
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
		case '{':
			inGroup = true
			b.WriteString("(?:")
		case '}':
			if inGroup {
				inGroup = false
				b.WriteString(")")
			} else {
				b.WriteString(`\}`)
			}
		case ',':
			if inGroup {
				b.WriteString("|")
			} else {
				b.WriteString(",")
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
