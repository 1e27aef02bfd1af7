package codec

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder is the positional parameter syntax understood by the driver.
type Placeholder int

const (
	// Dollar is the PostgreSQL style: $1, $2, ...
	Dollar Placeholder = iota
	// Question is the ? style used by drivers without numbered parameters.
	Question
)

// ErrPlaceholderMismatch is returned when the values supplied with a
// statement do not line up with the placeholders in its text.
var ErrPlaceholderMismatch = errors.New("placeholder count does not match supplied values")

var (
	dollarParam = regexp.MustCompile(`(^|[^\w$])\$(\d+)`)
	returningKw = regexp.MustCompile(`(?i)\bRETURNING\b`)
)

// ParsePlaceholder maps a config value to a Placeholder.
func ParsePlaceholder(s string) (Placeholder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dollar", "$":
		return Dollar, nil
	case "question", "?":
		return Question, nil
	default:
		return Dollar, fmt.Errorf("unknown placeholder style %q", s)
	}
}

func (p Placeholder) String() string {
	if p == Question {
		return "question"
	}
	return "dollar"
}

// Format renders the n-th (1-based) placeholder.
func (p Placeholder) Format(n int) string {
	if p == Question {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Mask returns a copy of query where string literals, quoted identifiers,
// dollar-quoted bodies and comments are replaced by spaces. Byte offsets are
// preserved so matches on the masked text can slice the original.
func Mask(query string) string {
	return mask(query, false, ' ')
}

// MaskLiterals leaves double-quoted identifiers in place and fills string
// literals and dollar-quoted bodies with '_' instead of spaces, so a literal
// at the end of a clause is not mistaken for trailing whitespace. Comments
// are still blanked.
func MaskLiterals(query string) string {
	return mask(query, true, '_')
}

func mask(query string, keepIdents bool, fill byte) string {
	b := []byte(query)
	n := len(b)
	blankWith := func(from, to int, with byte) {
		for k := from; k < to && k < n; k++ {
			if with != ' ' || b[k] != '\n' {
				b[k] = with
			}
		}
	}
	blank := func(from, to int) { blankWith(from, to, ' ') }
	for i := 0; i < n; {
		c := b[i]
		switch {
		case c == '\'' || c == '"':
			escapes := c == '\'' && isEscapePrefix(b, i)
			j := i + 1
			for j < n {
				if escapes && b[j] == '\\' {
					j += 2
					continue
				}
				if b[j] == c {
					if j+1 < n && b[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if c == '\'' {
				blankWith(i, j+1, fill)
			} else if !keepIdents {
				blank(i, j+1)
			}
			i = j + 1
		case c == '-' && i+1 < n && b[i+1] == '-':
			j := i
			for j < n && b[j] != '\n' {
				j++
			}
			blank(i, j)
			i = j
		case c == '/' && i+1 < n && b[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			j := n
			if end >= 0 {
				j = i + 2 + end + 2
			}
			blank(i, j)
			i = j
		case c == '$' && (i == 0 || !isIdent(b[i-1])):
			tagEnd := dollarTagEnd(query, i)
			if tagEnd < 0 {
				i++
				continue
			}
			tag := query[i : tagEnd+1]
			body := strings.Index(query[tagEnd+1:], tag)
			j := n
			if body >= 0 {
				j = tagEnd + 1 + body + len(tag)
			}
			blankWith(i, j, fill)
			i = j
		default:
			i++
		}
	}
	return string(b)
}

// dollarTagEnd reports the index of the closing '$' of a dollar-quote tag
// starting at i, or -1 when the '$' at i is not a dollar quote (e.g. $1).
func dollarTagEnd(query string, i int) int {
	j := i + 1
	if j < len(query) && query[j] == '$' {
		return j
	}
	if j >= len(query) || !(isLetter(query[j]) || query[j] == '_') {
		return -1
	}
	for j < len(query) && isIdent(query[j]) {
		j++
	}
	if j < len(query) && query[j] == '$' {
		return j
	}
	return -1
}

// isEscapePrefix reports whether the quote at i opens an E'...' string, where
// a backslash escapes the next byte.
func isEscapePrefix(b []byte, i int) bool {
	if i == 0 || (b[i-1] != 'E' && b[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdent(b[i-2])
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// CountPlaceholders returns the number of parameters the query expects: the
// highest $N index for Dollar, the number of ? marks for Question.
func CountPlaceholders(query string, style Placeholder) int {
	masked := Mask(query)
	if style == Question {
		return strings.Count(masked, "?")
	}
	max := 0
	for _, m := range dollarParam.FindAllStringSubmatch(masked, -1) {
		n, err := strconv.Atoi(m[2])
		if err == nil && n > max {
			max = n
		}
	}
	return max
}

// CheckPlaceholders fails with ErrPlaceholderMismatch when the query does
// not expect exactly n values.
func CheckPlaceholders(query string, style Placeholder, n int) error {
	want := CountPlaceholders(query, style)
	if want != n {
		return fmt.Errorf("%w: statement expects %d, got %d", ErrPlaceholderMismatch, want, n)
	}
	return nil
}

// HasReturning reports whether the statement carries a RETURNING clause
// outside of literals and comments.
func HasReturning(query string) bool {
	return returningKw.MatchString(Mask(query))
}
