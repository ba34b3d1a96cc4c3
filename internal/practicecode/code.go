package practicecode

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMinDigits is the minimum zero-padded width of the numeric suffix.
const DefaultMinDigits = 6

// Code is a formatted practice code: PREFIX-YYYY-NNNNNN.
// The padding is a minimum width, numbers past it are never truncated.
type Code struct {
	Prefix    string
	Year      int
	Number    int64
	MinDigits int
}

func (c Code) String() string {
	min := c.MinDigits
	if min <= 0 {
		min = DefaultMinDigits
	}
	return fmt.Sprintf("%s-%04d-%0*d", c.Prefix, c.Year, min, c.Number)
}

// ParseCode splits a formatted code into its parts. The prefix may itself contain dashes;
// the year and number are always the last two segments.
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	last := strings.LastIndex(s, "-")
	if last <= 0 {
		return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	mid := strings.LastIndex(s[:last], "-")
	if mid <= 0 {
		return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	yearPart, numPart := s[mid+1:last], s[last+1:]
	if len(yearPart) != 4 || numPart == "" {
		return Code{}, fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Code{}, fmt.Errorf("%w: year %q", ErrInvalidCode, yearPart)
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return Code{}, fmt.Errorf("%w: number %q", ErrInvalidCode, numPart)
	}
	return Code{Prefix: s[:mid], Year: year, Number: n, MinDigits: len(numPart)}, nil
}
