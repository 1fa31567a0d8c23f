package gate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// normalizeDigits folds full-width digits and punctuation used inside numbers
// to ASCII and drops thousands separators
func normalizeDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r >= '０' && r <= '９':
			b.WriteRune('0' + (r - '０'))
		case r == '．':
			b.WriteRune('.')
		case r == ',' && i > 0 && i+1 < len(runes) && isASCIIDigit(runes[i-1]) && isASCIIDigit(runes[i+1]):
			// thousands separator
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// extractNumbers returns every decimal number written with digits
func extractNumbers(s string) []string {
	return numberPattern.FindAllString(normalizeDigits(s), -1)
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var zhDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '兩': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var zhUnits = map[rune]int{'十': 10, '百': 100, '千': 1000, '萬': 10000, '万': 10000}

func isZhNumeral(r rune) bool {
	_, digit := zhDigits[r]
	_, unit := zhUnits[r]
	return digit || unit || r == '點' || r == '点'
}

// zhNumbers returns the values of Chinese numeral runs of at least two characters.
// Single characters such as 一 are too common in ordinary speech to count.
func zhNumbers(s string) []string {
	var out []string
	var run []rune
	flush := func() {
		if len(run) >= 2 {
			if v, ok := parseZhNumeral(run); ok {
				out = append(out, v)
			}
		}
		run = run[:0]
	}
	for _, r := range s {
		if isZhNumeral(r) {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()
	return out
}

func parseZhNumeral(run []rune) (string, bool) {
	intPart, fracPart := run, []rune(nil)
	for i, r := range run {
		if r == '點' || r == '点' {
			intPart, fracPart = run[:i], run[i+1:]
			break
		}
	}
	if len(intPart) == 0 {
		return "", false
	}
	// 十五 is a number; 萬一 and 千萬 are words
	if unit, ok := zhUnits[intPart[0]]; ok && unit != 10 {
		return "", false
	}

	total, section, current, lastUnit := 0, 0, 0, 0
	for _, r := range intPart {
		if d, ok := zhDigits[r]; ok {
			if d == 0 {
				lastUnit = 1
			}
			current = d
			continue
		}
		unit, ok := zhUnits[r]
		if !ok {
			return "", false
		}
		if unit == 10000 {
			total += (section + current) * unit
			section, current, lastUnit = 0, 0, unit
			continue
		}
		if current == 0 {
			current = 1
		}
		section += current * unit
		current = 0
		lastUnit = unit
	}
	// 一百二 reads as 120, 一萬五 as 15000
	if current > 0 && lastUnit >= 100 {
		current *= lastUnit / 10
	}
	value := strconv.Itoa(total + section + current)

	if len(fracPart) > 0 {
		var frac strings.Builder
		for _, r := range fracPart {
			d, ok := zhDigits[r]
			if !ok {
				return "", false
			}
			frac.WriteByte(byte('0' + d))
		}
		value += "." + frac.String()
	}
	return value, true
}

// containsNumber reports whether want appears among numbers by numeric value
func containsNumber(numbers []string, want string) bool {
	wv, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return false
	}
	for _, n := range numbers {
		if v, err := strconv.ParseFloat(n, 64); err == nil && v == wv {
			return true
		}
	}
	return false
}

// contentLength counts runes that are neither whitespace, punctuation nor symbols
func contentLength(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		n++
	}
	return n
}

// containsToken matches token inside lowered text. Tokens that start with a
// letter must sit on word boundaries unless the text is written without spaces.
func containsToken(lowered, token string, cjk bool) bool {
	if cjk {
		return strings.Contains(lowered, token)
	}
	first := []rune(token)[0]
	if !unicode.IsLetter(first) {
		return strings.Contains(lowered, token)
	}

	for offset := 0; offset < len(lowered); {
		i := strings.Index(lowered[offset:], token)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(token)
		if boundaryBefore(lowered, start) && boundaryAfter(lowered, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := []rune(s[:i])
	last := r[len(r)-1]
	return !unicode.IsLetter(last) && !unicode.IsDigit(last)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	for _, r := range s[i:] {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return true
}

func normalizeForCompare(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
