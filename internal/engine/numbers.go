package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// rsync formats numbers with the process locale: integers may carry
// thousands grouping (`1,234,567` or `1.234.567`), decimals may use a comma
// as the fractional separator (`1.234,56` or plain `1,234`). A naive parse
// silently corrupts statistics, so both encodings are normalized here.

// parseGroupedInt parses an integer, stripping any grouping separators.
func parseGroupedInt(s string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', '\'', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", s, err)
	}
	return n, nil
}

// parseDecimal parses a floating-point value, accepting either a period or
// a comma as the fractional separator. When both appear, the rightmost one
// is the fractional separator and the other is grouping.
func parseDecimal(s string) (float64, error) {
	v := strings.TrimSpace(s)

	lastComma := strings.LastIndexByte(v, ',')
	lastPeriod := strings.LastIndexByte(v, '.')

	switch {
	case lastComma >= 0 && lastPeriod >= 0:
		if lastComma > lastPeriod {
			// 1.234,56 — periods group, comma is the decimal point.
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			// 1,234.56 — commas group.
			v = strings.ReplaceAll(v, ",", "")
		}
	case lastComma >= 0:
		// Single separator kind: treat the comma as a decimal point.
		if strings.Count(v, ",") > 1 {
			v = strings.ReplaceAll(v, ",", "")
		} else {
			v = strings.Replace(v, ",", ".", 1)
		}
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return f, nil
}
