// Package ocr normalizes raw receipt fields read by the vision model.
package ocr

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// eraBase maps a Japanese era to the Gregorian year of its first year
var eraBase = map[string]int{
	"令和": 2018,
	"R":  2018,
	"平成": 1988,
	"H":  1988,
	"昭和": 1925,
	"S":  1925,
}

var (
	gregorianPattern = regexp.MustCompile(`^(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?$`)
	eraPattern       = regexp.MustCompile(`^(令和|平成|昭和|R|H|S)\s*(元|\d{1,2})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*日?$`)
	amountStrip      = regexp.MustCompile(`[,\s円¥\\()]|税込|税抜|合計`)

	// dotGrouped matches "1.200" style amounts where the dot groups thousands
	dotGrouped = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
)

// MaxAmount bounds a single receipt total so job sums cannot overflow
const MaxAmount int64 = 1_000_000_000_000

// ParseDate converts a printed receipt date into YYYY-MM-DD.
// Japanese era dates are converted to the Gregorian calendar.
func ParseDate(raw string) (string, bool) {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return "", false
	}
	s = strings.ToUpper(s)

	var year, month, day int
	if m := gregorianPattern.FindStringSubmatch(s); m != nil {
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
	} else if m := eraPattern.FindStringSubmatch(s); m != nil {
		eraYear := 1
		if m[2] != "元" {
			eraYear, _ = strconv.Atoi(m[2])
		}
		year = eraBase[m[1]] + eraYear
		month, _ = strconv.Atoi(m[3])
		day, _ = strconv.Atoi(m[4])
	} else {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// ParseAmount reads an amount from a JSON number or a printed string such as "¥1,200".
// The result is an integer in yen; fractional values are rounded.
func ParseAmount(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return roundAmount(num)
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	return ParseAmountString(str)
}

// ParseAmountString is ParseAmount for plain text
func ParseAmountString(raw string) (int64, bool) {
	s := amountStrip.ReplaceAllString(norm.NFKC.String(raw), "")
	if s == "" {
		return 0, false
	}
	if dotGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	num, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return roundAmount(num)
}

// PickTotal returns the largest readable amount among the candidates
func PickTotal(candidates ...json.RawMessage) (*int64, error) {
	var best *int64
	for _, c := range candidates {
		v, ok := ParseAmount(c)
		if !ok {
			continue
		}
		if best == nil || v > *best {
			val := v
			best = &val
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no readable amount among %d candidates", len(candidates))
	}
	return best, nil
}

func roundAmount(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	r := math.Round(v)
	if r < 0 || r > float64(MaxAmount) {
		return 0, false
	}
	return int64(r), true
}
