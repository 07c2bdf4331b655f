// Package cron evaluates 5-field cron expressions (minute, hour, day of month,
// month, day of week) against wall-clock minutes.
//
// Supported atoms are "*", "*/step", "N", "lo-hi" and "lo-hi/step", combined
// with commas. Day of month and day of week are evaluated independently and
// both must match; there is no POSIX OR-ing when both are restricted.
package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpr is returned for expressions outside the supported subset.
var ErrInvalidExpr = errors.New("cron: invalid expression")

// Field positions within an expression.
const (
	fieldMinute = iota
	fieldHour
	fieldDom
	fieldMonth
	fieldDow
	fieldCount
)

var fieldNames = [fieldCount]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

// bounds holds the inclusive value range of each field.
var bounds = [fieldCount][2]int{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 6},
}

// atom is one comma-separated element of a field.
type atom struct {
	wildcard bool
	lo, hi   int
	step     int
}

func (a atom) matches(v int) bool {
	if a.wildcard {
		return v%a.step == 0
	}
	return v >= a.lo && v <= a.hi && (v-a.lo)%a.step == 0
}

type field []atom

func (f field) matches(v int) bool {
	for _, a := range f {
		if a.matches(v) {
			return true
		}
	}
	return false
}

// Expr is a parsed cron expression.
type Expr struct {
	raw    string
	fields [fieldCount]field
}

// Parse compiles expr. Whitespace between fields may be any run of spaces or tabs.
func Parse(expr string) (*Expr, error) {
	parts := strings.Fields(expr)
	if len(parts) != fieldCount {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrInvalidExpr, len(parts), expr)
	}

	e := &Expr{raw: expr}
	for i, part := range parts {
		f, err := parseField(part, bounds[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %w", ErrInvalidExpr, fieldNames[i], part, err)
		}
		e.fields[i] = f
	}
	return e, nil
}

func parseField(s string, bound [2]int) (field, error) {
	items := strings.Split(s, ",")
	f := make(field, 0, len(items))
	for _, item := range items {
		a, err := parseAtom(item, bound)
		if err != nil {
			return nil, err
		}
		f = append(f, a)
	}
	return f, nil
}

func parseAtom(s string, bound [2]int) (atom, error) {
	if s == "" {
		return atom{}, errors.New("empty list element")
	}

	body, stepStr, hasStep := strings.Cut(s, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepStr)
		if err != nil || n <= 0 {
			return atom{}, fmt.Errorf("bad step %q", stepStr)
		}
		step = n
	}

	if body == "*" {
		return atom{wildcard: true, step: step}, nil
	}

	loStr, hiStr, isRange := strings.Cut(body, "-")
	lo, err := parseValue(loStr, bound)
	if err != nil {
		return atom{}, err
	}
	if !isRange {
		if hasStep {
			return atom{}, fmt.Errorf("step requires a range or wildcard in %q", s)
		}
		return atom{lo: lo, hi: lo, step: 1}, nil
	}

	hi, err := parseValue(hiStr, bound)
	if err != nil {
		return atom{}, err
	}
	if lo > hi {
		return atom{}, fmt.Errorf("range %d-%d is reversed", lo, hi)
	}
	return atom{lo: lo, hi: hi, step: step}, nil
}

func parseValue(s string, bound [2]int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if n < bound[0] || n > bound[1] {
		return 0, fmt.Errorf("value %d outside %d-%d", n, bound[0], bound[1])
	}
	return n, nil
}

// String returns the expression as written.
func (e *Expr) String() string { return e.raw }

// Matches reports whether every field matches t. The fields of t are read
// as-is, so callers shift t into local coordinates first (see tz.Shift).
func (e *Expr) Matches(t time.Time) bool {
	return e.fields[fieldMinute].matches(t.Minute()) &&
		e.fields[fieldHour].matches(t.Hour()) &&
		e.fields[fieldDom].matches(t.Day()) &&
		e.fields[fieldMonth].matches(int(t.Month())) &&
		e.fields[fieldDow].matches(int(t.Weekday()))
}

// Matches parses expr and evaluates it against t. An expression that does
// not parse never matches.
func Matches(expr string, t time.Time) bool {
	e, err := Parse(expr)
	if err != nil {
		return false
	}
	return e.Matches(t)
}
