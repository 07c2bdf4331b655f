package cron

import (
	"errors"
	"fmt"

	robfig "github.com/robfig/cron/v3"
)

// standardParser is the stock 5-field parser. Expressions accepted here and
// by Parse behave the same in a system crontab, except for the day-of-month
// and day-of-week combination.
var standardParser = robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow)

// ErrDayFieldsAnded flags expressions restricting both day fields, where
// this package requires both to match while system cron accepts either.
var ErrDayFieldsAnded = errors.New("cron: day-of-month and day-of-week are both restricted and must both match")

// Validate checks expr against both the local subset and the standard cron
// grammar. A nil error means the expression is portable.
func Validate(expr string) error {
	e, err := Parse(expr)
	if err != nil {
		return err
	}
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: not accepted by standard cron: %w", ErrInvalidExpr, err)
	}
	if e.restricts(fieldDom) && e.restricts(fieldDow) {
		return ErrDayFieldsAnded
	}
	return nil
}

// restricts reports whether field i excludes at least one value.
func (e *Expr) restricts(i int) bool {
	for v := bounds[i][0]; v <= bounds[i][1]; v++ {
		if !e.fields[i].matches(v) {
			return true
		}
	}
	return false
}
