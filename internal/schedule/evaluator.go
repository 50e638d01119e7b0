// Package schedule evaluates cron expressions in a named timezone (§4.3).
// Wraps github.com/robfig/cron/v3, a real dependency attested in this
// retrieval pack's manifests (see DESIGN.md), behind a narrow interface so
// the specific parser implementation stays an out-of-scope detail per
// spec.md §1.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

var (
	minuteParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	secondParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// Evaluator computes the next fire instant of a cron expression in a named
// timezone. It is reentrant and holds no mutable state, so a single
// Evaluator may be shared across goroutines and called at least once per
// active configuration per poll cycle (§4.3).
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

func fieldCount(expr string) int {
	n := 0
	inField := false
	for _, r := range expr {
		if r == ' ' || r == '\t' {
			inField = false
			continue
		}
		if !inField {
			n++
			inField = true
		}
	}
	return n
}

func parse(expr string) (cron.Schedule, error) {
	if fieldCount(expr) >= 6 {
		return secondParser.Parse(expr)
	}
	return minuteParser.Parse(expr)
}

// IsValidCron reports whether expr parses as a 5- or 6-field cron
// expression.
func (e *Evaluator) IsValidCron(expr string) bool {
	_, err := parse(expr)
	return err == nil
}

// IsValidTimezone reports whether tz resolves via the system tzdata.
func (e *Evaluator) IsValidTimezone(tz string) bool {
	_, err := time.LoadLocation(tz)
	return err == nil
}

// NoneSentinel is returned by Next when the expression never fires again.
// robfig/cron expressions are periodic and in practice always produce a
// next time, but the zero time is reserved as the "none" sentinel the
// spec.md contract requires callers to check for.
var NoneSentinel = time.Time{}

// Next returns, in UTC, the next instant strictly after ref at which expr
// fires when interpreted in the timezone tz. If the expression never fires
// again, it returns (NoneSentinel, false, nil).
func (e *Evaluator) Next(expr, tz string, ref time.Time) (time.Time, bool, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return NoneSentinel, false, err
	}
	sched, err := parse(expr)
	if err != nil {
		return NoneSentinel, false, err
	}
	local := ref.In(loc)
	next := sched.Next(local)
	if next.IsZero() {
		return NoneSentinel, false, nil
	}
	return next.UTC(), true, nil
}
