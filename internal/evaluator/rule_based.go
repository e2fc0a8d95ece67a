package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/selfpromise/backend/internal/evidence"
)

// RuleBased scores promises with deterministic criteria. Each supported
// promise type has its own handler; the verdict carries full confidence
// because nothing is estimated.
type RuleBased struct{}

// NewRuleBased returns the deterministic evaluator.
func NewRuleBased() *RuleBased { return &RuleBased{} }

func (r *RuleBased) Name() string { return "rule_based" }

// Evaluate dispatches on the promise type. Unknown types are not an error:
// they produce an unfulfilled verdict with zero confidence so the caller can
// still record something.
func (r *RuleBased) Evaluate(_ context.Context, p Params, ev evidence.Bundle) (Result, error) {
	switch p.PromiseType {
	case "exercise_frequency":
		return r.evaluateFrequency(p, ev), nil
	case "exercise_duration":
		return r.evaluateDuration(p, ev), nil
	case "exercise_consistency":
		return r.evaluateConsistency(p, ev), nil
	case "active_zone_minutes":
		return r.evaluateActiveZone(p, ev), nil
	default:
		return Result{
			Fulfilled:  false,
			Confidence: 0,
			Reasoning:  fmt.Sprintf("Unknown promise type: %s", p.PromiseType),
		}, nil
	}
}

// evaluateFrequency requires at least `frequency` sessions in every period
// of the promise window.
func (r *RuleBased) evaluateFrequency(p Params, ev evidence.Bundle) Result {
	frequency := intParam(p.Values, "frequency", 1)
	period := strParam(p.Values, "period", "week")

	starts := periodStarts(p.Start, p.End, period)
	counts := make(map[time.Time]int, len(starts))
	for _, s := range ev.Sessions {
		ps := periodStart(s.Start, period)
		if containsTime(starts, ps) {
			counts[ps]++
		}
	}

	fulfilledPeriods := 0
	periodDetails := make([]map[string]interface{}, 0, len(starts))
	for _, ps := range starts {
		n := counts[ps]
		ok := n >= frequency
		if ok {
			fulfilledPeriods++
		}
		periodDetails = append(periodDetails, map[string]interface{}{
			"period_start":   ps.Format(time.RFC3339),
			"sessions_count": n,
			"required_count": frequency,
			"fulfilled":      ok,
		})
	}

	total := len(starts)
	fulfilled := total > 0 && fulfilledPeriods == total

	return Result{
		Fulfilled:  fulfilled,
		Confidence: 100,
		Reasoning: fmt.Sprintf(
			"The promise required exercising %d times per %s. You met this requirement in %d out of %d %ss.",
			frequency, period, fulfilledPeriods, total, period),
		Details: map[string]interface{}{
			"periods":           periodDetails,
			"total_periods":     total,
			"fulfilled_periods": fulfilledPeriods,
		},
	}
}

// evaluateDuration requires `frequency` elevated-heart-rate stretches per
// period, each meeting the bpm threshold and minimum duration.
func (r *RuleBased) evaluateDuration(p Params, ev evidence.Bundle) Result {
	threshold := intParam(p.Values, "heart_rate_threshold", 120)
	minutes := intParam(p.Values, "duration_minutes", 25)
	frequency := intParam(p.Values, "frequency", 1)
	period := strParam(p.Values, "period", "week")

	var qualifying []evidence.ElevatedPeriod
	for _, ep := range ev.ElevatedPeriods {
		if ep.AverageHeartRate >= threshold && ep.DurationMinutes >= minutes {
			qualifying = append(qualifying, ep)
		}
	}

	starts := periodStarts(p.Start, p.End, period)
	counts := make(map[time.Time]int, len(starts))
	for _, ep := range qualifying {
		ps := periodStart(ep.Start, period)
		if containsTime(starts, ps) {
			counts[ps]++
		}
	}

	fulfilledPeriods := 0
	periodDetails := make([]map[string]interface{}, 0, len(starts))
	for _, ps := range starts {
		n := counts[ps]
		ok := n >= frequency
		if ok {
			fulfilledPeriods++
		}
		periodDetails = append(periodDetails, map[string]interface{}{
			"period_start":        ps.Format(time.RFC3339),
			"qualifying_sessions": n,
			"required_count":      frequency,
			"fulfilled":           ok,
		})
	}

	total := len(starts)
	fulfilled := total > 0 && fulfilledPeriods == total

	return Result{
		Fulfilled:  fulfilled,
		Confidence: 100,
		Reasoning: fmt.Sprintf(
			"The promise required exercising with a heart rate above %d bpm for at least %d minutes, %d times per %s. You met this requirement in %d out of %d %ss.",
			threshold, minutes, frequency, period, fulfilledPeriods, total, period),
		Details: map[string]interface{}{
			"periods":             periodDetails,
			"total_periods":       total,
			"fulfilled_periods":   fulfilledPeriods,
			"qualifying_sessions": len(qualifying),
		},
	}
}

// evaluateConsistency fails if any gap between consecutive sessions (or from
// window start to first session, or last session to window end) exceeds
// max_gap_days.
func (r *RuleBased) evaluateConsistency(p Params, ev evidence.Bundle) Result {
	maxGapDays := intParam(p.Values, "max_gap_days", 7)

	sessions := make([]evidence.ExerciseSession, len(ev.Sessions))
	copy(sessions, ev.Sessions)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Start.Before(sessions[j].Start) })

	var gaps []map[string]interface{}
	lastEnd := p.Start
	for _, s := range sessions {
		gapDays := int(s.Start.Sub(lastEnd).Hours() / 24)
		if gapDays > maxGapDays {
			gaps = append(gaps, map[string]interface{}{
				"gap_start": lastEnd.Format(time.RFC3339),
				"gap_end":   s.Start.Format(time.RFC3339),
				"gap_days":  gapDays,
			})
		}
		lastEnd = s.End
	}
	if finalGap := int(p.End.Sub(lastEnd).Hours() / 24); finalGap > maxGapDays {
		gaps = append(gaps, map[string]interface{}{
			"gap_start": lastEnd.Format(time.RFC3339),
			"gap_end":   p.End.Format(time.RFC3339),
			"gap_days":  finalGap,
		})
	}

	fulfilled := len(gaps) == 0
	reasoning := fmt.Sprintf("The promise required never going more than %d days without exercise. No gaps were found.", maxGapDays)
	if !fulfilled {
		reasoning = fmt.Sprintf("The promise required never going more than %d days without exercise. Found %d gaps exceeding %d days.", maxGapDays, len(gaps), maxGapDays)
	}

	return Result{
		Fulfilled:  fulfilled,
		Confidence: 100,
		Reasoning:  reasoning,
		Details: map[string]interface{}{
			"max_gap_days": maxGapDays,
			"gaps_found":   len(gaps),
			"gaps":         gaps,
		},
	}
}

// evaluateActiveZone compares aggregated active zone minutes against the
// target for the window.
func (r *RuleBased) evaluateActiveZone(p Params, ev evidence.Bundle) Result {
	target := intParam(p.Values, "target_active_zone_minutes", 0)
	achieved := ev.Summary.ActiveZoneMinutes

	if achieved >= target {
		return Result{
			Fulfilled:  true,
			Confidence: 100,
			Reasoning:  fmt.Sprintf("Promise fulfilled: Achieved %d out of %d target Active Zone Minutes.", achieved, target),
			Details:    map[string]interface{}{"achieved_azm": achieved, "target_azm": target},
		}
	}
	return Result{
		Fulfilled:  false,
		Confidence: 100,
		Reasoning: fmt.Sprintf("Promise not fulfilled: Achieved %d out of %d target Active Zone Minutes. Short by %d minutes.",
			achieved, target, target-achieved),
		Details: map[string]interface{}{"achieved_azm": achieved, "target_azm": target},
	}
}

func intParam(values map[string]string, key string, def int) int {
	if raw, ok := values[key]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func strParam(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok && v != "" {
		return v
	}
	return def
}

// periodStart truncates a time to the start of its containing period.
// Weeks start on Monday.
func periodStart(t time.Time, period string) time.Time {
	switch period {
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "week":
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return t
}

// periodStarts enumerates every period touching the half-open [start, end)
// window, in order.
func periodStarts(start, end time.Time, period string) []time.Time {
	var out []time.Time
	seen := make(map[time.Time]bool)
	for cur := start; cur.Before(end); {
		ps := periodStart(cur, period)
		if !seen[ps] {
			seen[ps] = true
			out = append(out, ps)
		}
		switch period {
		case "day":
			cur = cur.AddDate(0, 0, 1)
		case "week":
			cur = cur.AddDate(0, 0, 7)
		case "month":
			cur = time.Date(cur.Year(), cur.Month(), 1, 0, 0, 0, 0, cur.Location()).AddDate(0, 1, 0)
		default:
			return out
		}
	}
	return out
}

func containsTime(list []time.Time, t time.Time) bool {
	for _, x := range list {
		if x.Equal(t) {
			return true
		}
	}
	return false
}
