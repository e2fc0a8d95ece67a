package evidence

import (
	"context"
	"math/rand"
	"time"
)

// Source supplies measurement records for a principal over an interval.
type Source interface {
	Fetch(ctx context.Context, principal string, start, end time.Time) (Bundle, error)
}

// StaticSource returns a fixed bundle. Used in tests and demos where the
// evidence is prepared ahead of time.
type StaticSource struct {
	Bundle Bundle
}

// Fetch returns the configured bundle with the requested window applied.
func (s *StaticSource) Fetch(_ context.Context, principal string, start, end time.Time) (Bundle, error) {
	b := s.Bundle
	b.Principal = principal
	b.Start = start
	b.End = end
	return b, nil
}

// MockSource generates plausible fitness data, seeded per principal so
// repeated fetches are stable. Stands in for the real fitness API during
// local development.
type MockSource struct{}

// Fetch synthesizes sessions and elevated periods across the interval.
func (m *MockSource) Fetch(_ context.Context, principal string, start, end time.Time) (Bundle, error) {
	rng := rand.New(rand.NewSource(int64(seed(principal))))

	b := Bundle{Principal: principal, Start: start, End: end}

	// 3-5 sessions per week, mornings, 30-60 minutes each
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}
	sessions := days / 7 * (3 + rng.Intn(3))
	if sessions < 1 {
		sessions = 1
	}

	for i := 0; i < sessions; i++ {
		day := rng.Intn(days)
		at := start.AddDate(0, 0, day).Add(time.Duration(7+rng.Intn(2)) * time.Hour)
		dur := 30 + rng.Intn(31)

		b.Sessions = append(b.Sessions, ExerciseSession{
			Start:        at,
			End:          at.Add(time.Duration(dur) * time.Minute),
			ActivityType: "run",
		})
		b.ElevatedPeriods = append(b.ElevatedPeriods, ElevatedPeriod{
			Start:            at,
			DurationMinutes:  dur,
			AverageHeartRate: 125 + rng.Intn(30),
		})
		b.Summary.ActiveZoneMinutes += dur
	}

	return b, nil
}

func seed(principal string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(principal); i++ {
		h ^= uint32(principal[i])
		h *= 16777619
	}
	return h
}
