// Package evidence defines the structured measurement records the evaluator
// scores promises against, and the sources that produce them. The core never
// fetches evidence itself — it is handed a Bundle already resolved for a
// principal and interval.
package evidence

import "time"

// HeartRateSample is one timestamped heart rate reading.
type HeartRateSample struct {
	Timestamp time.Time `json:"timestamp"`
	BPM       int       `json:"bpm"`
	Source    string    `json:"source,omitempty"`
}

// ExerciseSession is one recorded workout.
type ExerciseSession struct {
	Start        time.Time `json:"start_time"`
	End          time.Time `json:"end_time"`
	ActivityType string    `json:"activity_type,omitempty"`
}

// ElevatedPeriod is a continuous stretch of elevated heart rate.
type ElevatedPeriod struct {
	Start            time.Time `json:"start_time"`
	DurationMinutes  int       `json:"duration_minutes"`
	AverageHeartRate int       `json:"average_heart_rate"`
}

// ActivitySummary aggregates interval-level activity measures.
type ActivitySummary struct {
	ActiveZoneMinutes int `json:"active_zone_minutes"`
}

// Bundle is the full measurement record set for one principal over one
// interval.
type Bundle struct {
	Principal       string            `json:"principal"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	HeartRate       []HeartRateSample `json:"heart_rate_data"`
	Sessions        []ExerciseSession `json:"exercise_sessions"`
	ElevatedPeriods []ElevatedPeriod  `json:"elevated_hr_periods"`
	Summary         ActivitySummary   `json:"summary"`
}
