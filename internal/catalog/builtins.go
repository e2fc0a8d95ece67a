package catalog

import "log"

// SeedBuiltins loads the built-in promise templates. These mirror the
// templates the platform launched with; deployments add their own on top.
func (c *Catalog) SeedBuiltins(tok AdminToken) {
	builtins := []struct {
		name        string
		promiseType string
		defaults    map[string]string
	}{
		{
			name:        "Exercise Frequency",
			promiseType: TypeExerciseFrequency,
			defaults: map[string]string{
				"frequency": "3",
				"period":    "week",
			},
		},
		{
			name:        "Exercise Duration",
			promiseType: TypeExerciseDuration,
			defaults: map[string]string{
				"heart_rate_threshold": "120",
				"duration_minutes":     "25",
				"frequency":            "1",
				"period":               "week",
			},
		},
		{
			name:        "Exercise Consistency",
			promiseType: TypeExerciseConsistency,
			defaults: map[string]string{
				"max_gap_days": "7",
			},
		},
		{
			name:        "Active Zone Minutes",
			promiseType: TypeActiveZoneMinutes,
			defaults: map[string]string{
				"target_active_zone_minutes": "150",
				"promise_period_days":        "7",
			},
		},
	}

	for _, b := range builtins {
		if _, err := c.CreateTemplate(tok, b.name, b.promiseType, b.defaults); err != nil {
			log.Printf("[Catalog] failed to seed builtin %q: %v", b.name, err)
		}
	}
}
