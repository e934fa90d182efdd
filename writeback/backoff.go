package writeback

import "time"

// backoffSteps is indexed by completed attempts: first failure waits a
// minute, later ones stretch out and cap at an hour.
var backoffSteps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// NextRunAfter computes when a job that just finished its Nth attempt
// becomes eligible again.
func NextRunAfter(attempts int, now time.Time) time.Time {
	if attempts < 1 {
		attempts = 1
	}
	step := backoffSteps[len(backoffSteps)-1]
	if attempts <= len(backoffSteps) {
		step = backoffSteps[attempts-1]
	}
	return now.Add(step)
}
