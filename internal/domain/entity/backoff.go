package entity

import "time"

// retryDelays is the fixed retry delay table indexed by the post-increment
// retry count (1-based). Counts beyond the table reuse the last entry.
var retryDelays = [...]time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	60 * time.Minute,
}

// RetryDelay returns the delay before the retry numbered retryCount.
// Values below 1 are treated as 1.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > len(retryDelays) {
		retryCount = len(retryDelays)
	}
	return retryDelays[retryCount-1]
}
