package entity

import "time"

// nextUpdatedAt returns a timestamp strictly greater than prev.
// If the wall clock has not advanced past prev, prev is bumped by one nanosecond.
func nextUpdatedAt(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Nanosecond)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
