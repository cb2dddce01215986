package main

import "time"

// formatRemaining renders how long until deadline, rounded to seconds and
// never negative.
func formatRemaining(now, deadline time.Time) string {
	left := deadline.Sub(now).Round(time.Second)
	if left < 0 {
		left = 0
	}
	return left.String()
}

// formatDate trims a stored "2006-01-02 15:04:05" timestamp to its day.
func formatDate(stamp string) string {
	if len(stamp) >= len("2006-01-02") {
		return stamp[:len("2006-01-02")]
	}
	return stamp
}
