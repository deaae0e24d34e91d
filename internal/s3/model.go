package s3

import "time"

// Result summarizes one completed backup export.
type Result struct {
	Bucket    string        `json:"bucket"`
	Key       string        `json:"key"`
	Documents int           `json:"documents"`
	Bytes     int64         `json:"bytes"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
