package domain

import "time"

// ResultStatus is the disposition a processor reports for one event.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultSkipped ResultStatus = "skipped"
	ResultRetry   ResultStatus = "retry"
)

// Failed reports whether the disposition makes the event eligible for retry.
func (s ResultStatus) Failed() bool {
	return s == ResultFailed || s == ResultRetry
}

// ProcessingResult is the outcome of one processor run against one event.
type ProcessingResult struct {
	EventID      string        `json:"event_id"`
	Processor    string        `json:"processor"`
	Status       ResultStatus  `json:"status"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
