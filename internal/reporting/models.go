package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// UserID is reserved for per-user scoping once call records carry an owner.
	UserID string `json:"user_id,omitempty"`
}

type CallsSummary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	TotalCalls    int `json:"total_calls"`
	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	CompletedCalls  int `json:"completed_calls"`
	MissedCalls     int `json:"missed_calls"`
	BusyCalls       int `json:"busy_calls"`
	RejectedCalls   int `json:"rejected_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	OtherCalls      int `json:"other_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
	MatchedCalls  int `json:"matched_calls"`
}
