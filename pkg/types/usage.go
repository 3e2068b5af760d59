package types

import "time"

// UsageSnapshot is a point-in-time view of the daily quota ledger.
type UsageSnapshot struct {
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Reserve   int64     `json:"reserve"`
	Remaining int64     `json:"remaining"`
	Percent   float64   `json:"percent"`
	ResetAt   time.Time `json:"reset_at"`
}

// ProviderWindow is a point-in-time view of one provider's rate window.
type ProviderWindow struct {
	Provider     string `json:"provider"`
	Requests     int64  `json:"requests"`
	RequestLimit int64  `json:"request_limit"`
	SizeUnits    int64  `json:"size_units"`
	SizeLimit    int64  `json:"size_limit"`
}

// CallerUsage is a point-in-time view of one caller's quota windows.
type CallerUsage struct {
	CallerID    string `json:"caller_id"`
	HourlyUnits int64  `json:"hourly_units"`
	HourlyLimit int64  `json:"hourly_limit"`
	DailyUnits  int64  `json:"daily_units"`
	DailyLimit  int64  `json:"daily_limit"`
}
