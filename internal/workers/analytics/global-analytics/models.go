// internal/workers/analytics/global-analytics/models.go
package globalanalytics

type Input struct {
	Token string `json:"token"`
	// From and To bound the range as ISO 8601 strings. Empty From falls
	// back to the configured default range; empty To means now.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type DailyVolume struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Output struct {
	From          string           `json:"from"`
	To            string           `json:"to"`
	TotalOutcomes int64            `json:"totalOutcomes"`
	Outcomes      map[string]int64 `json:"outcomes"`
	DailyVolume   []DailyVolume    `json:"dailyVolume"`
	AvgRating     float64          `json:"avgRating"`
}
