package models

// DailyStats is the number of records created on one calendar day.
type DailyStats struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
