package dto

import "time"

// ExportTimetableRequest selects the timetable and format to render.
type ExportTimetableRequest struct {
	Scope  string `json:"scope" validate:"required,oneof=batch faculty"`
	ID     string `json:"id" validate:"required"`
	Format string `json:"format" validate:"required,oneof=csv pdf xlsx ics"`
}

// ExportResult returns the signed download link of a rendered export.
type ExportResult struct {
	ExportID  string    `json:"exportId"`
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
