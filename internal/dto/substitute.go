package dto

import "github.com/noah-isme/campus-timetable-api/internal/models"

// SubstituteResponse reports the outcome of a substitution. Success=false with a
// message is a normal answer when no colleague qualifies.
type SubstituteResponse struct {
	Success         bool                         `json:"success"`
	SubstituteID    string                       `json:"substituteId,omitempty"`
	Entry           *models.TimetableEntry       `json:"entry,omitempty"`
	Absence         models.Absence               `json:"absence"`
	Candidates      []models.SubstituteCandidate `json:"candidates"`
	StaleReferences []models.StaleReference      `json:"staleReferences,omitempty"`
	Message         string                       `json:"message"`
}
