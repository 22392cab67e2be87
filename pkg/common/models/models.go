package models

import "time"

// Terminology records

type CodeRecord struct {
	Code            string `json:"code"`
	Term            string `json:"term"`
	ShortDefinition string `json:"short_definition,omitempty"`
}

type CrossMapping struct {
	SourceCode    string `json:"source_code"`
	TargetCode    string `json:"target_code"`
	TargetDisplay string `json:"target_display"`
	Equivalence   string `json:"equivalence"`
}

type DiagnosisRecord struct {
	ID            int64     `json:"id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	SourceCode    string    `json:"source_code"`
	SourceTerm    string    `json:"source_term"`
	TargetCode    string    `json:"target_code"`
	TargetDisplay string    `json:"target_display"`
	Timestamp     time.Time `json:"timestamp"`
}

// Bulk-load rows and counts

type CodeRow struct {
	Code            string `json:"code"`
	Term            string `json:"term"`
	ShortDefinition string `json:"short_definition"`
}

type MappingRow struct {
	SourceCode    string `json:"source_code"`
	TargetCode    string `json:"target_code"`
	TargetDisplay string `json:"target_display"`
}

// LoadResult reports a bulk load. Skipped counts rows rejected for
// referential or duplicate reasons; Malformed counts rows missing required
// fields. Neither aborts the batch.
type LoadResult struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`
}

// API payloads

type TranslateRequest struct {
	SourceCode string `json:"source_code"`
}

type ConfirmDiagnosisRequest struct {
	PatientID  string `json:"patient_id"`
	SourceCode string `json:"source_code"`
}

type UserResponse struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Event bus

type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
