// Package fhir provides the FHIR data structures the service emits: the
// diagnosis transaction bundle submitted to the clinical record sink and
// the Parameters resource returned by translate.
package fhir

import (
	"time"

	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/google/uuid"
)

const (
	SourceSystem = "NAMASTE"
	TargetSystem = "http://id.who.int/icd/release/11/mms"

	actCodeSystem = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
)

// Coding represents a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept represents a concept with text and codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference represents a reference to another resource.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Timestamp    string        `json:"timestamp"`
	Entry        []BundleEntry `json:"entry"`
}

type BundleEntry struct {
	FullURL  string        `json:"fullUrl"`
	Resource interface{}   `json:"resource"`
	Request  *EntryRequest `json:"request,omitempty"`
}

type EntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type Encounter struct {
	ResourceType string                 `json:"resourceType"`
	Status       string                 `json:"status"`
	Class        Coding                 `json:"class"`
	Subject      Reference              `json:"subject"`
	Participant  []EncounterParticipant `json:"participant,omitempty"`
}

type EncounterParticipant struct {
	Individual Reference `json:"individual"`
}

type Condition struct {
	ResourceType string          `json:"resourceType"`
	Subject      Reference       `json:"subject"`
	Code         CodeableConcept `json:"code"`
}

// NewDiagnosisBundle builds the transaction bundle for a confirmed
// diagnosis: an ambulatory encounter referencing the patient and the
// authenticated practitioner, and a condition carrying both the source and
// target codings for the same concept. Each entry gets a fresh urn:uuid
// identity.
func NewDiagnosisBundle(patientID, doctorID string, mapping models.CrossMapping) Bundle {
	encounter := Encounter{
		ResourceType: "Encounter",
		Status:       "finished",
		Class: Coding{
			System:  actCodeSystem,
			Code:    "AMB",
			Display: "ambulatory",
		},
		Subject: Reference{Reference: "Patient/" + patientID},
		Participant: []EncounterParticipant{
			{Individual: Reference{Reference: "Practitioner/" + doctorID}},
		},
	}

	condition := Condition{
		ResourceType: "Condition",
		Subject:      Reference{Reference: "Patient/" + patientID},
		Code: CodeableConcept{
			Text: mapping.TargetDisplay,
			Coding: []Coding{
				{System: SourceSystem, Code: mapping.SourceCode, Display: mapping.TargetDisplay},
				{System: TargetSystem, Code: mapping.TargetCode, Display: mapping.TargetDisplay},
			},
		},
	}

	return Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Entry: []BundleEntry{
			{
				FullURL:  "urn:uuid:" + uuid.NewString(),
				Resource: encounter,
				Request:  &EntryRequest{Method: "POST", URL: "Encounter"},
			},
			{
				FullURL:  "urn:uuid:" + uuid.NewString(),
				Resource: condition,
				Request:  &EntryRequest{Method: "POST", URL: "Condition"},
			},
		},
	}
}

type Parameters struct {
	ResourceType string      `json:"resourceType"`
	Parameter    []Parameter `json:"parameter"`
}

type Parameter struct {
	Name         string      `json:"name"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueCode    string      `json:"valueCode,omitempty"`
	ValueCoding  *Coding     `json:"valueCoding,omitempty"`
	Part         []Parameter `json:"part,omitempty"`
}

// TranslateResult renders a translate hit as a FHIR Parameters resource
// with the match equivalence and the target coding.
func TranslateResult(mapping models.CrossMapping) Parameters {
	matched := true
	return Parameters{
		ResourceType: "Parameters",
		Parameter: []Parameter{
			{Name: "result", ValueBoolean: &matched},
			{
				Name: "match",
				Part: []Parameter{
					{Name: "equivalence", ValueCode: mapping.Equivalence},
					{
						Name: "concept",
						ValueCoding: &Coding{
							System:  TargetSystem,
							Code:    mapping.TargetCode,
							Display: mapping.TargetDisplay,
						},
					},
				},
			},
		},
	}
}
