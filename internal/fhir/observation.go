// Package fhir maps sensor events onto FHIR R4 Observation resources so the
// reporting and dashboard collaborators consume a standardized shape.
package fhir

import (
	"fmt"
	"sync/atomic"

	"roommon/internal/model"
)

type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	System string  `json:"system"`
	Code   string  `json:"code"`
}

type Reference struct {
	Reference string `json:"reference"`
	Display   string `json:"display,omitempty"`
}

type Component struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity *Quantity       `json:"valueQuantity,omitempty"`
	ValueBoolean  *bool           `json:"valueBoolean,omitempty"`
	ValueInteger  *int            `json:"valueInteger,omitempty"`
	ValueString   *string         `json:"valueString,omitempty"`
}

type Observation struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Category          []CodeableConcept `json:"category"`
	Code              CodeableConcept   `json:"code"`
	Subject           *Reference        `json:"subject,omitempty"`
	EffectiveDateTime string            `json:"effectiveDateTime"`
	Issued            string            `json:"issued"`
	Component         []Component       `json:"component"`
	Interpretation    []CodeableConcept `json:"interpretation,omitempty"`
}

const (
	systemLOINC          = "http://loinc.org"
	systemSNOMED         = "http://snomed.info/sct"
	systemUCUM           = "http://unitsofmeasure.org"
	systemInterpretation = "http://terminology.hl7.org/CodeSystem/v3-ObservationInterpretation"
	systemObsCategory    = "http://terminology.hl7.org/CodeSystem/observation-category"
)

// Builder assigns observation ids. Persisted events reuse their storage
// sequence so the id is stable across queries; unpersisted events get the
// builder's own monotonic counter under a "u" prefix, keeping the two
// sequences in disjoint namespaces so ids never collide within a second.
type Builder struct {
	subject *Reference
	seq     atomic.Int64
}

func NewBuilder(roomRef, roomDisplay string) *Builder {
	b := &Builder{}
	if roomRef != "" {
		b.subject = &Reference{Reference: roomRef, Display: roomDisplay}
	}
	return b
}

// Build converts one sensor event into its Observation record. Pure apart
// from the fallback sequence; the same persisted event always yields the
// same resource.
func (b *Builder) Build(ev model.SensorEvent) Observation {
	var id string
	if ev.ID != 0 {
		id = fmt.Sprintf("observation-%d-%d", ev.Reading.Timestamp.Unix(), ev.ID)
	} else {
		id = fmt.Sprintf("observation-%d-u%d", ev.Reading.Timestamp.Unix(), b.seq.Add(1))
	}
	ts := ev.Reading.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")

	motion := ev.Reading.Motion
	sound := ev.Reading.SoundLevel

	components := []Component{
		{
			Code: CodeableConcept{
				Coding: []Coding{{System: systemLOINC, Code: "8310-5", Display: "Body temperature"}},
				Text:   "Room Temperature",
			},
			ValueQuantity: &Quantity{
				Value:  ev.Reading.Temperature,
				Unit:   "Cel",
				System: systemUCUM,
				Code:   "Cel",
			},
		},
		{
			Code: CodeableConcept{
				Coding: []Coding{{System: systemSNOMED, Code: "52821000", Display: "Motion detected"}},
				Text:   "Motion Sensor",
			},
			ValueBoolean: &motion,
		},
		{
			Code: CodeableConcept{
				Coding: []Coding{{System: systemLOINC, Code: "89020-2", Display: "Sound level"}},
				Text:   "Ambient Sound Level",
			},
			ValueInteger: &sound,
		},
	}

	var interpretation []CodeableConcept
	if ev.Alert != model.AlertNone {
		tag := ev.Alert.Tag()
		components = append(components, Component{
			Code: CodeableConcept{
				Coding: []Coding{{System: systemInterpretation, Code: "AA", Display: "Critical abnormal"}},
				Text:   "Alert Status",
			},
			ValueString: &tag,
		})
		text := "Possible fall detected"
		if ev.Alert == model.AlertInactivity {
			text = "Patient inactivity alert"
		}
		interpretation = []CodeableConcept{{
			Coding: []Coding{{System: systemInterpretation, Code: "AA", Display: "Critical abnormal"}},
			Text:   text,
		}}
	}

	return Observation{
		ResourceType: "Observation",
		ID:           id,
		Status:       "final",
		Category: []CodeableConcept{{
			Coding: []Coding{{System: systemObsCategory, Code: "vital-signs", Display: "Vital Signs"}},
		}},
		Code: CodeableConcept{
			Coding: []Coding{{System: systemLOINC, Code: "85353-1", Display: "Vital signs panel"}},
			Text:   "Patient Room Monitoring Panel",
		},
		Subject:           b.subject,
		EffectiveDateTime: ts,
		Issued:            ts,
		Component:         components,
		Interpretation:    interpretation,
	}
}
