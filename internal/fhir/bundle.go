package fhir

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"roommon/internal/model"
)

type BundleEntry struct {
	FullURL  string      `json:"fullUrl"`
	Resource Observation `json:"resource"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Total        int           `json:"total"`
	Timestamp    string        `json:"timestamp"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleOf wraps a list of events into a searchset bundle.
func (b *Builder) BundleOf(events []model.SensorEvent, baseURL string) Bundle {
	entries := make([]BundleEntry, 0, len(events))
	for _, ev := range events {
		obs := b.Build(ev)
		entries = append(entries, BundleEntry{
			FullURL:  fmt.Sprintf("%s/Observation/%s", baseURL, obs.ID),
			Resource: obs,
		})
	}
	return Bundle{
		ResourceType: "Bundle",
		ID:           uuid.NewString(),
		Type:         "searchset",
		Total:        len(entries),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Entry:        entries,
	}
}
