package models

import "time"

// DatasetInput names an input dataset and its hash for lineage tracking
type DatasetInput struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// ProvenanceRecord describes who produced one dataset, from what inputs,
// with what parameters. Raw extractions have no inputs.
type ProvenanceRecord struct {
	Dataset     string            `json:"dataset"`
	Version     string            `json:"version"`
	Producer    Producer          `json:"producer"`
	CreatedAt   time.Time         `json:"created_at"`
	Inputs      []DatasetInput    `json:"inputs"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	RecordCount int64             `json:"record_count"`
	Hash        string            `json:"hash"`
}
