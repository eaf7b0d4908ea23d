package atlas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/scottfultz/cartographer-sub007/internal/models"
)

// schemaSample returns the record type a dataset's schema is generated
// from
func schemaSample(dataset string) (interface{}, bool) {
	switch dataset {
	case models.DatasetPages:
		return &models.PageRecord{}, true
	case models.DatasetEdges:
		return &models.EdgeRecord{}, true
	case models.DatasetAssets:
		return &models.AssetRecord{}, true
	case models.DatasetErrors:
		return &models.ErrorRecord{}, true
	case models.DatasetEvents:
		return &models.EventRecord{}, true
	case models.DatasetAccessibility:
		return &models.AccessibilityRecord{}, true
	case models.DatasetProvenance:
		return &models.ProvenanceRecord{}, true
	}
	return nil, false
}

// writeSchema generates the JSON Schema for a dataset and writes it to
// schemas/<dataset>.v1.schema.json under the staging directory. The
// returned URI is archive-relative.
func writeSchema(stagingDir, dataset string) (string, error) {
	sample, ok := schemaSample(dataset)
	if !ok {
		return "", fmt.Errorf("no schema for dataset %q", dataset)
	}

	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(sample)
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema for %s: %w", dataset, err)
	}

	dir := filepath.Join(stagingDir, "schemas")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create schemas directory: %w", err)
	}

	name := fmt.Sprintf("%s.%s.schema.json", dataset, models.DatasetVersion)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write schema for %s: %w", dataset, err)
	}
	return "schemas/" + name, nil
}
