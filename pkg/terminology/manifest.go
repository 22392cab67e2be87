package terminology

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/accura-health/terminology/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Manifest binds the bulk-load CSV sources to the columns the loader
// consumes. Defaults match the national terminology export headers.
type Manifest struct {
	Codes struct {
		Path    string `yaml:"path"`
		Columns struct {
			Code       string `yaml:"code"`
			Term       string `yaml:"term"`
			Definition string `yaml:"definition"`
		} `yaml:"columns"`
	} `yaml:"codes"`
	Mappings struct {
		Path    string `yaml:"path"`
		Columns struct {
			Source  string `yaml:"source"`
			Target  string `yaml:"target"`
			Display string `yaml:"display"`
		} `yaml:"columns"`
	} `yaml:"mappings"`
}

func DefaultManifest() Manifest {
	var m Manifest
	m.Codes.Path = "data/NAMASTE.csv"
	m.Codes.Columns.Code = "NAMC_CODE"
	m.Codes.Columns.Term = "NAMC_term"
	m.Codes.Columns.Definition = "short_definition"
	m.Mappings.Path = "data/ayurveda_icd_match.csv"
	m.Mappings.Columns.Source = "ayurveda_code"
	m.Mappings.Columns.Target = "icd_code"
	m.Mappings.Columns.Display = "icd_title"
	return m
}

func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultManifest(), err
	}
	m := DefaultManifest()
	if err := yaml.Unmarshal(content, &m); err != nil {
		return Manifest{}, err
	}
	if m.Codes.Path == "" || m.Mappings.Path == "" {
		return Manifest{}, fmt.Errorf("manifest missing source paths")
	}
	return m, nil
}

// CodeRow extracts a bulk-load code row from a header-keyed CSV record.
func (m Manifest) CodeRow(record map[string]string) models.CodeRow {
	return models.CodeRow{
		Code:            record[m.Codes.Columns.Code],
		Term:            record[m.Codes.Columns.Term],
		ShortDefinition: record[m.Codes.Columns.Definition],
	}
}

// MappingRow extracts a bulk-load mapping row from a header-keyed CSV
// record.
func (m Manifest) MappingRow(record map[string]string) models.MappingRow {
	return models.MappingRow{
		SourceCode:    record[m.Mappings.Columns.Source],
		TargetCode:    record[m.Mappings.Columns.Target],
		TargetDisplay: record[m.Mappings.Columns.Display],
	}
}
