// Command terminology-ingest bulk-loads the code system and cross-mapping
// tables from the CSV sources named in a YAML manifest. Both loads are
// idempotent and safe to re-run; malformed and orphaned rows are skipped
// and counted, never fatal.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"path/filepath"

	"github.com/accura-health/terminology/pkg/common/database"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/terminology"
)

func main() {
	manifestPath := flag.String("manifest", "", "path to the source manifest (YAML); defaults apply when omitted")
	codesOnly := flag.Bool("codes-only", false, "load only the code system")
	mappingsOnly := flag.Bool("mappings-only", false, "load only the cross-mappings")
	flag.Parse()

	logger.Init()

	manifest, err := terminology.LoadManifest(*manifestPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load manifest")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	repo := terminology.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate terminology tables")
	}
	service := terminology.NewService(repo)

	ctx := context.Background()

	if !*mappingsOnly {
		records, err := readRecords(manifest.Codes.Path)
		if err != nil {
			logger.Log.WithError(err).WithField("path", manifest.Codes.Path).Fatal("failed to read code source")
		}
		rows := make([]models.CodeRow, 0, len(records))
		for _, record := range records {
			rows = append(rows, manifest.CodeRow(record))
		}
		result, err := service.BulkLoadCodes(ctx, rows)
		if err != nil {
			logger.Log.WithError(err).Fatal("code load failed")
		}
		logger.Log.WithFields(map[string]interface{}{
			"inserted":  result.Inserted,
			"skipped":   result.Skipped,
			"malformed": result.Malformed,
		}).Info("code system load complete")
	}

	if !*codesOnly {
		records, err := readRecords(manifest.Mappings.Path)
		if err != nil {
			logger.Log.WithError(err).WithField("path", manifest.Mappings.Path).Fatal("failed to read mapping source")
		}
		rows := make([]models.MappingRow, 0, len(records))
		for _, record := range records {
			rows = append(rows, manifest.MappingRow(record))
		}
		result, err := service.BulkLoadMappings(ctx, rows)
		if err != nil {
			logger.Log.WithError(err).Fatal("mapping load failed")
		}
		logger.Log.WithFields(map[string]interface{}{
			"inserted":  result.Inserted,
			"updated":   result.Updated,
			"skipped":   result.Skipped,
			"malformed": result.Malformed,
		}).Info("cross-mapping load complete")
	}
}

// readRecords reads a CSV file into ordered header-keyed rows. Short rows
// are padded with empty values rather than rejected; downstream validation
// decides what to skip.
func readRecords(path string) ([]map[string]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Log.WithError(err).Warn("skipping unreadable CSV row")
			continue
		}
		record := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			} else {
				record[name] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}
