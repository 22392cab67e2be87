// Package terminology owns the code system, its cross-mapping to the
// target coding system, and the diagnosis audit log. Bulk loads are
// idempotent: re-running with identical input converges to the same stored
// state.
package terminology

import (
	"context"
	"strings"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/observability/metrics"
)

// SearchLimit caps search results.
const SearchLimit = 15

// DefaultEquivalence is the conservative default for loaded mappings.
const DefaultEquivalence = "relatedto"

// Store is the persistence surface the service needs. The gorm Repository
// implements it; tests substitute an in-memory fake.
type Store interface {
	InsertCodeIfAbsent(ctx context.Context, rec models.CodeRecord) (bool, error)
	UpsertMapping(ctx context.Context, m models.CrossMapping) (bool, error)
	GetMapping(ctx context.Context, sourceCode string) (*models.CrossMapping, error)
	SearchCodes(ctx context.Context, term string, limit int) ([]models.CodeRecord, error)
	ListTerms(ctx context.Context) ([]string, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// BulkLoadCodes inserts each candidate code unless already present. Rows
// missing a code are counted as malformed and skipped; nothing aborts the
// batch short of the store itself failing.
func (s *Service) BulkLoadCodes(ctx context.Context, rows []models.CodeRow) (models.LoadResult, error) {
	var result models.LoadResult
	for _, row := range rows {
		code := strings.TrimSpace(row.Code)
		if code == "" {
			result.Malformed++
			continue
		}
		inserted, err := s.store.InsertCodeIfAbsent(ctx, models.CodeRecord{
			Code:            code,
			Term:            strings.TrimSpace(row.Term),
			ShortDefinition: strings.TrimSpace(row.ShortDefinition),
		})
		if err != nil {
			return result, err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}
	metrics.ObserveCodeLoad(result.Inserted, result.Skipped+result.Malformed)
	return result, nil
}

// BulkLoadMappings upserts each candidate mapping. Rows whose source code
// is absent from the code system fail individually with
// MappingError(OrphanSource) and are counted as skipped. A second run with
// identical input inserts nothing.
func (s *Service) BulkLoadMappings(ctx context.Context, rows []models.MappingRow) (models.LoadResult, error) {
	var result models.LoadResult
	for _, row := range rows {
		sourceCode := strings.TrimSpace(row.SourceCode)
		targetCode := strings.TrimSpace(row.TargetCode)
		if sourceCode == "" || targetCode == "" {
			result.Malformed++
			continue
		}
		created, err := s.store.UpsertMapping(ctx, models.CrossMapping{
			SourceCode:    sourceCode,
			TargetCode:    targetCode,
			TargetDisplay: strings.TrimSpace(row.TargetDisplay),
			Equivalence:   DefaultEquivalence,
		})
		if err != nil {
			if errs.IsMapping(err, errs.OrphanSource) {
				logger.Log.WithField("source_code", sourceCode).Warn("skipping mapping with unknown source code")
				result.Skipped++
				continue
			}
			return result, err
		}
		if created {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	metrics.ObserveMappingLoad(result.Inserted, result.Updated, result.Skipped+result.Malformed)
	return result, nil
}

// Search matches the term case-insensitively against display terms and
// short definitions. Empty input returns an empty result without touching
// storage.
func (s *Service) Search(ctx context.Context, term string) ([]models.CodeRecord, error) {
	if strings.TrimSpace(term) == "" {
		return []models.CodeRecord{}, nil
	}
	return s.store.SearchCodes(ctx, term, SearchLimit)
}

// Translate resolves the active mapping for a source code. A missing
// mapping is reported as MappingError(NotFound).
func (s *Service) Translate(ctx context.Context, sourceCode string) (*models.CrossMapping, error) {
	mapping, err := s.store.GetMapping(ctx, sourceCode)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		metrics.IncTranslateNotFound()
		return nil, errs.Mapping(errs.MappingNotFound, sourceCode)
	}
	return mapping, nil
}

func (s *Service) ListTerms(ctx context.Context) ([]string, error) {
	return s.store.ListTerms(ctx)
}
