package terminology

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const uniqueViolationCode = "23505"

// isDuplicateKey recognizes a unique-constraint violation both as gorm's
// translated sentinel and as the raw Postgres driver error, so the
// insert-race fallbacks work regardless of the connection's TranslateError
// setting.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type codeModel struct {
	Code            string `gorm:"primaryKey;column:code"`
	Term            string `gorm:"column:term"`
	ShortDefinition string `gorm:"column:short_definition"`
}

func (codeModel) TableName() string { return "namaste_codesystem" }

type mappingModel struct {
	MapID         int64  `gorm:"primaryKey;autoIncrement;column:map_id"`
	SourceCode    string `gorm:"column:source_code;uniqueIndex"`
	TargetCode    string `gorm:"column:target_code"`
	TargetDisplay string `gorm:"column:target_display"`
	Equivalence   string `gorm:"column:equivalence"`
}

func (mappingModel) TableName() string { return "concept_map" }

type diagnosisModel struct {
	ID            int64          `gorm:"primaryKey;autoIncrement;column:id"`
	PatientID     string         `gorm:"column:patient_id;index"`
	DoctorID      string         `gorm:"column:doctor_id"`
	SourceCode    string         `gorm:"column:source_code"`
	SourceTerm    string         `gorm:"column:source_term"`
	TargetCode    string         `gorm:"column:target_code"`
	TargetDisplay string         `gorm:"column:target_display"`
	Bundle        datatypes.JSON `gorm:"column:bundle"`
	Timestamp     time.Time      `gorm:"column:timestamp"`
}

func (diagnosisModel) TableName() string { return "diagnosis_log" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&codeModel{},
		&mappingModel{},
		&diagnosisModel{},
	)
}

// InsertCodeIfAbsent inserts a code record unless the code already exists.
// Existing records are never touched. The row lock serializes concurrent
// loads of the same code; a duplicate-key race is reported as a skip, not
// an error.
func (r *Repository) InsertCodeIfAbsent(ctx context.Context, rec models.CodeRecord) (bool, error) {
	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing codeModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "code = ?", rec.Code).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.Store("code lookup", err)
		}

		row := codeModel{
			Code:            rec.Code,
			Term:            rec.Term,
			ShortDefinition: rec.ShortDefinition,
		}
		if err := tx.Create(&row).Error; err != nil {
			if isDuplicateKey(err) {
				return nil
			}
			return errs.Store("code insert", err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// UpsertMapping inserts the mapping when no row exists for the source code,
// otherwise overwrites the non-key fields in place. The whole read-branch-
// write runs in one transaction under a row lock so that same-code loads
// serialize last-committer-wins. A source code absent from the code system
// fails the row with MappingError(OrphanSource).
func (r *Repository) UpsertMapping(ctx context.Context, m models.CrossMapping) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var code codeModel
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			First(&code, "code = ?", m.SourceCode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.Mapping(errs.OrphanSource, m.SourceCode)
		}
		if err != nil {
			return errs.Store("code lookup", err)
		}

		var existing mappingModel
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&existing, "source_code = ?", m.SourceCode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := mappingModel{
				SourceCode:    m.SourceCode,
				TargetCode:    m.TargetCode,
				TargetDisplay: m.TargetDisplay,
				Equivalence:   m.Equivalence,
			}
			if createErr := tx.Create(&row).Error; createErr != nil {
				if !isDuplicateKey(createErr) {
					return errs.Store("mapping insert", createErr)
				}
				// Lost the insert race; fall through to the update path.
				if err := tx.First(&existing, "source_code = ?", m.SourceCode).Error; err != nil {
					return errs.Store("mapping lookup", err)
				}
			} else {
				created = true
				return nil
			}
		} else if err != nil {
			return errs.Store("mapping lookup", err)
		}

		updateErr := tx.Model(&existing).Updates(map[string]interface{}{
			"target_code":    m.TargetCode,
			"target_display": m.TargetDisplay,
			"equivalence":    m.Equivalence,
		}).Error
		if updateErr != nil {
			return errs.Store("mapping update", updateErr)
		}
		return nil
	})
	return created, err
}

// GetMapping returns the active mapping for the source code, or nil when
// absent. Absence is a normal outcome, not an error.
func (r *Repository) GetMapping(ctx context.Context, sourceCode string) (*models.CrossMapping, error) {
	var row mappingModel
	err := r.db.WithContext(ctx).First(&row, "source_code = ?", sourceCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("mapping lookup", err)
	}
	mapping := toCrossMapping(row)
	return &mapping, nil
}

func (r *Repository) SearchCodes(ctx context.Context, term string, limit int) ([]models.CodeRecord, error) {
	pattern := "%" + strings.ToLower(term) + "%"
	var rows []codeModel
	err := r.db.WithContext(ctx).
		Where("LOWER(term) LIKE ? OR LOWER(short_definition) LIKE ?", pattern, pattern).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("code search", err)
	}
	records := make([]models.CodeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.CodeRecord{
			Code:            row.Code,
			Term:            row.Term,
			ShortDefinition: row.ShortDefinition,
		})
	}
	return records, nil
}

func (r *Repository) ListTerms(ctx context.Context) ([]string, error) {
	var terms []string
	err := r.db.WithContext(ctx).
		Model(&codeModel{}).
		Where("term <> ''").
		Pluck("term", &terms).Error
	if err != nil {
		return nil, errs.Store("term list", err)
	}
	return terms, nil
}

// ConfirmDiagnosis runs the confirmation's storage unit: read the mapping
// once under a share lock, hand that snapshot to submit (the external sink
// call), and append the audit row only when submit succeeds. The commit is
// the success signal; any failure rolls the row back so the audit entry
// exists if and only if the sink accepted the bundle.
func (r *Repository) ConfirmDiagnosis(ctx context.Context, patientID, doctorID, sourceCode string, submit func(context.Context, models.CrossMapping) ([]byte, error)) (models.DiagnosisRecord, error) {
	var rec models.DiagnosisRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row mappingModel
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			First(&row, "source_code = ?", sourceCode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.Mapping(errs.MappingNotFound, sourceCode)
		}
		if err != nil {
			return errs.Store("mapping lookup", err)
		}
		snapshot := toCrossMapping(row)

		var code codeModel
		lookupErr := tx.First(&code, "code = ?", sourceCode).Error
		sourceTerm, err := resolveSourceTerm(code.Term, lookupErr, snapshot.TargetDisplay)
		if err != nil {
			return err
		}

		bundleJSON, err := submit(ctx, snapshot)
		if err != nil {
			return err
		}

		entry := diagnosisModel{
			PatientID:     patientID,
			DoctorID:      doctorID,
			SourceCode:    snapshot.SourceCode,
			SourceTerm:    sourceTerm,
			TargetCode:    snapshot.TargetCode,
			TargetDisplay: snapshot.TargetDisplay,
			Bundle:        datatypes.JSON(bundleJSON),
			Timestamp:     time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return errs.Store("diagnosis append", err)
		}
		rec = toDiagnosisRecord(entry)
		return nil
	})
	return rec, err
}

func (r *Repository) History(ctx context.Context, patientID string) ([]models.DiagnosisRecord, error) {
	var rows []diagnosisModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("timestamp DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Store("history list", err)
	}
	records := make([]models.DiagnosisRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toDiagnosisRecord(row))
	}
	return records, nil
}

// resolveSourceTerm picks the audit row's source term from the code-system
// lookup: the display term when present, the fallback when the code row is
// missing or has no term. Any other lookup failure is a storage error, not
// a reason to degrade silently.
func resolveSourceTerm(term string, lookupErr error, fallback string) (string, error) {
	if lookupErr != nil {
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return "", errs.Store("code lookup", lookupErr)
	}
	if term == "" {
		return fallback, nil
	}
	return term, nil
}

func toCrossMapping(row mappingModel) models.CrossMapping {
	return models.CrossMapping{
		SourceCode:    row.SourceCode,
		TargetCode:    row.TargetCode,
		TargetDisplay: row.TargetDisplay,
		Equivalence:   row.Equivalence,
	}
}

func toDiagnosisRecord(row diagnosisModel) models.DiagnosisRecord {
	return models.DiagnosisRecord{
		ID:            row.ID,
		PatientID:     row.PatientID,
		DoctorID:      row.DoctorID,
		SourceCode:    row.SourceCode,
		SourceTerm:    row.SourceTerm,
		TargetCode:    row.TargetCode,
		TargetDisplay: row.TargetDisplay,
		Timestamp:     row.Timestamp,
	}
}
