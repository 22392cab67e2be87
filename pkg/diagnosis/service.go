// Package diagnosis records confirmed diagnoses: it validates the
// translation, builds the FHIR bundle, submits it to the external clinical
// sink, and appends the audit entry only once the sink has accepted.
package diagnosis

import (
	"context"
	"encoding/json"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/kafka"
	"github.com/accura-health/terminology/pkg/common/logger"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/fhir"
	"github.com/accura-health/terminology/pkg/observability/metrics"
	"github.com/accura-health/terminology/pkg/session"
)

// Store is the transactional surface backing confirmation. ConfirmDiagnosis
// reads the mapping once, passes that snapshot to submit, and persists the
// audit row only when submit returns nil — all in one atomic unit.
type Store interface {
	ConfirmDiagnosis(ctx context.Context, patientID, doctorID, sourceCode string, submit func(context.Context, models.CrossMapping) ([]byte, error)) (models.DiagnosisRecord, error)
	History(ctx context.Context, patientID string) ([]models.DiagnosisRecord, error)
}

type Service struct {
	store    Store
	sink     Sink
	producer *kafka.Producer
}

func NewService(store Store, sink Sink, producer *kafka.Producer) *Service {
	return &Service{store: store, sink: sink, producer: producer}
}

// Confirm records a diagnosis for the consented patient. The doctor id is
// taken from the authenticated session, never from the request. The unit
// runs detached from the caller's cancellation: once the sink has accepted
// the bundle the audit write must complete or fail cleanly, not be
// abandoned mid-way.
func (s *Service) Confirm(ctx context.Context, sess session.Data, patientID, sourceCode string) (models.DiagnosisRecord, error) {
	if !sess.Authenticated() {
		return models.DiagnosisRecord{}, errs.Auth(errs.Unauthenticated, "no authenticated identity in session")
	}
	doctorID := sess.Identity.Subject

	ctx = context.WithoutCancel(ctx)
	rec, err := s.store.ConfirmDiagnosis(ctx, patientID, doctorID, sourceCode,
		func(ctx context.Context, snapshot models.CrossMapping) ([]byte, error) {
			bundle := fhir.NewDiagnosisBundle(patientID, doctorID, snapshot)
			payload, err := json.Marshal(bundle)
			if err != nil {
				return nil, err
			}
			if err := s.sink.Submit(ctx, payload); err != nil {
				return nil, err
			}
			return payload, nil
		})
	if err != nil {
		if errs.IsSink(err) {
			metrics.IncSinkRejection()
		}
		return models.DiagnosisRecord{}, err
	}

	metrics.IncDiagnosisConfirmed()
	if publishErr := s.producer.PublishEvent(ctx, "diagnosis.confirmed", "terminology-service", map[string]interface{}{
		"record_id":   rec.ID,
		"patient_id":  rec.PatientID,
		"doctor_id":   rec.DoctorID,
		"source_code": rec.SourceCode,
		"target_code": rec.TargetCode,
	}); publishErr != nil {
		// Event publication is best-effort; the diagnosis is already
		// committed.
		logger.Log.WithError(publishErr).Warn("failed to publish diagnosis event")
	}
	return rec, nil
}

// History lists a patient's confirmed diagnoses, newest first.
func (s *Service) History(ctx context.Context, patientID string) ([]models.DiagnosisRecord, error) {
	return s.store.History(ctx, patientID)
}
