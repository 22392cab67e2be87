package diagnosis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/accura-health/terminology/pkg/common/models"
	"github.com/accura-health/terminology/pkg/fhir"
	"github.com/accura-health/terminology/pkg/session"
)

type fakeStore struct {
	mappings map[string]models.CrossMapping
	records  []models.DiagnosisRecord
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{mappings: make(map[string]models.CrossMapping)}
}

func (f *fakeStore) ConfirmDiagnosis(ctx context.Context, patientID, doctorID, sourceCode string, submit func(context.Context, models.CrossMapping) ([]byte, error)) (models.DiagnosisRecord, error) {
	snapshot, ok := f.mappings[sourceCode]
	if !ok {
		return models.DiagnosisRecord{}, errs.Mapping(errs.MappingNotFound, sourceCode)
	}
	if _, err := submit(ctx, snapshot); err != nil {
		return models.DiagnosisRecord{}, err
	}
	f.nextID++
	rec := models.DiagnosisRecord{
		ID:            f.nextID,
		PatientID:     patientID,
		DoctorID:      doctorID,
		SourceCode:    snapshot.SourceCode,
		TargetCode:    snapshot.TargetCode,
		TargetDisplay: snapshot.TargetDisplay,
		Timestamp:     time.Now().UTC(),
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) History(ctx context.Context, patientID string) ([]models.DiagnosisRecord, error) {
	var out []models.DiagnosisRecord
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].PatientID == patientID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

type fakeSink struct {
	calls    int
	fail     error
	payloads [][]byte
}

func (f *fakeSink) Submit(ctx context.Context, payload []byte) error {
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func authedSession() session.Data {
	return session.Data{Identity: &session.Identity{Subject: "D1", Name: "Dr. Rao"}}
}

func fixtureMapping() models.CrossMapping {
	return models.CrossMapping{
		SourceCode:    "AY12",
		TargetCode:    "XM204",
		TargetDisplay: "Disorder of Vata",
		Equivalence:   "relatedto",
	}
}

func TestConfirmRecordsDiagnosis(t *testing.T) {
	store := newFakeStore()
	store.mappings["AY12"] = fixtureMapping()
	sink := &fakeSink{}
	service := NewService(store, sink, nil)

	rec, err := service.Confirm(context.Background(), authedSession(), "P1", "AY12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PatientID != "P1" || rec.DoctorID != "D1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.SourceCode != "AY12" || rec.TargetCode != "XM204" {
		t.Fatalf("unexpected codes in record %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("expected record timestamp to be set")
	}
	if sink.calls != 1 {
		t.Fatalf("expected exactly one sink submission, got %d", sink.calls)
	}

	var bundle fhir.Bundle
	if err := json.Unmarshal(sink.payloads[0], &bundle); err != nil {
		t.Fatalf("sink payload is not a bundle: %v", err)
	}
	if bundle.Type != "transaction" || len(bundle.Entry) != 2 {
		t.Fatalf("unexpected bundle shape: type=%q entries=%d", bundle.Type, len(bundle.Entry))
	}
}

func TestConfirmRequiresAuthenticatedSession(t *testing.T) {
	store := newFakeStore()
	store.mappings["AY12"] = fixtureMapping()
	sink := &fakeSink{}
	service := NewService(store, sink, nil)

	_, err := service.Confirm(context.Background(), session.Data{}, "P1", "AY12")
	if !errs.IsAuth(err, errs.Unauthenticated) {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	if sink.calls != 0 {
		t.Fatal("unauthenticated request must never reach the sink")
	}
	if len(store.records) != 0 {
		t.Fatal("unauthenticated request must not write an audit row")
	}
}

func TestConfirmUnknownCodeNeverReachesSink(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	service := NewService(store, sink, nil)

	_, err := service.Confirm(context.Background(), authedSession(), "P1", "AY99")
	if !errs.IsMapping(err, errs.MappingNotFound) {
		t.Fatalf("expected MappingNotFound, got %v", err)
	}
	if sink.calls != 0 {
		t.Fatal("unmapped code must never reach the sink")
	}
	if len(store.records) != 0 {
		t.Fatal("unmapped code must not write an audit row")
	}
}

func TestConfirmSinkRejectionLeavesNoRecord(t *testing.T) {
	store := newFakeStore()
	store.mappings["AY12"] = fixtureMapping()
	sink := &fakeSink{fail: errs.Sink(errs.SinkRejected, 500, "upstream unavailable")}
	service := NewService(store, sink, nil)
	ctx := context.Background()

	_, err := service.Confirm(ctx, authedSession(), "P1", "AY12")
	if !errs.IsSink(err) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("rejected submission must not write an audit row")
	}

	// Once the sink recovers, retrying the same request succeeds and
	// produces exactly one record.
	sink.fail = nil
	if _, err := service.Confirm(ctx, authedSession(), "P1", "AY12"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly one record after retry, got %d", len(store.records))
	}
}

func TestHistoryIsNewestFirstPerPatient(t *testing.T) {
	store := newFakeStore()
	store.mappings["AY12"] = fixtureMapping()
	store.mappings["AY34"] = models.CrossMapping{
		SourceCode: "AY34", TargetCode: "XM555", TargetDisplay: "Disorder of Pitta", Equivalence: "relatedto",
	}
	sink := &fakeSink{}
	service := NewService(store, sink, nil)
	ctx := context.Background()

	for _, confirm := range []struct{ patient, code string }{
		{"P1", "AY12"},
		{"P2", "AY12"},
		{"P1", "AY34"},
	} {
		if _, err := service.Confirm(ctx, authedSession(), confirm.patient, confirm.code); err != nil {
			t.Fatalf("confirm %s/%s failed: %v", confirm.patient, confirm.code, err)
		}
	}

	history, err := service.History(ctx, "P1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two entries for P1, got %d", len(history))
	}
	if history[0].SourceCode != "AY34" || history[1].SourceCode != "AY12" {
		t.Fatalf("expected newest-first ordering, got %+v", history)
	}
}
