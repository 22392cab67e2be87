package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	codesInserted       atomic.Int64
	codesSkipped        atomic.Int64
	mappingsInserted    atomic.Int64
	mappingsUpdated     atomic.Int64
	mappingsSkipped     atomic.Int64
	diagnosesConfirmed  atomic.Int64
	sinkRejections      atomic.Int64
	authFailures        atomic.Int64
	translateNotFounds  atomic.Int64
)

func ObserveCodeLoad(inserted, skipped int) {
	codesInserted.Add(int64(inserted))
	codesSkipped.Add(int64(skipped))
}

func ObserveMappingLoad(inserted, updated, skipped int) {
	mappingsInserted.Add(int64(inserted))
	mappingsUpdated.Add(int64(updated))
	mappingsSkipped.Add(int64(skipped))
}

func IncDiagnosisConfirmed() {
	diagnosesConfirmed.Add(1)
}

func IncSinkRejection() {
	sinkRejections.Add(1)
}

func IncAuthFailure() {
	authFailures.Add(1)
}

func IncTranslateNotFound() {
	translateNotFounds.Add(1)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP accura_terminology_codes_inserted_total Number of code records inserted by bulk loads.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_codes_inserted_total counter\n")
	fmt.Fprintf(w, "accura_terminology_codes_inserted_total %d\n", codesInserted.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_codes_skipped_total Number of code rows skipped by bulk loads.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_codes_skipped_total counter\n")
	fmt.Fprintf(w, "accura_terminology_codes_skipped_total %d\n", codesSkipped.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_mappings_inserted_total Number of cross-mappings inserted by bulk loads.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_mappings_inserted_total counter\n")
	fmt.Fprintf(w, "accura_terminology_mappings_inserted_total %d\n", mappingsInserted.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_mappings_updated_total Number of cross-mappings updated in place by bulk loads.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_mappings_updated_total counter\n")
	fmt.Fprintf(w, "accura_terminology_mappings_updated_total %d\n", mappingsUpdated.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_mappings_skipped_total Number of mapping rows skipped by bulk loads.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_mappings_skipped_total counter\n")
	fmt.Fprintf(w, "accura_terminology_mappings_skipped_total %d\n", mappingsSkipped.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_diagnoses_confirmed_total Number of diagnoses confirmed and logged.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_diagnoses_confirmed_total counter\n")
	fmt.Fprintf(w, "accura_terminology_diagnoses_confirmed_total %d\n", diagnosesConfirmed.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_sink_rejected_total Number of bundle submissions rejected by the clinical sink.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_sink_rejected_total counter\n")
	fmt.Fprintf(w, "accura_terminology_sink_rejected_total %d\n", sinkRejections.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_auth_failures_total Number of failed authorization callbacks.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_auth_failures_total counter\n")
	fmt.Fprintf(w, "accura_terminology_auth_failures_total %d\n", authFailures.Load())

	fmt.Fprintf(w, "# HELP accura_terminology_translate_not_found_total Number of translate lookups with no mapping.\n")
	fmt.Fprintf(w, "# TYPE accura_terminology_translate_not_found_total counter\n")
	fmt.Fprintf(w, "accura_terminology_translate_not_found_total %d\n", translateNotFounds.Load())
}
