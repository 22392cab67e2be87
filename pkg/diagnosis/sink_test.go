package diagnosis

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
)

func TestHTTPSinkAcceptsOnlyCreated(t *testing.T) {
	status := http.StatusCreated
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(status)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, server.Client())
	ctx := context.Background()

	if err := sink.Submit(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("201 should be accepted, got %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}

	// Any other status is a rejection, including 200.
	for _, s := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		status = s
		err := sink.Submit(ctx, []byte(`{}`))
		if !errs.IsSink(err) {
			t.Fatalf("status %d: expected sink error, got %v", s, err)
		}
	}
}

func TestHTTPSinkReportsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sink.Submit(ctx, []byte(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errs.IsSink(err) {
		t.Fatalf("expected sink error, got %v", err)
	}
}
