package sru_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newSlowServer returns the URL of a server that answers after delay.
func newSlowServer(t *testing.T, calls *atomic.Int32, delay time.Duration) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`<searchRetrieveResponse><numberOfRecords>0</numberOfRecords></searchRetrieveResponse>`))
	}))
	t.Cleanup(srv.Close)

	return srv.URL
}
