package sru_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/retry"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/sru"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/sru/srutest"
)

const testMaxAttempts = 5

func newTestClient(t *testing.T, endpoint string, opts ...sru.Option) *sru.Client {
	t.Helper()

	cfg := sru.Config{
		Endpoint:       endpoint,
		PageSize:       100,
		RequestTimeout: 5 * time.Second,
	}
	return sru.NewClient(cfg, retry.NoDelay(testMaxAttempts), logger.NewNoOp(), opts...)
}

func TestClient_FetchPage_SendsSearchRetrieveParams(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(650)
	defer srv.Close()

	records, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 101, 100)
	require.NoError(t, err)
	require.Len(t, records, 100)
	assert.Equal(t, 101, records[0].Position)
	assert.Equal(t, 200, records[99].Position)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "2.0", reqs[0].Get("version"))
	assert.Equal(t, "searchRetrieve", reqs[0].Get("operation"))
	assert.Equal(t, sru.DefaultQuery, reqs[0].Get("query"))
	assert.Equal(t, "101", reqs[0].Get("startRecord"))
	assert.Equal(t, "100", reqs[0].Get("maximumRecords"))
	assert.Equal(t, "gzd", reqs[0].Get("recordSchema"))
}

func TestClient_FetchPage_ShortAndEmptyPages(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(650)
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	records, err := client.FetchPage(context.Background(), 601, 100)
	require.NoError(t, err)
	assert.Len(t, records, 50)

	records, err = client.FetchPage(context.Background(), 651, 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_FetchPage_EmptyPageWithoutDiagnostic(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(10, srutest.WithEmptyPageAtEnd())
	defer srv.Close()

	records, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 11, 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_FetchPage_RetriesBelowLimit(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway} {
		srv := srutest.NewServer(20, srutest.WithFailures(testMaxAttempts-1, status))

		records, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 1, 10)
		require.NoError(t, err, "status %d", status)
		assert.Len(t, records, 10)
		assert.Len(t, srv.Requests(), testMaxAttempts)

		srv.Close()
	}
}

func TestClient_FetchPage_FailsAtLimit(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(20, srutest.WithFailures(testMaxAttempts, http.StatusServiceUnavailable))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 1, 10)
	require.Error(t, err)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)

	var statusErr *sru.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Len(t, srv.Requests(), testMaxAttempts)
}

func TestClient_FetchPage_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(20, srutest.WithStatus(http.StatusBadRequest))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 1, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Len(t, srv.Requests(), 1)
}

func TestClient_FetchPage_ConnectionRefusedRetried(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(1)
	endpoint := srv.URL
	srv.Close()

	_, err := newTestClient(t, endpoint).FetchPage(context.Background(), 1, 10)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestClient_FetchPage_Timeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newSlowServer(t, &calls, 200*time.Millisecond)

	cfg := sru.Config{Endpoint: srv, RequestTimeout: 20 * time.Millisecond}
	client := sru.NewClient(cfg, retry.NoDelay(2), logger.NewNoOp())

	_, err := client.FetchPage(context.Background(), 1, 10)
	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_FetchPage_ResponseTooLarge(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(50)
	defer srv.Close()

	cfg := sru.Config{Endpoint: srv.URL, MaxResponseBytes: 512}
	client := sru.NewClient(cfg, retry.NoDelay(3), logger.NewNoOp())

	_, err := client.FetchPage(context.Background(), 1, 50)
	require.ErrorIs(t, err, sru.ErrResponseTooLarge)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.False(t, sru.IsRetryable(err))
	assert.Len(t, srv.Requests(), 1)
}

func TestClient_FetchPage_ObserverAndRetryCallback(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(5, srutest.WithFailures(2, http.StatusInternalServerError))
	defer srv.Close()

	obs := &countingObserver{}
	records, err := newTestClient(t, srv.URL, sru.WithObserver(obs)).FetchPage(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Len(t, records, 5)

	assert.Equal(t, 3, obs.fetches)
	assert.Equal(t, 2, obs.failures)
	assert.Equal(t, 2, obs.retries)
}

func TestClient_Count(t *testing.T) {
	t.Parallel()

	srv := srutest.NewServer(650)
	defer srv.Close()

	total, err := newTestClient(t, srv.URL).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 650, total)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "0", reqs[0].Get("maximumRecords"))
}

type countingObserver struct {
	fetches  int
	failures int
	retries  int
}

func (o *countingObserver) ObserveFetch(_ time.Duration, err error) {
	o.fetches++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveRetry() { o.retries++ }
