package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertec-postgresql/submitq/internal/metrics"
	"github.com/cybertec-postgresql/submitq/internal/queue"
	"github.com/cybertec-postgresql/submitq/internal/sync"
)

type fakeCoordinator struct {
	result     sync.Result
	fields     queue.Fields
	attachment []byte
	drains     int
}

func (f *fakeCoordinator) Submit(_ context.Context, fields queue.Fields, attachment []byte) sync.Result {
	f.fields = fields
	f.attachment = attachment
	return f.result
}

func (f *fakeCoordinator) RequestDrain() { f.drains++ }

type fakeConnectivity struct {
	reachable bool
	sequence  uint64
}

func (f fakeConnectivity) Current() bool    { return f.reachable }
func (f fakeConnectivity) Sequence() uint64 { return f.sequence }

func multipartBody(t *testing.T, fields map[string]string, attachment []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if attachment != nil {
		part, err := w.CreateFormFile("files[]", "product.jpg")
		require.NoError(t, err)
		_, err = part.Write(attachment)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestSubmitProductStatusByOutcome(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		outcome sync.Outcome
		status  int
	}{
		{sync.OutcomeSubmitted, http.StatusOK},
		{sync.OutcomeSavedOffline, http.StatusAccepted},
		{sync.OutcomeValidationError, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			coord := &fakeCoordinator{result: sync.Result{Outcome: tt.outcome, Message: "msg", RecordID: id}}
			router := NewRouter(coord, fakeConnectivity{})

			body, ct := multipartBody(t, map[string]string{
				"product_name": "Pen",
				"product_type": "Accessories",
				"price":        "10",
				"tax":          "5",
			}, []byte("jpeg"))
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			resp := decode(t, rec.Body)
			assert.Equal(t, string(tt.outcome), resp["outcome"])
			assert.Equal(t, "msg", resp["message"])
			if tt.outcome == sync.OutcomeValidationError {
				assert.NotContains(t, resp, "id")
			} else {
				assert.Equal(t, id.String(), resp["id"])
			}

			assert.Equal(t, queue.Fields{
				"product_name": "Pen",
				"product_type": "Accessories",
				"price":        "10",
				"tax":          "5",
			}, coord.fields)
			assert.Equal(t, []byte("jpeg"), coord.attachment)
		})
	}
}

func TestSubmitProductURLEncoded(t *testing.T) {
	coord := &fakeCoordinator{result: sync.Result{Outcome: sync.OutcomeSubmitted}}
	router := NewRouter(coord, fakeConnectivity{})

	form := url.Values{"product_name": {"Pen"}, "price": {"10"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pen", coord.fields["product_name"])
	assert.Equal(t, "", coord.fields["product_type"])
	assert.Nil(t, coord.attachment)
}

func TestSubmitProductWithoutAttachment(t *testing.T) {
	coord := &fakeCoordinator{result: sync.Result{Outcome: sync.OutcomeSavedOffline}}
	router := NewRouter(coord, fakeConnectivity{})

	body, ct := multipartBody(t, map[string]string{"product_name": "Pen"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, coord.attachment)
}

func TestSubmitProductMalformedMultipart(t *testing.T) {
	coord := &fakeCoordinator{}
	router := NewRouter(coord, fakeConnectivity{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader("garbage"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, coord.fields, "coordinator not called")
}

func TestConnectivityEndpoint(t *testing.T) {
	router := NewRouter(&fakeCoordinator{}, fakeConnectivity{reachable: true, sequence: 4})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connectivity", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reachable": true, "sequence": 4}`, rec.Body.String())
}

func TestSyncEndpointRequestsDrain(t *testing.T) {
	coord := &fakeCoordinator{}
	router := NewRouter(coord, fakeConnectivity{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, coord.drains)
}

func TestProductTypesEndpoint(t *testing.T) {
	router := NewRouter(&fakeCoordinator{}, fakeConnectivity{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/product-types", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Electronics","Clothing","Books","Accessories"]`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(&fakeCoordinator{}, fakeConnectivity{}))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health/live", "200"))

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, before+1,
		testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/health/live", "200")))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "submitq_http_requests_total")
}

func TestUnknownRouteUsesSharedLabel(t *testing.T) {
	router := NewRouter(&fakeCoordinator{}, fakeConnectivity{})
	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/"+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1,
		testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", &fakeCoordinator{}, fakeConnectivity{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerRunReportsListenError(t *testing.T) {
	srv := New("256.0.0.1:bad", &fakeCoordinator{}, fakeConnectivity{})
	err := srv.Run(context.Background())
	assert.Error(t, err)
}
