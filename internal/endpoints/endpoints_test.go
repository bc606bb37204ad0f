package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perftests-app/internal/chart"
	"perftests-app/internal/domain"
	"perftests-app/internal/sampledata"
)

type MockRepository struct {
	Measurements []domain.Measurement
	Err          error
	LastWindow   int64
}

func (m *MockRepository) Record(ctx context.Context, measurement domain.Measurement) error {
	var fields domain.InvalidFields
	if measurement.Name == "" {
		fields = append(fields, "name")
	}
	if measurement.Branch == "" {
		fields = append(fields, "branch")
	}
	if measurement.ElapsedTime < 0 {
		fields = append(fields, "time")
	}
	if len(fields) > 0 {
		return domain.E(domain.ErrValidation, "record", fields)
	}
	if m.Err != nil {
		return m.Err
	}
	m.Measurements = append(m.Measurements, measurement)
	return nil
}

func (m *MockRepository) ListAll(ctx context.Context) ([]domain.Measurement, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Measurements, nil
}

func (m *MockRepository) ListRange(ctx context.Context, name string, fromBuild, window int64) ([]domain.Point, error) {
	m.LastWindow = window
	if m.Err != nil {
		return nil, m.Err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	points := []domain.Point{}
	if window <= 0 {
		return points, nil
	}
	for _, measurement := range m.Measurements {
		if measurement.Name == name && measurement.BuildNumber >= fromBuild && measurement.BuildNumber <= fromBuild+window {
			points = append(points, domain.Point{BuildNumber: measurement.BuildNumber, ElapsedTime: measurement.ElapsedTime})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].BuildNumber < points[j].BuildNumber })
	return points, nil
}

type MockRenderer struct {
	Err error
}

func (m *MockRenderer) Render(title string, points []domain.Point) ([]byte, error) {
	return nil, m.Err
}

func newHandler(repo domain.MeasurementRepository, renderer domain.ChartRenderer) *Measurements {
	if renderer == nil {
		renderer = chart.NewRenderer()
	}
	h := &Measurements{}
	h.Init(repo, renderer, sampledata.NewGenerator(sampledata.DefaultConfig(), 1, nil, nil), zap.NewNop(), nil)
	return h
}

func commitRequest(name, branch, build, elapsed string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/commit/"+name+"/"+branch+"/"+build+"/"+elapsed, nil)
	return mux.SetURLVars(req, map[string]string{
		"name":         name,
		"branch":       branch,
		"build_number": build,
		"time":         elapsed,
	})
}

func plotRequest(name, from, count string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/plot/"+name+"/"+from+"/"+count, nil)
	return mux.SetURLVars(req, map[string]string{
		"test_name":   name,
		"from_build":  from,
		"build_count": count,
	})
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) APIResponse {
	t.Helper()

	var apiResponse APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiResponse))
	return apiResponse
}

func TestCommitHandler(t *testing.T) {
	repo := &MockRepository{}
	h := newHandler(repo, nil)

	// case 1: valid measurement
	rr := httptest.NewRecorder()
	h.CommitHandler(rr, commitRequest("svc-bench", "main", "1", "100"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, commitSuccessBody, rr.Body.String())
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
	require.Len(t, repo.Measurements, 1)
	assert.Equal(t, domain.Measurement{Name: "svc-bench", Branch: "main", BuildNumber: 1, ElapsedTime: 100}, repo.Measurements[0])

	// case 2: non-integer build number
	rr = httptest.NewRecorder()
	h.CommitHandler(rr, commitRequest("svc-bench", "main", "abc", "100"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrInvalidParameters.Error(), rr.Body.String())

	// case 3: time overflows int64
	rr = httptest.NewRecorder()
	h.CommitHandler(rr, commitRequest("svc-bench", "main", "2", "99999999999999999999"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// case 4: negative time is a validation error
	rr = httptest.NewRecorder()
	h.CommitHandler(rr, commitRequest("svc-bench", "main", "2", "-5"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrInvalidMeasurement.Error()+"; rejected fields: time", rr.Body.String())

	// case 5: empty name
	rr = httptest.NewRecorder()
	h.CommitHandler(rr, commitRequest("", "main", "2", "5"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, ErrInvalidMeasurement.Error()+"; rejected fields: name", rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "record:")
	assert.Len(t, repo.Measurements, 1, "rejected measurements must not be stored")
}

func TestCommitHandler_StoreFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"statement", domain.E(domain.ErrStatement, "exec", errors.New("UNIQUE constraint failed")), http.StatusMethodNotAllowed, commitFailureBody},
		{"connection", domain.E(domain.ErrConnection, "connect", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, ErrStoreUnavailable.Error()},
		{"timeout", domain.E(domain.ErrTimeout, "exec", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrStoreTimeout.Error()},
		{"unclassified", errors.New("secret internal detail"), http.StatusInternalServerError, ErrInternal.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(&MockRepository{Err: tc.err}, nil)
			rr := httptest.NewRecorder()
			h.CommitHandler(rr, commitRequest("svc-bench", "main", "1", "100"))
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.body, rr.Body.String())
		})
	}
}

func TestShowHandler(t *testing.T) {
	// case 1: empty store yields an empty array
	h := newHandler(&MockRepository{}, nil)
	rr := httptest.NewRecorder()
	h.ShowHandler(rr, httptest.NewRequest(http.MethodGet, "/show", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, "[]", rr.Body.String())

	// case 2: field names
	repo := &MockRepository{Measurements: []domain.Measurement{
		{Name: "svc-bench", Branch: "main", BuildNumber: 1, ElapsedTime: 100},
		{Name: "svc-bench", Branch: "main", BuildNumber: 2, ElapsedTime: 150},
	}}
	h = newHandler(repo, nil)
	rr = httptest.NewRecorder()
	h.ShowHandler(rr, httptest.NewRequest(http.MethodPost, "/show", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[
		{"name":"svc-bench","branch":"main","build_number":1,"time":100},
		{"name":"svc-bench","branch":"main","build_number":2,"time":150}
	]`, rr.Body.String())

	// case 3: store timeout
	h = newHandler(&MockRepository{Err: domain.E(domain.ErrTimeout, "query", context.DeadlineExceeded)}, nil)
	rr = httptest.NewRecorder()
	h.ShowHandler(rr, httptest.NewRequest(http.MethodGet, "/show", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	apiResponse := decodeEnvelope(t, rr)
	assert.False(t, apiResponse.Status)
	assert.Equal(t, STORE_TIMEOUT, apiResponse.ErrorCode)
	assert.Equal(t, ErrStoreTimeout.Error(), apiResponse.Error)
}

func TestPlotHandler(t *testing.T) {
	repo := &MockRepository{}
	for build := int64(1); build <= 150; build++ {
		repo.Measurements = append(repo.Measurements, domain.Measurement{Name: "svc-bench", Branch: "main", BuildNumber: build, ElapsedTime: 90 + build%20})
	}
	h := newHandler(repo, nil)

	// case 1: chart is returned as PNG and the window is clamped
	rr := httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1", "500"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, int64(domain.MaxWindow), repo.LastWindow)
	img, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, chart.CanvasSize, img.Bounds().Dx())

	// case 2: no data in range
	rr = httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1000", "10"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	apiResponse := decodeEnvelope(t, rr)
	assert.Equal(t, MEASUREMENTS_NOT_AVAILABLE, apiResponse.ErrorCode)
	assert.Contains(t, apiResponse.Error, ErrNoMeasurementsAvailable.Error())

	// case 3: zero build count
	rr = httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1", "0"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// case 4: invalid parameters
	for _, req := range []*http.Request{plotRequest("svc-bench", "x", "10"), plotRequest("svc-bench", "1", "ten")} {
		rr = httptest.NewRecorder()
		h.PlotHandler(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, INVALID_PARAMETERS, decodeEnvelope(t, rr).ErrorCode)
	}

	// case 5: cancelled request
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr = httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1", "10").WithContext(ctx))
	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
	apiResponse = decodeEnvelope(t, rr)
	assert.Equal(t, REQUEST_CANCELLED, apiResponse.ErrorCode)
	assert.Contains(t, apiResponse.Error, ErrRequestCancelled.Error())
}

func TestPlotHandler_Failures(t *testing.T) {
	repo := &MockRepository{Measurements: []domain.Measurement{{Name: "svc-bench", Branch: "main", BuildNumber: 1, ElapsedTime: 100}}}

	// case 1: renderer failure
	h := newHandler(repo, &MockRenderer{Err: domain.E(domain.ErrRender, "encode", errors.New("short write"))})
	rr := httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1", "10"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	apiResponse := decodeEnvelope(t, rr)
	assert.Equal(t, RENDER_FAILED, apiResponse.ErrorCode)
	assert.Equal(t, ErrRenderFailed.Error(), apiResponse.Error)

	// case 2: store unreachable
	h = newHandler(&MockRepository{Err: domain.E(domain.ErrConnection, "connect", errors.New("refused"))}, nil)
	rr = httptest.NewRecorder()
	h.PlotHandler(rr, plotRequest("svc-bench", "1", "10"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, STORE_UNAVAILABLE, decodeEnvelope(t, rr).ErrorCode)
}

func TestGenerateTestDataHandler(t *testing.T) {
	repo := &MockRepository{}
	h := newHandler(repo, nil)

	rr := httptest.NewRecorder()
	h.GenerateTestDataHandler(rr, httptest.NewRequest(http.MethodGet, "/generateTestData", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "generated 30 of 30")

	require.Len(t, repo.Measurements, 30)
	for _, m := range repo.Measurements {
		assert.Equal(t, "ivy-default-case", m.Name)
		assert.GreaterOrEqual(t, m.ElapsedTime, int64(90))
		assert.Less(t, m.ElapsedTime, int64(110))
	}

	failing := newHandler(&MockRepository{Err: domain.E(domain.ErrStatement, "exec", errors.New("disk full"))}, nil)
	rr = httptest.NewRecorder()
	failing.GenerateTestDataHandler(rr, httptest.NewRequest(http.MethodGet, "/generateTestData", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "generated 0 of 30")
}

type MockPinger struct {
	Err error
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Err
}

func TestHealthHandler(t *testing.T) {
	h := &Health{}
	h.Init(&MockPinger{}, nil)

	rr := httptest.NewRecorder()
	h.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeEnvelope(t, rr).Status)

	h.Init(&MockPinger{Err: domain.E(domain.ErrConnection, "ping", errors.New("refused"))}, nil)
	rr = httptest.NewRecorder()
	h.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, STORE_UNAVAILABLE, decodeEnvelope(t, rr).ErrorCode)
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, API_SUCCESS, GetErrorCode(nil))
	assert.Equal(t, API_FAILURE, GetErrorCode(errors.New("other")))
	assert.Equal(t, INVALID_MEASUREMENT, GetErrorCode(domain.E(domain.ErrValidation, "record", nil)))
	assert.Equal(t, STATEMENT_FAILED, GetErrorCode(domain.E(domain.ErrStatement, "exec", nil)))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(domain.E(domain.ErrStatement, "query", nil)))
}

func TestPublicError_Validation(t *testing.T) {
	// case 1: raw validator text is not exposed
	raw := domain.E(domain.ErrValidation, "record", errors.New("Key: 'Measurement.Name' Error:Field validation for 'Name' failed on the 'required' tag"))
	assert.Equal(t, ErrInvalidMeasurement, PublicError(raw))

	// case 2: field names are listed
	public := PublicError(domain.E(domain.ErrValidation, "record", domain.InvalidFields{"name", "branch"}))
	assert.ErrorIs(t, public, ErrInvalidMeasurement)
	assert.Equal(t, ErrInvalidMeasurement.Error()+"; rejected fields: name, branch", public.Error())
	assert.Equal(t, http.StatusBadRequest, StatusCode(public))
}
