package endpoints

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"perftests-app/internal/domain"
	"perftests-app/internal/sampledata"
	"perftests-app/internal/telemetry"
)

const (
	commitSuccessBody = "inserting was successful"
	commitFailureBody = "fail"
)

type Measurements struct {
	Response  APIResponse
	logger    *zap.Logger
	repo      domain.MeasurementRepository
	renderer  domain.ChartRenderer
	generator *sampledata.Generator
	metrics   *telemetry.Metrics
}

func (m *Measurements) Init(repo domain.MeasurementRepository, renderer domain.ChartRenderer, generator *sampledata.Generator, logger *zap.Logger, metrics *telemetry.Metrics) {
	m.repo = repo
	m.renderer = renderer
	m.generator = generator
	m.logger = logger
	m.metrics = metrics
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
}

// CommitHandler records one measurement taken from the path
// /commit/{name}/{branch}/{build_number}/{time}.
func (m *Measurements) CommitHandler(w http.ResponseWriter, r *http.Request) {
	routeParamValue := mux.Vars(r)

	buildNumber, err := strconv.ParseInt(routeParamValue["build_number"], 10, 64)
	if err != nil {
		m.logger.Warn("parsing build number", zap.String("value", routeParamValue["build_number"]), zap.Error(err))
		WriteTextResponse(w, http.StatusBadRequest, ErrInvalidParameters.Error())
		return
	}

	elapsed, err := strconv.ParseInt(routeParamValue["time"], 10, 64)
	if err != nil {
		m.logger.Warn("parsing time", zap.String("value", routeParamValue["time"]), zap.Error(err))
		WriteTextResponse(w, http.StatusBadRequest, ErrInvalidParameters.Error())
		return
	}

	measurement := domain.Measurement{
		Name:        routeParamValue["name"],
		Branch:      routeParamValue["branch"],
		BuildNumber: buildNumber,
		ElapsedTime: elapsed,
	}

	err = m.repo.Record(r.Context(), measurement)
	switch {
	case err == nil:
		WriteTextResponse(w, http.StatusOK, commitSuccessBody)
	case errors.Is(err, domain.ErrValidation):
		m.logger.Warn("rejected measurement", zap.Error(err))
		WriteTextResponse(w, http.StatusBadRequest, PublicError(err).Error())
	case errors.Is(err, domain.ErrStatement):
		m.logger.Warn("store rejected measurement",
			zap.String("name", measurement.Name),
			zap.Int64("build_number", measurement.BuildNumber),
			zap.Error(err))
		WriteTextResponse(w, http.StatusMethodNotAllowed, commitFailureBody)
	default:
		m.logStoreError("recording measurement", err)
		WriteTextResponse(w, StatusCode(err), PublicError(err).Error())
	}
}

// ShowHandler lists every recorded measurement as a JSON array.
func (m *Measurements) ShowHandler(w http.ResponseWriter, r *http.Request) {
	measurements, err := m.repo.ListAll(r.Context())
	if err != nil {
		m.logStoreError("listing measurements", err)
		m.Response.WriteErrorResponse(w, err)
		return
	}
	if measurements == nil {
		measurements = []domain.Measurement{}
	}
	WriteJSONResponse(w, http.StatusOK, measurements)
}

// PlotHandler renders /plot/{test_name}/{from_build}/{build_count} as PNG.
func (m *Measurements) PlotHandler(w http.ResponseWriter, r *http.Request) {
	routeParamValue := mux.Vars(r)
	testName := routeParamValue["test_name"]

	fromBuild, err := strconv.ParseInt(routeParamValue["from_build"], 10, 64)
	if err != nil {
		m.logger.Warn("parsing from_build", zap.String("value", routeParamValue["from_build"]), zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}

	buildCount, err := strconv.ParseInt(routeParamValue["build_count"], 10, 64)
	if err != nil {
		m.logger.Warn("parsing build_count", zap.String("value", routeParamValue["build_count"]), zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}
	buildCount = domain.ClampWindow(buildCount)

	points, err := m.repo.ListRange(r.Context(), testName, fromBuild, buildCount)
	if err != nil {
		m.logStoreError("listing measurement range", err)
		m.Response.WriteErrorResponse(w, err)
		return
	}

	if len(points) == 0 {
		m.logger.Warn("Insufficient measurement data",
			zap.String("test_name", testName),
			zap.Int64("from_build", fromBuild),
			zap.Int64("build_count", buildCount))
		m.Response.WriteErrorResponseWithStatusCode(w, ErrNoMeasurementsAvailable, http.StatusNotFound)
		return
	}

	start := time.Now()
	img, err := m.renderer.Render(testName, points)
	m.metrics.ObserveRender(err, time.Since(start))
	if err != nil {
		m.logger.Error("rendering chart", zap.String("test_name", testName), zap.Int("points", len(points)), zap.Error(err))
		m.Response.WriteErrorResponseWithStatusCode(w, err, http.StatusInternalServerError)
		return
	}

	WriteImageResponse(w, "image/png", img)
}

// GenerateTestDataHandler records a batch of synthetic measurements.
func (m *Measurements) GenerateTestDataHandler(w http.ResponseWriter, r *http.Request) {
	res := m.generator.Load(r.Context(), m.repo)
	if err := res.Err(); err != nil {
		m.logger.Error("generating test data", zap.Int("recorded", res.Recorded), zap.Int("requested", res.Requested), zap.Error(err))
		WriteTextResponse(w, http.StatusInternalServerError, res.String())
		return
	}
	WriteTextResponse(w, http.StatusOK, "generating test data was successful: "+res.String())
}

func (m *Measurements) logStoreError(msg string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		m.logger.Warn("Context cancelled", zap.String("op", msg))
	case domain.IsRetryable(err):
		m.logger.Warn(msg, zap.Bool("retryable", true), zap.Error(err))
	default:
		m.logger.Error(msg, zap.Error(err))
	}
}
