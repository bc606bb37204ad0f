package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"perftests-app/internal/domain"
	"perftests-app/internal/store"
	"perftests-app/internal/telemetry"
)

const (
	insertMeasurement = "INSERT INTO measurements(name, branch, build_number, runtime) VALUES(?, ?, ?, ?)"
	selectAll         = "SELECT name, branch, build_number, runtime FROM measurements ORDER BY id ASC"
	selectRange       = "SELECT build_number, runtime FROM measurements WHERE name = ? AND build_number >= ? AND build_number <= ? ORDER BY build_number ASC, id ASC"
)

// Measurements implements domain.MeasurementRepository on top of the store
// gateway. It holds no state besides its collaborators.
type Measurements struct {
	gw       *store.Gateway
	validate *validator.Validate
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
}

func NewMeasurements(gw *store.Gateway, metrics *telemetry.Metrics) *Measurements {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})

	return &Measurements{
		gw:       gw,
		validate: validate,
		metrics:  metrics,
		tracer:   otel.Tracer("perftests-app/repository"),
	}
}

func (r *Measurements) Record(ctx context.Context, m domain.Measurement) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.Record", trace.WithAttributes(
		attribute.String("measurement.name", m.Name),
		attribute.String("measurement.branch", m.Branch),
		attribute.Int64("measurement.build_number", m.BuildNumber),
	))
	defer r.finish(span, "record", time.Now(), &err)

	if err = r.validate.Struct(m); err != nil {
		return domain.E(domain.ErrValidation, "record", invalidFields(err))
	}

	return r.gw.Session(ctx, func(s *store.Session) error {
		_, err := s.Exec(ctx, insertMeasurement, m.Name, m.Branch, m.BuildNumber, m.ElapsedTime)
		return err
	})
}

func (r *Measurements) ListAll(ctx context.Context) (measurements []domain.Measurement, err error) {
	ctx, span := r.tracer.Start(ctx, "repository.ListAll")
	defer r.finish(span, "list_all", time.Now(), &err)

	measurements = []domain.Measurement{}
	err = r.gw.Session(ctx, func(s *store.Session) error {
		return s.Query(ctx, selectAll, nil, func(rows *sql.Rows) error {
			var m domain.Measurement
			if err := rows.Scan(&m.Name, &m.Branch, &m.BuildNumber, &m.ElapsedTime); err != nil {
				return err
			}
			measurements = append(measurements, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(measurements)))
	return measurements, nil
}

func (r *Measurements) ListRange(ctx context.Context, name string, fromBuild, window int64) (points []domain.Point, err error) {
	window = domain.ClampWindow(window)

	ctx, span := r.tracer.Start(ctx, "repository.ListRange", trace.WithAttributes(
		attribute.String("measurement.name", name),
		attribute.Int64("range.from", fromBuild),
		attribute.Int64("range.window", window),
	))
	defer r.finish(span, "list_range", time.Now(), &err)

	points = []domain.Point{}
	if window <= 0 {
		return points, nil
	}

	toBuild := fromBuild + window
	if fromBuild > math.MaxInt64-window {
		toBuild = math.MaxInt64
	}

	err = r.gw.Session(ctx, func(s *store.Session) error {
		return s.Query(ctx, selectRange, []any{name, fromBuild, toBuild}, func(rows *sql.Rows) error {
			var p domain.Point
			if err := rows.Scan(&p.BuildNumber, &p.ElapsedTime); err != nil {
				return err
			}
			points = append(points, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(points)))
	return points, nil
}

func (r *Measurements) finish(span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.metrics.ObserveStoreOp(op, err, time.Since(start))
	span.End()
}

func invalidFields(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(domain.InvalidFields, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
