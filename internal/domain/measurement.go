package domain

import "context"

// Measurement is one recorded build performance data point.
type Measurement struct {
	Name        string `json:"name" validate:"required"`
	Branch      string `json:"branch" validate:"required"`
	BuildNumber int64  `json:"build_number"`
	ElapsedTime int64  `json:"time" validate:"gte=0"`
}

// Point is a (build number, elapsed time) pair as drawn on a chart.
type Point struct {
	BuildNumber int64 `json:"build_number"`
	ElapsedTime int64 `json:"time"`
}

// MaxWindow caps the number of builds a range query may span.
const MaxWindow = 100

// ClampWindow limits a build range window to MaxWindow.
func ClampWindow(window int64) int64 {
	if window > MaxWindow {
		return MaxWindow
	}
	return window
}

type MeasurementRepository interface {
	Record(ctx context.Context, m Measurement) error
	ListAll(ctx context.Context) ([]Measurement, error)
	// ListRange returns points of the named test whose build number lies in
	// [fromBuild, fromBuild+window], ordered by build number.
	ListRange(ctx context.Context, name string, fromBuild, window int64) ([]Point, error)
}

type ChartRenderer interface {
	Render(title string, points []Point) ([]byte, error)
}
