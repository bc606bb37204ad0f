package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"perftests-app/internal/domain"
)

// Layout, in pixels unless noted.
const (
	CanvasSize    = 1000
	Margin        = 10
	LabelArea     = 60
	TitleFontSize = 40 // points
	MarkerRadius  = 4
	MaxXTicks     = 30
	MaxLightLines = 3
	YAxisLabel    = "Execution Time [ms]"

	dpi = 96
)

// ErrNoData is returned by Render for an empty series.
var ErrNoData = domain.E(domain.ErrRender, "render", errors.New("no data points"))

// Range holds the axis domains derived from a series.
type Range struct {
	XMin, XMax int64
	YMin, YMax int64
}

// Bounds derives axis domains: X spans the build numbers, Y runs from zero to
// the largest elapsed time plus 10%, rounded up. An empty series yields the
// zero Range.
func Bounds(points []domain.Point) Range {
	if len(points) == 0 {
		return Range{}
	}

	r := Range{XMin: points[0].BuildNumber, XMax: points[0].BuildNumber}
	var maxY int64
	for _, p := range points {
		r.XMin = min(r.XMin, p.BuildNumber)
		r.XMax = max(r.XMax, p.BuildNumber)
		maxY = max(maxY, p.ElapsedTime)
	}
	r.YMax = headroom(maxY)
	return r
}

// headroom returns ceil(v * 1.1) using integer arithmetic.
func headroom(v int64) int64 {
	if v <= 0 {
		return 0
	}
	extra := v / 10
	if v%10 != 0 {
		extra++
	}
	if v > math.MaxInt64-extra {
		return math.MaxInt64
	}
	return v + extra
}

// Renderer draws a build series as a line with point markers. It keeps no
// per-call state and is safe for concurrent use.
type Renderer struct {
	Color color.Color
}

func NewRenderer() *Renderer {
	return &Renderer{Color: color.RGBA{B: 255, A: 255}}
}

// Render returns the chart encoded as PNG.
func (r *Renderer) Render(title string, points []domain.Point) (img []byte, err error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}

	// gonum/plot panics on some drawing failures; report them as render errors.
	defer func() {
		if rec := recover(); rec != nil {
			img, err = nil, domain.E(domain.ErrRender, "render", fmt.Errorf("%v", rec))
		}
	}()

	sorted := make([]domain.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BuildNumber < sorted[j].BuildNumber })

	p, err := r.newPlot(title, sorted)
	if err != nil {
		return nil, domain.E(domain.ErrRender, "render", err)
	}

	canvas := vgimg.NewWith(vgimg.UseWH(px(CanvasSize), px(CanvasSize)), vgimg.UseDPI(dpi))
	dc := draw.Crop(draw.New(canvas), px(Margin), -px(Margin), px(Margin), -px(Margin))

	// Reserve at least LabelArea to the left of and below the data area.
	data := p.DataCanvas(dc)
	left := max(0, px(LabelArea)-(data.Min.X-dc.Min.X))
	bottom := max(0, px(LabelArea)-(data.Min.Y-dc.Min.Y))
	p.Draw(draw.Crop(dc, left, 0, bottom, 0))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(&buf); err != nil {
		return nil, domain.E(domain.ErrRender, "encode", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) newPlot(title string, points []domain.Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Variant = "Sans"
	p.Title.TextStyle.Font.Size = vg.Points(TitleFontSize)
	p.Y.Label.Text = YAxisLabel

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.BuildNumber)
		xys[i].Y = float64(pt.ElapsedTime)
	}

	line, scatter, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = r.Color
	line.LineStyle.Width = vg.Points(1)
	scatter.GlyphStyle = draw.GlyphStyle{
		Color:  r.Color,
		Radius: px(MarkerRadius),
		Shape:  draw.CircleGlyph{},
	}

	p.Add(horizontalGrid{
		Major: draw.LineStyle{Color: color.Gray{Y: 200}, Width: vg.Points(0.5)},
		Light: draw.LineStyle{Color: color.Gray{Y: 235}, Width: vg.Points(0.5)},
	})
	p.Add(line, scatter)

	// Add widens the axes to the data; pin them to the derived bounds afterwards.
	b := Bounds(points)
	p.X.Min, p.X.Max = float64(b.XMin), float64(b.XMax)
	p.Y.Min, p.Y.Max = float64(b.YMin), float64(b.YMax)
	p.X.Tick.Marker = buildTicks{Max: MaxXTicks}
	p.Y.Tick.Marker = lightTicks{Major: plot.DefaultTicks{}, Light: MaxLightLines}

	return p, nil
}

// px converts device pixels to vg lengths at the canvas resolution.
func px(n float64) vg.Length {
	return vg.Length(n) * vg.Inch / dpi
}
