package chart

import (
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg/draw"
)

// buildTicks places at most Max labelled ticks on whole build numbers.
type buildTicks struct {
	Max int
}

func (t buildTicks) Ticks(lo, hi float64) []plot.Tick {
	lo, hi = math.Ceil(lo), math.Floor(hi)
	if hi < lo || t.Max <= 0 {
		return nil
	}

	step := 1.0
	if t.Max > 1 {
		step = math.Max(1, math.Ceil((hi-lo)/float64(t.Max-1)))
	}

	ticks := make([]plot.Tick, 0, t.Max)
	for v := lo; v <= hi && len(ticks) < t.Max; v += step {
		ticks = append(ticks, plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'f', 0, 64)})
	}
	return ticks
}

// lightTicks keeps the major ticks of Major and adds up to Light unlabelled
// ticks evenly spaced between each pair of them.
type lightTicks struct {
	Major plot.Ticker
	Light int
}

func (t lightTicks) Ticks(lo, hi float64) []plot.Tick {
	var majors []plot.Tick
	for _, tk := range t.Major.Ticks(lo, hi) {
		if !tk.IsMinor() {
			majors = append(majors, tk)
		}
	}

	ticks := make([]plot.Tick, 0, len(majors)*(t.Light+1))
	for i, tk := range majors {
		ticks = append(ticks, tk)
		if i == len(majors)-1 {
			break
		}
		step := (majors[i+1].Value - tk.Value) / float64(t.Light+1)
		for j := 1; j <= t.Light; j++ {
			ticks = append(ticks, plot.Tick{Value: tk.Value + float64(j)*step})
		}
	}
	return ticks
}

// horizontalGrid draws a line across the data area at every Y tick: Major
// style for labelled ticks, Light style for the rest. No vertical lines.
type horizontalGrid struct {
	Major draw.LineStyle
	Light draw.LineStyle
}

func (g horizontalGrid) Plot(c draw.Canvas, plt *plot.Plot) {
	_, trY := plt.Transforms(&c)
	for _, tk := range plt.Y.Tick.Marker.Ticks(plt.Y.Min, plt.Y.Max) {
		if tk.Value < plt.Y.Min || tk.Value > plt.Y.Max {
			continue
		}
		sty := g.Major
		if tk.IsMinor() {
			sty = g.Light
		}
		y := trY(tk.Value)
		c.StrokeLine2(sty, c.Min.X, y, c.Max.X, y)
	}
}
