package eyepose

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotFit renders one frame's observed perimeter points against the
// fitted pose's predicted ellipse boundary and writes a PNG. Image-plane
// pixel coordinates grow downward, so the Y axis is inverted to keep the
// picture in camera orientation.
func PlotFit(path string, observed [][2]Real, e TransparentEllipse) error {
	p := plot.New()
	p.Title.Text = "pupil ellipse fit"
	p.X.Label.Text = "u (px)"
	p.Y.Label.Text = "v (px)"
	p.Y.Scale = invertedScale{}

	pts := make(plotter.XYs, len(observed))
	for i, o := range observed {
		pts[i].X, pts[i].Y = o[0], o[1]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("observed points: %w", err)
	}
	p.Add(scatter)
	p.Legend.Add("observed", scatter)

	if !e.IsUndefined() {
		boundary := e.Boundary(128)
		line := make(plotter.XYs, len(boundary))
		for i, b := range boundary {
			line[i].X, line[i].Y = b[0], b[1]
		}
		l, err := plotter.NewLine(line)
		if err != nil {
			return fmt.Errorf("ellipse boundary: %w", err)
		}
		p.Add(l)
		p.Legend.Add("predicted", l)
	}

	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

// invertedScale flips an axis so pixel rows plot top-down.
type invertedScale struct{}

func (invertedScale) Normalize(min, max, x float64) float64 {
	return (max - x) / (max - min)
}
