package monitor

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sample.return/internal/httputil"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.cfg.Source == nil {
		httputil.ServiceUnavailable(w, "no pipeline running")
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Source.View())
}

// handleMapPNG renders the render map with the rover's position.
// Query params:
//   - size (optional; default 6) image side in inches
func (s *Server) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Source == nil {
		httputil.ServiceUnavailable(w, "no pipeline running")
		return
	}
	side := 6.0
	if v := r.URL.Query().Get("size"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 30 {
			httputil.BadRequest(w, "size must be in (0, 30]")
			return
		}
		side = f
	}

	view := s.cfg.Source.View()
	p, err := MapPlot(s.cfg.Source.Map(), &view.Pose.X, &view.Pose.Y, fmt.Sprintf("mission %s", view.MissionID))
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	wt, err := p.WriterTo(vg.Length(side)*vg.Inch, vg.Length(side)*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render map: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}

// MapImage is a square world map that renders one pixel per cell.
// Implemented by *l4grid.WorldMap.
type MapImage interface {
	Size() int
	Render() *image.RGBA
}

// MapPlot draws a world map in world coordinates, north up. When x and
// y are non-nil the rover is marked at that position.
func MapPlot(m MapImage, x, y *float64, title string) (*plot.Plot, error) {
	n := float64(m.Size())
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.X.Min, p.X.Max = 0, n
	p.Y.Min, p.Y.Max = 0, n
	p.Add(plotter.NewImage(m.Render(), 0, 0, n, n))

	if x != nil && y != nil {
		pos, err := plotter.NewScatter(plotter.XYs{{X: *x, Y: *y}})
		if err != nil {
			return nil, fmt.Errorf("failed to plot position: %w", err)
		}
		pos.GlyphStyle.Color = color.RGBA{R: 255, G: 255, A: 255}
		pos.GlyphStyle.Shape = draw.CrossGlyph{}
		pos.GlyphStyle.Radius = vg.Points(5)
		p.Add(pos)
	}
	return p, nil
}
