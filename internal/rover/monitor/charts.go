package monitor

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sample.return/internal/httputil"
	"github.com/banshee-data/sample.return/internal/rover/l4grid"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// VoteBalance returns one point per voted cell: x, y and the obstacle
// votes minus the navigable votes. Cells without votes are omitted. span
// is the largest absolute balance, at least 1.
func VoteBalance(m *l4grid.WorldMap) (pts []opts.ScatterData, span int64) {
	n := m.Size()
	span = 1
	for i, v := range m.VoteGrid() {
		if v.Obstacle == 0 && v.Navigable == 0 {
			continue
		}
		balance := int64(v.Obstacle) - int64(v.Navigable)
		pts = append(pts, opts.ScatterData{Value: []interface{}{i % n, i / n, balance}})
		span = max(span, balance, -balance)
	}
	return pts, span
}

// handleVoteHeatmap renders the vote grid as a coloured scatter: red
// where obstacle votes lead, blue where navigable votes lead.
func (s *Server) handleVoteHeatmap(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Source == nil {
		httputil.ServiceUnavailable(w, "no pipeline running")
		return
	}
	m := s.cfg.Source.Map()
	pts, span := VoteBalance(m)

	n := m.Size()
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Rover Vote Grid", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Vote Grid", Subtitle: fmt.Sprintf("cells=%d cycles=%d", len(pts), s.cfg.Source.View().Cycles)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: n, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: n, Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(-span),
			Max:        float32(span),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#2166ac", "#67a9cf", "#f7f7f7", "#ef8a62", "#b2182b"}},
		}),
	)
	scatter.AddSeries("votes", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
