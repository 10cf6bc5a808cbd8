// Package report renders attendance reports as printable HTML and PDF.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/tho-bre/event-flow/internal/aggregate"
	"github.com/tho-bre/event-flow/internal/domain"
)

// Document is everything a rendered report shows.
type Document struct {
	Event     domain.Event
	Width     aggregate.Width
	Buckets   []aggregate.Bucket
	Location  *time.Location
	Generated time.Time
}

const (
	chartWidth  = 720
	chartHeight = 240
	chartPad    = 24
)

type bar struct {
	X, Y, W, H float64
	LabelX     float64
	Label      string
	Net        int
}

type chart struct {
	Width, Height float64
	BaselineY     float64
	Bars          []bar
}

// layoutChart scales bucket nets into SVG bars around a zero baseline.
func layoutChart(buckets []aggregate.Bucket) chart {
	c := chart{Width: chartWidth, Height: chartHeight}
	maxPos, maxNeg := 0, 0
	for _, b := range buckets {
		if b.Net > maxPos {
			maxPos = b.Net
		}
		if -b.Net > maxNeg {
			maxNeg = -b.Net
		}
	}
	span := maxPos + maxNeg
	if span == 0 {
		span = 1
	}
	plot := float64(chartHeight - 2*chartPad)
	unit := plot / float64(span)
	c.BaselineY = chartPad + float64(maxPos)*unit
	if len(buckets) == 0 {
		return c
	}

	slot := float64(chartWidth-2*chartPad) / float64(len(buckets))
	for i, b := range buckets {
		h := float64(b.Net) * unit
		y := c.BaselineY - h
		if b.Net < 0 {
			h, y = -h, c.BaselineY
		}
		x := chartPad + float64(i)*slot + slot*0.15
		c.Bars = append(c.Bars, bar{
			X:      x,
			Y:      y,
			W:      slot * 0.7,
			H:      h,
			LabelX: x + slot*0.35,
			Label:  b.Label,
			Net:    b.Net,
		})
	}
	return c
}

var pageTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"f": func(v float64) string { return fmt.Sprintf("%.1f", v) },
}).Parse(pageHTML))

// RenderHTML writes the report page to w.
func RenderHTML(w io.Writer, doc Document) error {
	loc := doc.Location
	if loc == nil {
		loc = time.UTC
	}
	data := struct {
		Name      string
		Date      string
		Window    string
		Interval  string
		Total     int
		Generated string
		Buckets   []aggregate.Bucket
		Chart     chart
	}{
		Name:      doc.Event.Name,
		Date:      doc.Event.StartsAt.In(loc).Format("02/01/2006"),
		Window:    doc.Event.StartsAt.In(loc).Format("15:04") + " - " + doc.Event.EndsAt.In(loc).Format("15:04"),
		Interval:  doc.Width.String(),
		Total:     doc.Event.Total,
		Generated: doc.Generated.In(loc).Format("02/01/2006 15:04"),
		Buckets:   doc.Buckets,
		Chart:     layoutChart(doc.Buckets),
	}
	return pageTemplate.Execute(w, data)
}

// HTML renders the report page to a string.
func HTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageHTML = `<!doctype html>
<html lang="fr">
<head>
  <meta charset="utf-8" />
  <title>{{.Name}}</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 24px; color: #0f172a; }
    h1 { margin: 0 0 4px; }
    .meta { color: #475569; margin-bottom: 16px; }
    .total { font-size: 28px; font-weight: 700; margin: 12px 0; }
    table { width: 100%; border-collapse: collapse; margin-top: 16px; }
    th, td { padding: 6px 8px; border-bottom: 1px solid #e2e8f0; text-align: left; }
    th { background: #f8fafc; }
    td.num { text-align: right; }
    .pos { fill: #2563eb; }
    .neg { fill: #dc2626; }
    .axis { stroke: #94a3b8; }
    text { font-size: 10px; fill: #475569; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">{{.Date}} · {{.Window}} · {{.Interval}}</div>
  <div class="total">{{.Total}}</div>

  <svg width="{{f .Chart.Width}}" height="{{f .Chart.Height}}" viewBox="0 0 {{f .Chart.Width}} {{f .Chart.Height}}">
    <line class="axis" x1="0" x2="{{f .Chart.Width}}" y1="{{f .Chart.BaselineY}}" y2="{{f .Chart.BaselineY}}" />
    {{- range .Chart.Bars}}
    <rect class="{{if lt .Net 0}}neg{{else}}pos{{end}}" x="{{f .X}}" y="{{f .Y}}" width="{{f .W}}" height="{{f .H}}" />
    <text x="{{f .LabelX}}" y="{{f $.Chart.Height}}" text-anchor="middle" dy="-6">{{.Label}}</text>
    {{- end}}
  </svg>

  <table>
    <thead>
      <tr><th>Créneau</th><th class="num">Entrées</th><th class="num">Sorties</th><th class="num">Net</th></tr>
    </thead>
    <tbody>
    {{- range .Buckets}}
      <tr><td>{{.Label}}</td><td class="num">{{.Entries}}</td><td class="num">{{.Exits}}</td><td class="num">{{.Net}}</td></tr>
    {{- end}}
    </tbody>
  </table>

  <div class="meta">Généré le {{.Generated}}</div>
</body>
</html>
`
