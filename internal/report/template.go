package report

import "html/template"

var pageTemplate = template.Must(template.New("positions").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; max-width: 900px; margin: 20px auto; padding: 20px; }
h2 { color: #333; }
table { border-collapse: collapse; width: 100%; margin: 20px 0; }
td, th { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
th { background: #f5f5f5; font-weight: bold; }
.profit { color: #28a745; font-weight: bold; }
.loss { color: #dc3545; font-weight: bold; }
.guess { color: #999; font-size: 0.8em; }
.summary td { background: #f9f9f9; }
</style>
</head><body>
<h2>{{.Title}}</h2>
<p><small>Last updated: {{.UpdatedAt}}</small></p>
<table>
<thead>
<tr><th>Symbol</th><th>Side</th><th>Leverage</th><th>Entry Price</th><th>Unrealized P&amp;L</th></tr>
</thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.Symbol}}{{if .Inferred}} <span class="guess">(guess)</span>{{end}}</td><td>{{.Side}}</td><td>{{.Leverage}}</td><td>{{.Entry}}</td><td class="{{.Class}}">{{.PnLText}}</td></tr>
{{- else}}
<tr><td colspan="5">No positions parsed</td></tr>
{{- end}}
</tbody>
</table>
<p><strong>Total P&amp;L:</strong> <span class="{{.Summary.Class}}">{{.Summary.Total}}</span></p>
{{- if .Summary.HasData}}
<table class="summary">
<tr><td>Positions</td><td>{{.Summary.Count}} ({{.Summary.Priced}} with P&amp;L)</td></tr>
<tr><td>Mean P&amp;L</td><td>{{.Summary.Mean}}</td></tr>
<tr><td>Best</td><td>{{.Summary.Best}}</td></tr>
<tr><td>Worst</td><td>{{.Summary.Worst}}</td></tr>
</table>
{{- end}}
</body></html>
`))
