package checkin

import (
	"bytes"
	"html/template"
)

var statusTmpl = template.Must(template.New("status").Parse(`
{{- if .OK -}}
<div class="status status-ok" align="center" style="font-size:36pt">
<table>
{{- range .Info}}
<tr><td align="right">{{.Label}}:</td><td>{{.Value}}</td></tr>
{{- end}}
</table>
<p style="color:{{.Lateness.Color}}">{{.Lateness.Label}}</p>
</div>
{{- else -}}
<div class="status status-failed" align="center" style="font-size:36pt">
<p>Scan failed</p>
<p style="font-size:18pt; color:#888A85;">{{.Reason}}: {{.Scan}}</p>
</div>
{{- end -}}
`))

// RenderStatus renders the attendee-facing message for an outcome. Roster
// values are escaped.
func RenderStatus(out Outcome) (template.HTML, error) {
	var buf bytes.Buffer
	if err := statusTmpl.Execute(&buf, out); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
