package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"slackrelay/internal/format"
)

var funcs = template.FuncMap{
	"escape": format.Escape,
	"utc": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

var templates = template.Must(template.New("notify").Funcs(funcs).Parse(`
{{- define "header" }}*Cluster:* {{ escape .ClusterName }} (` + "`{{ escape .ClusterID }}`" + `){{ end }}

{{- define "custom" -}}
:warning: *Cluster Notification*

{{ template "header" . }}

{{ escape .Message }}
{{- end }}

{{- define "warning" -}}
:warning: *Cluster Expiration Warning*

{{ template "header" . }}
{{- with .ExpirationDate }}
*Expires:* {{ utc . }}
{{- end }}

This cluster will expire in approximately *48 hours*. Please take action to extend or decommission.
{{- end }}

{{- define "expiration" -}}
:rotating_light: *Cluster Expired*

{{ template "header" . }}

This cluster has reached its expiration date and will be decommissioned.
{{- end }}
`))

// Render builds the Slack text for req. A custom message replaces the
// generated body for either type.
func Render(req Request) (string, error) {
	name := string(req.Type)
	if req.Message != "" {
		name = "custom"
	}
	if templates.Lookup(name) == nil {
		return "", fmt.Errorf("no template for notification type %q", req.Type)
	}
	var out strings.Builder
	if err := templates.ExecuteTemplate(&out, name, req); err != nil {
		return "", fmt.Errorf("render %s notification: %w", name, err)
	}
	return out.String(), nil
}
