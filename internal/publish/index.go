package publish

import (
	"html/template"
	"os"
	"time"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/scheduler"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Name}}</title></head>
<body>
<h1>{{.Name}}</h1>
<p>Mode {{.Mode}}, finished in {{.Duration}}. Outcome: <b>{{.Outcome}}</b>.</p>
<table border="1" cellpadding="4">
<tr><th>task</th><th>succeeded</th><th>failed</th><th>skipped</th><th>cancelled</th></tr>
{{range .Tasks}}<tr><td>{{.Name}}</td><td>{{.Counts.Succeeded}}</td><td>{{.Counts.Failed}}</td><td>{{.Counts.Skipped}}</td><td>{{.Counts.Cancelled}}</td></tr>
{{end}}</table>
<p>Artifacts under <code>data/</code>; per-instance detail in <a href="instances.csv">instances.csv</a>.</p>
</body>
</html>
`))

func writeIndex(cfg *config.Run, sum *scheduler.Summary, path string) error {
	outcome := "succeeded"
	if sum.Failed() {
		outcome = "failed"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = indexTmpl.Execute(f, struct {
		Name     string
		Mode     string
		Duration time.Duration
		Outcome  string
		Tasks    []scheduler.TaskSummary
	}{
		Name:     cfg.RunName,
		Mode:     string(cfg.Mode),
		Duration: sum.Duration.Round(time.Second),
		Outcome:  outcome,
		Tasks:    sum.Tasks,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
