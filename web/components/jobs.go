package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"recorte/internal/models"
)

// Layout wraps a page body with the shared head and styles.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="pt-BR"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, templ.EscapeString(title)); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</title><style>`+pageCSS+`</style></head><body><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
	`table{border-collapse:collapse;width:100%}th,td{padding:.4rem .6rem;border-bottom:1px solid #ddd;text-align:left}` +
	`.queued{color:#777}.running{color:#b8860b}.completed{color:#2e7d32}.failed{color:#c62828}` +
	`td.err{max-width:28rem;overflow:hidden;text-overflow:ellipsis;white-space:nowrap}`

// JobList renders the recent jobs table.
func JobList(jobs []models.Job) templ.Component {
	return Layout("Recorte - processos", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h1>Processos recentes</h1>`); err != nil {
			return err
		}
		if len(jobs) == 0 {
			_, err := io.WriteString(w, `<p>Nenhum processo.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>ID</th><th>Status</th><th>Etapa</th>`+
			`<th>Corte</th><th>Título</th><th>Arquivo</th><th>Erro</th><th>Criado</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for i := range jobs {
			if err := jobRow(&jobs[i]).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	}))
}

func jobRow(job *models.Job) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		file := ""
		if job.Status == models.JobStatusCompleted && job.Filename != "" {
			file = fmt.Sprintf(`<a href="/api/download/%s">%s</a> (%.2f MB)`,
				templ.EscapeString(job.ID), templ.EscapeString(job.Filename), job.SizeMB())
		}
		_, err := fmt.Fprintf(w,
			`<tr><td><code>%s</code></td><td class="%s">%s</td><td>%s</td><td>%ds–%ds</td>`+
				`<td>%s</td><td>%s</td><td class="err" title="%s">%s</td><td>%s</td></tr>`,
			templ.EscapeString(job.ID),
			templ.EscapeString(job.Status), templ.EscapeString(job.Status),
			templ.EscapeString(job.Step),
			job.Start, job.End,
			templ.EscapeString(job.Title),
			file,
			templ.EscapeString(job.Error), templ.EscapeString(job.Error),
			job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		)
		return err
	})
}
