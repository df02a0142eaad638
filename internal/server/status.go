package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/kiln/internal/scheduler"
)

// StatusPage renders the status of every class as an HTML table.
func StatusPage(title string, status []scheduler.Status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!doctype html><html><head><meta charset="utf-8"><title>`+templ.EscapeString(title)+` status</title>`+
			`<style>body{font-family:sans-serif;margin:2em}td,th{padding:.3em 1em;text-align:left}.failed{color:#b00}</style></head><body>`); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "<h1>"+templ.EscapeString(title)+"</h1><table><thead><tr>"+
			"<th>Class</th><th>State</th><th>Remembered</th><th>Last run</th><th>Transformed</th><th>Skipped</th><th>Failures</th>"+
			"</tr></thead><tbody>"); err != nil {
			return err
		}
		for _, st := range status {
			if err := statusRow(st).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</tbody></table></body></html>")
		return err
	})
}

func statusRow(st scheduler.Status) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		last, transformed, skipped, failures := "never", "-", "-", ""
		if st.Last != nil {
			last = st.Last.StartedAt.Format(time.TimeOnly) + " (" + st.Last.Duration.Round(time.Millisecond).String() + ")"
			transformed = fmt.Sprint(len(st.Last.Transformed))
			skipped = fmt.Sprint(len(st.Last.Skipped))
			for _, msg := range st.Last.FailureMessages() {
				failures += "<div class=\"failed\">" + templ.EscapeString(msg) + "</div>"
			}
		}
		_, err := io.WriteString(w, "<tr>"+
			"<td>"+templ.EscapeString(string(st.Class))+"</td>"+
			"<td>"+templ.EscapeString(string(st.State))+"</td>"+
			"<td>"+fmt.Sprint(st.Remembered)+"</td>"+
			"<td>"+templ.EscapeString(last)+"</td>"+
			"<td>"+transformed+"</td>"+
			"<td>"+skipped+"</td>"+
			"<td>"+failures+"</td>"+
			"</tr>")
		return err
	})
}
