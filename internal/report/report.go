// Package report renders suite results as Markdown, HTML and JSON.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/runner"
	"github.com/kuitang/spverify/internal/suite"
)

// Files written by WriteFiles.
const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
	JSONFile     = "report.json"
)

func verdict(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

// Markdown renders a summary table followed by each scenario's steps.
func Markdown(r suite.Report) []byte {
	var b bytes.Buffer
	passed, failed := r.Counts()

	b.WriteString("# Verification report\n\n")
	fmt.Fprintf(&b, "Run `%s` started %s and took %s.\n\n", r.RunID, r.Started.UTC().Format(time.RFC3339), roundDuration(r.Duration))
	fmt.Fprintf(&b, "**Result: %s** (%d passed, %d failed)\n\n", verdict(r.Passed()), passed, failed)

	if len(r.Results) == 0 {
		b.WriteString("No scenarios were run.\n")
		return b.Bytes()
	}

	b.WriteString("| Scenario | Result | Steps | Duration |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, res := range r.Results {
		fmt.Fprintf(&b, "| %s | %s | %d/%d | %s |\n",
			cell(res.Scenario), verdict(res.Passed()), passedSteps(res), res.TotalSteps, roundDuration(res.Duration))
	}

	for _, res := range r.Results {
		writeScenario(&b, res)
	}
	return b.Bytes()
}

func writeScenario(b *bytes.Buffer, res runner.Result) {
	fmt.Fprintf(b, "\n## %s: %s\n\n", res.Scenario, verdict(res.Passed()))
	for _, s := range res.Steps {
		fmt.Fprintf(b, "%d. %s %s (%s)\n", s.Index, verdict(s.Status == runner.Passed), inline(s.Description), roundDuration(s.Duration))
	}
	if skipped := res.TotalSteps - len(res.Steps); skipped > 0 && len(res.Steps) > 0 {
		fmt.Fprintf(b, "\n%d later step(s) were not run.\n", skipped)
	}

	if res.Err != nil {
		b.WriteString("\n```text\n")
		b.WriteString(fence(errs.Format(res.Err)))
		b.WriteString("\n```\n")
	}

	if len(res.Evidence) > 0 {
		b.WriteString("\nEvidence:\n\n")
		for _, a := range res.Evidence {
			line := fmt.Sprintf("- `%s`", a.Name)
			if a.Mirrored != "" {
				line += fmt.Sprintf(" (mirrored to `%s`)", a.Mirrored)
			}
			b.WriteString(line + "\n")
		}
	}

	if len(res.MockHits) > 0 || res.PassedThrough > 0 {
		fmt.Fprintf(b, "\nMocked requests: %d, passed through: %d\n", len(res.MockHits), res.PassedThrough)
	}
}

func passedSteps(res runner.Result) int {
	n := 0
	for _, s := range res.Steps {
		if s.Status == runner.Passed {
			n++
		}
	}
	return n
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Millisecond)
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func inline(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

// fence keeps page-derived text from closing the surrounding code block.
func fence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
pre { background: #f6f6f6; padding: 0.75rem; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders the Markdown report as a standalone page. The body is
// sanitized because it embeds text taken from the page under test.
func HTML(r suite.Report) ([]byte, error) {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	doc := parser.NewWithExtensions(extensions).Parse(Markdown(r))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("pre", "code", "table", "thead", "tbody", "tr", "th", "td")
	policy.AllowAttrs("class").OnElements("code", "pre")
	body := policy.SanitizeBytes(rendered)

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: fmt.Sprintf("spverify %s: %s", r.RunID, verdict(r.Passed())),
		Body:  template.HTML(body),
	})
	if err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return out.Bytes(), nil
}

type jsonStep struct {
	runner.StepResult
	Error string `json:"error,omitempty"`
}

type jsonResult struct {
	runner.Result
	Steps       []jsonStep        `json:"steps"`
	Error       string            `json:"error,omitempty"`
	Code        errs.Code         `json:"code,omitempty"`
	Diagnostics *errs.Diagnostics `json:"diagnostics,omitempty"`
}

type jsonReport struct {
	RunID    string        `json:"run_id"`
	Passed   bool          `json:"passed"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Results  []jsonResult  `json:"results"`
}

// JSON renders the report for machines. Errors become strings with their code
// and diagnostics.
func JSON(r suite.Report) ([]byte, error) {
	out := jsonReport{
		RunID:    r.RunID,
		Passed:   r.Passed(),
		Started:  r.Started,
		Duration: r.Duration,
		Results:  make([]jsonResult, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		jr := jsonResult{Result: res, Steps: make([]jsonStep, 0, len(res.Steps))}
		for _, s := range res.Steps {
			js := jsonStep{StepResult: s}
			if s.Err != nil {
				js.Error = s.Err.Error()
			}
			jr.Steps = append(jr.Steps, js)
		}
		if res.Err != nil {
			jr.Error = res.Err.Error()
			jr.Code = errs.CodeOf(res.Err)
			if d, ok := errs.DiagnosticsOf(res.Err); ok {
				jr.Diagnostics = &d
			}
		}
		out.Results = append(out.Results, jr)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFiles writes report.md, report.html and report.json into dir and
// returns their paths.
func WriteFiles(dir string, r suite.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.IO, "create report directory", err)
	}
	htmlData, err := HTML(r)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "render report", err)
	}
	jsonData, err := JSON(r)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "render report", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{MarkdownFile, Markdown(r)},
		{HTMLFile, htmlData},
		{JSONFile, jsonData},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return nil, errs.Wrap(errs.IO, fmt.Sprintf("write %s", f.name), err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
