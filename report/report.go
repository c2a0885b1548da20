// Package report renders a finished run into machine-readable and
// human-readable artifacts: JSON for tooling, JUnit XML for CI systems, and a
// self-contained HTML page.
package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"github.com/mykhaliev/skilltest/version"
	"github.com/pkg/errors"
)

//go:embed templates/*.html templates/*.css
var templateFS embed.FS

const (
	TypeJSON  = "json"
	TypeJUnit = "junit"
	TypeHTML  = "html"

	filePermission = 0644
)

// Write renders the summary into every requested report type. The base path
// supplies the directory and file stem; each type appends its own extension.
func Write(summary model.RunSummary, basePath string, types []string) error {
	if len(types) == 0 {
		types = []string{TypeJSON}
	}

	stem := strings.TrimSuffix(basePath, filepath.Ext(basePath))
	if dir := filepath.Dir(stem); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create report directory")
		}
	}

	for _, reportType := range types {
		var path string
		var err error

		switch strings.ToLower(strings.TrimSpace(reportType)) {
		case TypeJSON:
			path = stem + ".json"
			err = WriteJSON(summary, path)
		case TypeJUnit:
			path = stem + ".xml"
			err = WriteJUnit(summary, path)
		case TypeHTML:
			path = stem + ".html"
			err = WriteHTML(summary, path)
		default:
			return fmt.Errorf("unknown report type: %s (expected json, junit, html)", reportType)
		}
		if err != nil {
			return err
		}

		if logger.Logger != nil {
			logger.Logger.Info("Report written", "type", reportType, "path", path)
		}
	}

	return nil
}

// ============================================================================
// JSON
// ============================================================================

// WriteJSON dumps the full summary, assertion rows included, as indented JSON.
func WriteJSON(summary model.RunSummary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal run summary")
	}
	return errors.Wrap(os.WriteFile(path, data, filePermission), "failed to write JSON report")
}

// ============================================================================
// JUNIT
// ============================================================================

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Cases    []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Content string `xml:",chardata"`
}

// WriteJUnit emits CI-consumable JUnit XML. Assertion failures map to
// <failure>, timeouts and process errors to <error>.
func WriteJUnit(summary model.RunSummary, path string) error {
	out := junitTestSuites{
		Name:     "skilltest",
		Tests:    summary.Total,
		Failures: 0,
		Errors:   0,
	}

	var totalDuration time.Duration

	for _, suite := range summary.Suites {
		js := junitTestSuite{
			Name:  suite.Name,
			Tests: suite.Total(),
		}

		for _, test := range suite.Tests {
			totalDuration += test.Duration
			tc := junitTestCase{
				Name:      test.Spec.ID,
				ClassName: suite.Name,
				Time:      fmt.Sprintf("%.3f", test.Duration.Seconds()),
			}

			switch test.Status {
			case model.StatusFailed:
				js.Failures++
				tc.Failure = &junitMessage{
					Message: "assertion failure",
					Content: formatChecks(test.FailedChecks()),
				}
			case model.StatusTimeout:
				js.Errors++
				tc.Error = &junitMessage{Message: "timeout", Content: "agent invocation exceeded its timeout"}
			case model.StatusError:
				js.Errors++
				tc.Error = &junitMessage{Message: "execution error", Content: test.Stderr}
			case model.StatusSkipped:
				tc.Skipped = &junitMessage{Message: "skipped"}
			}

			js.Cases = append(js.Cases, tc)
		}

		out.Failures += js.Failures
		out.Errors += js.Errors
		out.Suites = append(out.Suites, js)
	}

	out.Time = fmt.Sprintf("%.3f", totalDuration.Seconds())

	data, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JUnit report")
	}
	data = append([]byte(xml.Header), data...)
	return errors.Wrap(os.WriteFile(path, data, filePermission), "failed to write JUnit report")
}

func formatChecks(checks []model.AssertionCheck) string {
	lines := make([]string, 0, len(checks))
	for _, c := range checks {
		line := c.Description
		if c.Detail != "" {
			line += " (" + c.Detail + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ============================================================================
// HTML
// ============================================================================

// reportData is the view handed to the HTML template.
type reportData struct {
	CSS         template.CSS
	Version     string
	GeneratedAt string
	Summary     model.RunSummary
	PassRate    string
}

// WriteHTML renders a single self-contained page: embedded CSS, no external
// assets, so the file survives being attached to CI artifacts or emails.
func WriteHTML(summary model.RunSummary, path string) error {
	cssContent, err := templateFS.ReadFile("templates/report.css")
	if err != nil {
		return errors.Wrap(err, "failed to read report stylesheet")
	}

	tmpl, err := template.New("report.html").Funcs(template.FuncMap{
		"seconds": func(d time.Duration) string {
			return fmt.Sprintf("%.1fs", d.Seconds())
		},
		"statusClass": func(s model.Status) string {
			return string(s)
		},
	}).ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return errors.Wrap(err, "failed to parse report template")
	}

	passRate := "0%"
	if summary.Total > 0 {
		passRate = fmt.Sprintf("%.0f%%", float64(summary.Passed)/float64(summary.Total)*100)
	}

	data := reportData{
		CSS:         template.CSS(cssContent),
		Version:     version.Version,
		GeneratedAt: summary.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Summary:     summary,
		PassRate:    passRate,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "failed to render report template")
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), filePermission), "failed to write HTML report")
}
