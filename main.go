package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mykhaliev/skilltest/driver"
	"github.com/mykhaliev/skilltest/engine"
	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/skill"
	"github.com/mykhaliev/skilltest/templates"
	"github.com/mykhaliev/skilltest/version"
)

const (
	AppName = "skilltest"

	modelEnvVar    = "SKILLTEST_MODEL"
	timeoutEnvVar  = "SKILLTEST_TIMEOUT"
	maxTurnsEnvVar = "SKILLTEST_MAX_TURNS"
)

func main() {
	promptsPath := flag.String("f", "", "Path to a prompts file (YAML docs separated by ---)")
	suitePath := flag.String("s", "", "Path to a suite definition file (YAML)")
	validatePath := flag.String("validate", "", "Validate a plugin project directory and exit")
	strict := flag.Bool("strict", false, "Validation mode: treat warnings as errors")

	suiteFilter := flag.String("suite", "", "Comma-separated suite names to run")
	testFilter := flag.String("test", "", "Comma-separated test IDs to run")

	binary := flag.String("binary", driver.DefaultBinary, "Agent CLI binary")
	workingDir := flag.String("dir", "", "Working directory for agent invocations")
	modelName := flag.String("model", envOr(modelEnvVar, ""), "Model passed to the agent CLI")
	timeout := flag.Duration("timeout", envDuration(timeoutEnvVar, driver.DefaultTimeout), "Default per-test timeout")
	maxTurns := flag.Int("max-turns", envInt(maxTurnsEnvVar, driver.DefaultMaxTurns), "Agent-internal turn cap")
	format := flag.String("format", string(driver.FormatStreamJSON), "Agent output format: text or stream-json")

	outputPath := flag.String("o", "", "Report output path (extension set per report type)")
	reportTypes := flag.String("reportType", "json", "Comma-separated report types: json, junit, html")
	responseDir := flag.String("responses", "", "Directory for the response log (default test-results/e2e)")

	judgeProvider := flag.String("judge", "", "Semantic judge provider: anthropic or openai (off when empty)")
	judgeModel := flag.String("judgeModel", "", "Model used by the semantic judge")

	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	traceEnabled := flag.Bool("trace", false, "Export OpenTelemetry traces (OTLP HTTP)")
	showVersion := flag.Bool("v", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
			version.Version, version.Commit, version.BuildDate)
		return
	}

	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.SetupLogger(logWriter, *verbose)
	templates.NewTemplateEngine()

	if *validatePath != "" {
		os.Exit(runValidation(*validatePath, *strict))
	}

	if *promptsPath == "" && *suitePath == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <prompts-file>, -s <suite-file>, or -validate <dir> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	outputFormat := driver.OutputFormat(*format)
	if outputFormat != driver.FormatText && outputFormat != driver.FormatStreamJSON {
		logger.Logger.Error("Invalid output format", "format", *format)
		os.Exit(1)
	}

	logger.Logger.Info("Starting application",
		"app", AppName,
		"prompts", *promptsPath,
		"suites", *suitePath,
		"model", *modelName,
		"output", *outputPath,
		"verbose", *verbose)

	os.Exit(engine.Run(engine.Options{
		PromptsPath:   *promptsPath,
		SuitePath:     *suitePath,
		SuiteFilter:   splitList(*suiteFilter),
		TestFilter:    splitList(*testFilter),
		Binary:        *binary,
		WorkingDir:    *workingDir,
		Model:         *modelName,
		Timeout:       *timeout,
		MaxTurns:      *maxTurns,
		Format:        outputFormat,
		ReportPath:    *outputPath,
		ReportTypes:   splitList(*reportTypes),
		ResponseDir:   *responseDir,
		JudgeProvider: *judgeProvider,
		JudgeModel:    *judgeModel,
		Verbose:       *verbose,
		TraceEnabled:  *traceEnabled,
	}))
}

func runValidation(projectPath string, strict bool) int {
	report, err := skill.ValidateProject(projectPath, strict)
	if err != nil {
		logger.Logger.Error("Validation failed to run", "error", err)
		return 1
	}

	skill.PrintReport(report)
	if !report.Valid {
		return 1
	}
	return 0
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	dur, err := time.ParseDuration(v)
	if err != nil || dur <= 0 {
		return fallback
	}
	return dur
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
