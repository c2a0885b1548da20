package engine

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mykhaliev/skilltest/driver"
	"github.com/mykhaliev/skilltest/judge"
	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"github.com/mykhaliev/skilltest/report"
	"github.com/mykhaliev/skilltest/specs"
	"github.com/mykhaliev/skilltest/telemetry"
	"github.com/mykhaliev/skilltest/templates"
	"github.com/mykhaliev/skilltest/version"
	"github.com/tmc/langchaingo/llms"
)

// Options carries everything the CLI resolved from flags and environment.
type Options struct {
	PromptsPath string
	SuitePath   string

	SuiteFilter []string
	TestFilter  []string

	Binary     string
	WorkingDir string
	Model      string
	Timeout    time.Duration
	MaxTurns   int
	Format     driver.OutputFormat

	ReportPath  string
	ReportTypes []string
	ResponseDir string

	JudgeProvider string
	JudgeModel    string

	Verbose      bool
	TraceEnabled bool
}

// Run executes a full test run and returns the process exit code: 0 iff
// every executed test passed. Precondition failures (missing binary, missing
// auth, unreadable input) fail fast before any test runs; everything after
// that is captured per test and never aborts the run.
func Run(opts Options) int {
	ctx := context.Background()

	scenario := opts.PromptsPath
	if scenario == "" {
		scenario = opts.SuitePath
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Enabled:        opts.TraceEnabled,
		ServiceName:    "skilltest",
		ServiceVersion: version.Version,
		Scenario:       scenario,
	})
	if err != nil {
		// Tracing is optional: degrade, never abort.
		logger.Logger.Warn("Failed to initialize tracing, continuing without", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Logger.Warn("Telemetry shutdown error", "error", err)
		}
	}()

	// Load suites before spawning anything so malformed input fails fast.
	suites, variables, err := loadSuites(opts)
	if err != nil {
		logger.Logger.Error("Failed to load test definitions", "error", err)
		return 1
	}
	if countSpecs(suites) == 0 {
		logger.Logger.Error("No test cases found", "source", scenario)
		return 1
	}

	d := driver.New(driver.Config{
		Binary:       opts.Binary,
		WorkingDir:   opts.WorkingDir,
		Model:        opts.Model,
		Timeout:      opts.Timeout,
		MaxTurns:     opts.MaxTurns,
		OutputFormat: opts.Format,
		Verbose:      opts.Verbose,
	})

	// Startup preconditions: the only fatal failures of a run.
	if err := d.CheckBinary(ctx); err != nil {
		logger.Logger.Error("Agent CLI precondition failed", "error", err)
		return 1
	}
	if err := d.CheckAuth(); err != nil {
		logger.Logger.Error("Authentication precondition failed", "error", err)
		return 1
	}

	responseLog, err := logger.NewResponseLog(opts.ResponseDir)
	if err != nil {
		logger.Logger.Warn("Response log unavailable, continuing without", "error", err)
		responseLog = nil
	}
	defer responseLog.Close()

	runner := NewRunner(d, RunnerConfig{
		Model:          opts.Model,
		DefaultTimeout: opts.Timeout,
		Verbose:        opts.Verbose,
		TemplateCtx:    templates.StaticContext(scenario, variables),
		ResponseLog:    responseLog,
		JudgeLLM:       resolveJudge(opts),
	})

	logger.Logger.Info("Starting test execution",
		"suites", len(suites),
		"tests", countSpecs(suites),
		"model", opts.Model)

	results := runner.RunAll(ctx, suites, opts.SuiteFilter, opts.TestFilter)

	allPassed := PrintSummary(results, responseLog.Path())

	if opts.ReportPath != "" {
		summary := Summarize(opts.Model, results)
		if err := report.Write(summary, opts.ReportPath, opts.ReportTypes); err != nil {
			logger.Logger.Error("Failed to write reports", "error", err)
			return 1
		}
	}

	if !allPassed {
		logger.Logger.Warn("Tests completed with failures")
		return 1
	}
	logger.Logger.Info("All tests passed")
	return 0
}

func loadSuites(opts Options) ([]model.Suite, map[string]string, error) {
	if opts.SuitePath != "" {
		if err := ValidateInputFile(opts.SuitePath); err != nil {
			return nil, nil, err
		}
		return specs.ParseSuiteFile(opts.SuitePath)
	}

	if err := ValidateInputFile(opts.PromptsPath); err != nil {
		return nil, nil, err
	}
	parsed, err := specs.ParsePromptsFile(opts.PromptsPath)
	if err != nil {
		return nil, nil, err
	}
	return []model.Suite{specs.SuiteFromPrompts(opts.PromptsPath, parsed)}, nil, nil
}

func countSpecs(suites []model.Suite) int {
	n := 0
	for _, s := range suites {
		n += len(s.Tests)
	}
	return n
}

// resolveJudge builds the optional semantic judge. Any configuration problem
// disables the advisory pass instead of failing the run.
func resolveJudge(opts Options) llms.Model {
	if opts.JudgeProvider == "" {
		return nil
	}

	token := os.Getenv(driver.APIKeyEnvVar)
	if strings.EqualFold(opts.JudgeProvider, "openai") {
		token = os.Getenv("OPENAI_API_KEY")
	}

	judgeLLM, err := judge.NewProvider(opts.JudgeProvider, opts.JudgeModel, token)
	if err != nil {
		logger.Logger.Warn("Semantic judge unavailable, skipping advisory scoring", "error", err)
		return nil
	}
	return judgeLLM
}
