// Package templates renders Handlebars expressions inside prompts and suite
// variables, with helpers for random test data.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/mykhaliev/skilltest/logger"
)

type TemplateEngine struct{}

var (
	templateEngineInstance *TemplateEngine
	templateEngineOnce     sync.Once
)

// NewTemplateEngine returns the singleton instance of TemplateEngine.
// Helpers are registered once; raymond panics on duplicate registration.
func NewTemplateEngine() *TemplateEngine {
	templateEngineOnce.Do(func() {
		registerHelpers()
		templateEngineInstance = &TemplateEngine{}
	})
	return templateEngineInstance
}

func registerHelpers() {
	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		randomType := strings.ToUpper(options.HashStr("type"))
		if randomType == "" {
			randomType = "ALPHANUMERIC"
		}

		length := 10
		if lengthVal := options.HashProp("length"); lengthVal != nil {
			switch v := lengthVal.(type) {
			case int:
				length = v
			case string:
				fmt.Sscanf(v, "%d", &length)
			}
		}
		if length <= 0 {
			length = 10
		}

		switch randomType {
		case "UUID":
			return uuid.New().String()
		case "NAME":
			return gofakeit.Name()
		case "EMAIL":
			return gofakeit.Email()
		case "WORD":
			return gofakeit.Word()
		case "NUMERIC":
			return gofakeit.DigitN(uint(length))
		case "ALPHABETIC":
			return gofakeit.LetterN(uint(length))
		default:
			return gofakeit.Password(true, true, true, false, false, length)
		}
	})

	raymond.RegisterHelper("timestamp", func(options *raymond.Options) string {
		layout := options.HashStr("format")
		if layout == "" {
			layout = time.RFC3339
		}
		return time.Now().Format(layout)
	})

	raymond.RegisterHelper("env", func(name string) string {
		return os.Getenv(name)
	})
}

// Render substitutes template expressions in text using the given context.
// Unparseable templates are returned unchanged: a prompt that happens to
// contain braces must not break the run.
func (e *TemplateEngine) Render(text string, context map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	tpl, err := raymond.Parse(text)
	if err != nil {
		if logger.Logger != nil {
			logger.Logger.Warn("Failed to parse template, using raw text", "error", err)
		}
		return text
	}
	rendered, err := tpl.Exec(context)
	if err != nil {
		if logger.Logger != nil {
			logger.Logger.Warn("Failed to render template, using raw text", "error", err)
		}
		return text
	}
	return rendered
}

// StaticContext builds the template context available to every prompt of a
// run: all environment variables, SPEC_DIR (the directory of the source
// file), and user variables from the suite definition. User variables win on
// collision.
func StaticContext(sourceFile string, variables map[string]string) map[string]string {
	ctx := make(map[string]string)

	for _, kv := range os.Environ() {
		if idx := strings.Index(kv, "="); idx > 0 {
			ctx[kv[:idx]] = kv[idx+1:]
		}
	}

	if sourceFile != "" {
		if absPath, err := filepath.Abs(sourceFile); err == nil {
			ctx["SPEC_DIR"] = filepath.Dir(absPath)
		}
	}

	for k, v := range variables {
		ctx[k] = v
	}

	return ctx
}
