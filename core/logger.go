package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProductionLogger is the structured Logger to hand to NewSheriff via
// WithLogger (without one, a Sheriff uses NoOpLogger): structured lines to
// an io.Writer, either JSON (for log
// aggregation) or a human-readable line (for local runs), tagged with a
// service name and a component string so a consumer can filter per
// subsystem (spec.md §9's log lines are unstructured text; this is the
// ambient, production-grade replacement). Grounded on the teacher's
// core.ProductionLogger (core/config.go), trimmed of the HTTP-request
// trace-baggage layer this module has no use for.
type ProductionLogger struct {
	serviceName string
	component   string
	format      string // "json" or "text"
	debug       bool
	output      io.Writer
}

// NewProductionLogger builds a ProductionLogger writing to output. format
// is "json" or anything else for human-readable text; debug controls
// whether Debug-level lines are emitted at all.
func NewProductionLogger(serviceName, format string, debug bool, output io.Writer) *ProductionLogger {
	if output == nil {
		output = os.Stdout
	}
	return &ProductionLogger{
		serviceName: serviceName,
		format:      strings.ToLower(format),
		debug:       debug,
		output:      output,
	}
}

// WithComponent implements ComponentAwareLogger, returning a logger
// identical to this one except for its component tag.
func (p *ProductionLogger) WithComponent(component string) Logger {
	cp := *p
	cp.component = component
	return &cp
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields)
	}
}

func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
		return
	}

	var fieldStr strings.Builder
	for k, v := range fields {
		fieldStr.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s\n",
		timestamp, level, p.serviceName, p.component, msg, fieldStr.String())
}
