// Package errors provides the kiln error taxonomy, per-run failure collection
// and parsing of external compiler output into structured locations.
//
// Configuration errors and unwritable output directories are fatal. Transform
// and per-file I/O errors are recoverable: they are reported for the file and
// the run continues with the rest of the batch.
package errors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity classifies a parsed compiler diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParsedError is one diagnostic extracted from compiler output.
type ParsedError struct {
	Severity Severity `json:"severity"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Column   int      `json:"column,omitempty"`
	Message  string   `json:"message"`
	RawError string   `json:"raw_error"`
	Context  []string `json:"context,omitempty"`
}

// Location renders file:line:col, omitting unknown parts.
func (pe *ParsedError) Location() string {
	if pe.File == "" {
		return ""
	}
	loc := pe.File
	if pe.Line > 0 {
		loc += ":" + strconv.Itoa(pe.Line)
		if pe.Column > 0 {
			loc += ":" + strconv.Itoa(pe.Column)
		}
	}
	return loc
}

// FormatError formats a parsed error for terminal display.
func (pe *ParsedError) FormatError() string {
	var builder strings.Builder

	builder.WriteString("[" + pe.Severity.String() + "]")
	if loc := pe.Location(); loc != "" {
		builder.WriteString(" " + loc)
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("  %s\n", pe.Message))

	for _, line := range pe.Context {
		builder.WriteString(fmt.Sprintf("    %s\n", line))
	}

	return builder.String()
}

type errorPattern struct {
	regex       *regexp.Regexp
	severity    Severity
	parseFields func(matches []string) (file string, line int, column int, message string)
}

// Parser turns the stderr of external compilers (dart-sass, esbuild's text
// format) into structured diagnostics.
type Parser struct {
	patterns []errorPattern
}

// NewParser creates a parser with the built-in patterns.
func NewParser() *Parser {
	return &Parser{patterns: buildPatterns()}
}

var sassMessage = regexp.MustCompile(`^(Error|Warning): (.+)$`)

// Parse extracts every diagnostic found in output.
//
// dart-sass reports the message first and the location a few lines later
// ("  src/scss/core/style.scss 3:5  root stylesheet"); the two are joined.
func (p *Parser) Parse(output string) []*ParsedError {
	var parsed []*ParsedError
	var pending *ParsedError

	lines := strings.Split(output, "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := sassMessage.FindStringSubmatch(line); m != nil {
			severity := SeverityError
			if m[1] == "Warning" {
				severity = SeverityWarning
			}
			pending = &ParsedError{Severity: severity, Message: m[2], RawError: line}
			parsed = append(parsed, pending)
			continue
		}

		if perr := p.match(line); perr != nil {
			if pending != nil && pending.File == "" && perr.Message == "" {
				pending.File, pending.Line, pending.Column = perr.File, perr.Line, perr.Column
				pending.Context = contextLines(lines, i, 2)
				pending = nil
				continue
			}
			if perr.Message == "" {
				// further stack frames of an already located message
				continue
			}
			perr.Context = contextLines(lines, i, 2)
			parsed = append(parsed, perr)
		}
	}

	return parsed
}

// First returns the first error-severity diagnostic, or nil.
func (p *Parser) First(output string) *ParsedError {
	for _, perr := range p.Parse(output) {
		if perr.Severity == SeverityError {
			return perr
		}
	}
	return nil
}

func (p *Parser) match(line string) *ParsedError {
	for _, pattern := range p.patterns {
		matches := pattern.regex.FindStringSubmatch(line)
		if matches == nil {
			continue
		}
		file, lineNum, column, message := pattern.parseFields(matches)
		return &ParsedError{
			Severity: pattern.severity,
			File:     file,
			Line:     lineNum,
			Column:   column,
			Message:  message,
			RawError: line,
		}
	}
	return nil
}

func contextLines(lines []string, index int, radius int) []string {
	start := max(0, index-radius)
	end := min(len(lines), index+radius+1)

	var context []string
	for i := start; i < end; i++ {
		prefix := "  "
		if i == index {
			prefix = "→ "
		}
		context = append(context, prefix+lines[i])
	}

	return context
}

func buildPatterns() []errorPattern {
	return []errorPattern{
		{
			// dart-sass stack frame: "src/scss/_vars.scss 3:5  @use"; stdin is "-"
			regex:    regexp.MustCompile(`^(\S+\.(?:scss|sass|css)|-) (\d+):(\d+)\s+.*$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, ""
			},
		},
		{
			// esbuild text format: "app.js:3:7: ERROR: Expected ";" but found "x""
			regex:    regexp.MustCompile(`^(.+?):(\d+):(\d+): (ERROR|WARNING): (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[5]
			},
		},
		{
			regex:    regexp.MustCompile(`^(.+?):(\d+):(\d+): (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				line, _ := strconv.Atoi(matches[2])
				column, _ := strconv.Atoi(matches[3])
				return matches[1], line, column, matches[4]
			},
		},
		{
			regex:    regexp.MustCompile(`^no such file or directory: (.+)$`),
			severity: SeverityError,
			parseFields: func(matches []string) (string, int, int, string) {
				return matches[1], 0, 0, "File not found"
			},
		},
	}
}
