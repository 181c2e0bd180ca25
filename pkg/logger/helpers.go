package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Icons used by the convenience helpers
const (
	IconSuccess = "✅"
	IconWarning = "⚠️"
	IconRefresh = "🔄"
	IconSignal  = "📡"
	IconDot     = "•"
	IconArrow   = "→"
)

var (
	sectionColor = color.New(color.FgCyan, color.Bold)
	subColor     = color.New(color.FgHiBlack)
	keyColor     = color.New(color.FgCyan)
)

func init() {
	for _, c := range []*color.Color{sectionColor, subColor, keyColor} {
		c.EnableColor()
	}
}

// Success logs a success message with a green checkmark
func Success(args ...interface{}) {
	defaultLogger.Info(IconSuccess + " " + fmt.Sprint(args...))
}

// Successf logs a formatted success message
func Successf(format string, args ...interface{}) {
	Success(fmt.Sprintf(format, args...))
}

// Progress logs a progress message with a refresh icon
func Progress(args ...interface{}) {
	defaultLogger.Info(IconRefresh + " " + fmt.Sprint(args...))
}

// Progressf logs a formatted progress message
func Progressf(format string, args ...interface{}) {
	Progress(fmt.Sprintf(format, args...))
}

// Signal logs an acoustic link event
func Signal(args ...interface{}) {
	defaultLogger.Info(IconSignal + " " + fmt.Sprint(args...))
}

// Signalf logs a formatted acoustic link event
func Signalf(format string, args ...interface{}) {
	Signal(fmt.Sprintf(format, args...))
}

// output returns the default writer and whether colour is enabled on it.
func output() (io.Writer, bool) {
	s := defaultSink()
	if s == nil {
		return os.Stdout, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer, !s.noColor
}

func banner(c *color.Color, title string, width int, rule string) {
	w, colored := output()
	line := strings.Repeat(rule, width)
	if colored {
		line = c.Sprint(line)
		title = c.Sprint(title)
	}
	_, _ = fmt.Fprintln(w, line)
	_, _ = fmt.Fprintln(w, title)
	_, _ = fmt.Fprintln(w, line)
}

// LogSection creates a visual section separator
func LogSection(title string) {
	banner(sectionColor, title, 50, "=")
}

// LogSubSection creates a visual subsection separator
func LogSubSection(title string) {
	banner(subColor, title, 40, "-")
}

// LogList logs a list of items with bullets
func LogList(title string, items []string) {
	Info(title)
	w, _ := output()
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "  %s %s\n", IconDot, item)
	}
}

// LogKeyValue logs a key-value pair
func LogKeyValue(key string, value interface{}) {
	w, colored := output()
	if colored {
		key = keyColor.Sprint(key + ":")
	} else {
		key += ":"
	}
	_, _ = fmt.Fprintf(w, "%s %v\n", key, value)
}

// Table is a fixed-width text table
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row to the table
func (t *Table) AddRow(values ...string) {
	t.rows = append(t.rows, values)
}

// Render writes the table to w
func (t *Table) Render(w io.Writer) {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i < len(widths) {
				_, _ = fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		_, _ = fmt.Fprintln(w)
	}

	writeRow(t.headers)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("-", n)
	}
	writeRow(rule)
	for _, row := range t.rows {
		writeRow(row)
	}
}

// Print writes the table to the default logger's output
func (t *Table) Print() {
	w, _ := output()
	t.Render(w)
}
