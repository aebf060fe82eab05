// Package ui renders the plain-text tables and headers of the sugar CLI
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Table renders rows under a header, columns padded to the widest cell
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{writer: w, headers: headers, noColor: noColor}
}

// AddRow adds a row; missing cells render empty
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], len(row[i]))
		}
	}

	head := t.style(color.Bold, color.FgCyan)
	rule := t.style(color.FgHiBlack)

	last := len(widths) - 1
	for i, h := range t.headers {
		head.Fprint(t.writer, cell(h, widths[i], i == last))
	}
	fmt.Fprintln(t.writer)
	for i, w := range widths {
		rule.Fprint(t.writer, cell(strings.Repeat("─", w), 0, i == last))
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i := range widths {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			fmt.Fprint(t.writer, cell(v, widths[i], i == last))
		}
		fmt.Fprintln(t.writer)
	}
}

func (t *Table) style(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

// cell pads s to width and separates it from the next column; the last
// column is not padded
func cell(s string, width int, last bool) string {
	if last {
		return s
	}
	return padRight(s, width) + "  "
}

func padRight(s string, width int) string {
	if pad := width - len(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the table
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		width = max(width, len(k)+1)
	}
	key := color.New(color.FgCyan)
	if t.noColor {
		key.DisableColor()
	}
	for i, k := range t.keys {
		key.Fprint(t.writer, padRight(k+":", width))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// Header writes a bold title underlined to its width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	rule := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		rule.DisableColor()
	}
	bold.Fprintln(w, title)
	rule.Fprintln(w, strings.Repeat("─", len(title)))
}
