package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatHuman = "human"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatHuman, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("invalid format '%s': must be one of human, json, yaml", format)
}

var styles = struct {
	title lipgloss.Style
	label lipgloss.Style
	dim   lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	cell  lipgloss.Style
}{
	title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	label: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	dim:   lipgloss.NewStyle().Faint(true),
	ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	err:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	cell:  lipgloss.NewStyle().PaddingRight(2),
}

// printer renders command results in the selected output format.
type printer struct {
	format string
	out    io.Writer
	errOut io.Writer
}

func newPrinter(cmd *cobra.Command) *printer {
	return &printer{format: settings.Format, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
}

// print writes v as JSON or YAML, or calls human for the human format.
func (p *printer) print(v any, human func(w io.Writer)) error {
	switch p.format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		human(p.out)
		return nil
	}
}

// warn writes a warning to stderr regardless of the output format.
func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.errOut, styles.warn.Render("warning: ")+fmt.Sprintf(format, args...))
}

func printKV(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s %s\n", styles.label.Render(key+":"), value)
}

// printTable renders rows as left-aligned columns under a bold header.
func printTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}
	line := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = styles.cell.Width(widths[i] + 2).Render(style.Render(c))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, ""), " "))
	}
	line(header, styles.title)
	for _, row := range rows {
		line(row, lipgloss.NewStyle())
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// parseTags turns repeated k=v flags into a map.
func parseTags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	tags := make(map[string]string, len(values))
	for _, kv := range values {
		k, val, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q: expected key=value", kv)
		}
		tags[k] = strings.TrimSpace(val)
	}
	return tags, nil
}

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	data, _ := json.Marshal(tags)
	return string(data)
}
