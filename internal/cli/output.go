package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/superbom/pkg/bom"
	"github.com/matzehuels/superbom/pkg/deps"
	bomerrors "github.com/matzehuels/superbom/pkg/errors"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

var outputFormats = []string{formatTable, formatJSON, formatCSV}

var csvHeader = []string{"label", "package", "version", "license", "validated", "source", "license_source", "ecosystem"}

func validateFormat(format string) error {
	for _, f := range outputFormats {
		if f == format {
			return nil
		}
	}
	return bomerrors.New(bomerrors.ErrCodeInvalidFormat,
		"unknown format %q (available: %s)", format, strings.Join(outputFormats, ", "))
}

// extension returns the file extension used for format.
func extension(format string) string {
	if format == formatTable {
		return "txt"
	}
	return format
}

// outputFileName is the per-manifest file written when --output is a
// directory.
func outputFileName(label, format string) string {
	return label + "-dependencies." + extension(format)
}

// writeReport writes every manifest of r to w as one document.
func writeReport(w io.Writer, format string, r *bom.Report, styled bool) error {
	switch format {
	case formatJSON:
		return writeJSON(w, r)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, m := range r.Manifests {
			if err := writeCSVRows(cw, m.Label, m.Entries); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		for i := range r.Manifests {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := writeTable(w, &r.Manifests[i], styled); err != nil {
				return err
			}
		}
		return nil
	}
}

// writeManifest writes one manifest report to w.
func writeManifest(w io.Writer, format string, m *bom.ManifestReport, styled bool) error {
	switch format {
	case formatJSON:
		return writeJSON(w, m)
	case formatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		if err := writeCSVRows(cw, m.Label, m.Entries); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	default:
		return writeTable(w, m, styled)
	}
}

// writeOutputs writes one file per manifest into dir and returns the paths
// written.
func writeOutputs(dir, format string, r *bom.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for i := range r.Manifests {
		m := &r.Manifests[i]
		path := filepath.Join(dir, outputFileName(m.Label, format))
		if err := writeFile(path, func(w io.Writer) error {
			return writeManifest(w, format, m, false)
		}); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// isDirTarget reports whether an --output value names a directory: an
// existing directory or a path ending in a separator.
func isDirTarget(path string) bool {
	if strings.HasSuffix(path, string(os.PathSeparator)) || strings.HasSuffix(path, "/") {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSVRows(cw *csv.Writer, label string, entries []deps.Entry) error {
	for _, e := range entries {
		rec := []string{
			label,
			e.Package,
			e.Version,
			e.License,
			strconv.FormatBool(e.Validated),
			e.Source,
			e.LicenseSource,
			string(e.Ecosystem),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// writeTable renders m as a bordered table. Unstyled tables carry no ANSI
// escapes and are used for files.
func writeTable(w io.Writer, m *bom.ManifestReport, styled bool) error {
	title := fmt.Sprintf("%s (%s, %s)", m.Label, m.Type, m.Path)
	if styled {
		title = StyleTitle.Render(title)
	}
	if _, err := fmt.Fprintln(w, title); err != nil {
		return err
	}
	if m.Error != "" {
		_, err := fmt.Fprintf(w, "  error: %s\n", m.Error)
		return err
	}

	rows := make([][]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		mark := iconSuccess
		if !e.Validated {
			mark = iconError
		}
		rows = append(rows, []string{e.Package, e.Version, e.License, mark, e.Source})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Package", "Version", "License", "Valid", "Source").
		Rows(rows...)
	if styled {
		headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == -1:
					return headerStyle
				case row < 0 || row >= len(m.Entries):
					return lipgloss.NewStyle()
				case col == 3 && m.Entries[row].Validated:
					return styleValidated
				case col == 3 || (col == 2 && !m.Entries[row].Validated):
					return styleUnvalidated
				}
				return lipgloss.NewStyle()
			})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
