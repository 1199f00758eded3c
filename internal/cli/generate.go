package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/superbom/pkg/bom"
)

// generateOpts holds the command-line flags for the generate command.
type generateOpts struct {
	output      string   // output file or directory; stdout when empty
	format      string   // table, json or csv
	platforms   []string // extra conda platforms
	channels    []string // extra conda channels
	refresh     bool     // bypass cached registry responses
	noCache     bool     // disable the response cache
	interactive bool     // browse entries in a TUI
}

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	opts := generateOpts{format: formatTable}

	cmd := &cobra.Command{
		Use:   "generate [path]",
		Short: "Generate a license BOM for a manifest or a directory of manifests",
		Long: `Generate resolves every dependency declared in the manifests under path
(environment.yml, requirements*.txt, pyproject.toml) to a version and a
license, and checks the license against the SPDX policy.

A directory is searched recursively. Each manifest is labelled with the name
of the directory that holds it.`,
		Example: `  superbom generate environment.yml
  superbom generate . -f json -o bom.json
  superbom generate ./services -f csv -o reports/
  superbom generate . -p linux-64 --channel bioconda`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			return c.runGenerate(cmd.Context(), path, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file, or directory for one file per manifest")
	f.StringVarP(&opts.format, "format", "f", opts.format, "output format: table, json, csv")
	f.StringSliceVarP(&opts.platforms, "platform", "p", nil, "additional conda platform to search (repeatable)")
	f.StringSliceVar(&opts.channels, "channel", nil, "additional conda channel to search (repeatable)")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "browse the result interactively")
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{formatTable, formatJSON, formatCSV}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

func (c *CLI) runGenerate(ctx context.Context, path string, opts generateOpts) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	fc, err := loadConfig(c.configPath, defaultEnvFile)
	if err != nil {
		return err
	}

	var spin *Spinner
	if !c.verbose && !opts.interactive {
		spin = newSpinnerWithContext(ctx, "Discovering manifests...")
		spin.Start()
	}
	stopSpinner := func() {
		if spin != nil {
			spin.Stop()
			spin = nil
		}
	}
	defer stopSpinner()

	popts := pipelineOpts{
		noCache:   opts.noCache,
		refresh:   opts.refresh,
		channels:  opts.channels,
		platforms: opts.platforms,
	}
	if s := spin; s != nil {
		popts.onFetch = func(url string, received int64) {
			s.SetMessage(fmt.Sprintf("Downloading %s (%s)", url, formatBytes(received)))
		}
		popts.progress = func(m *bom.ManifestReport, done, total int) {
			s.SetMessage(fmt.Sprintf("Resolving %s [%d/%d]", m.Label, done, total))
		}
	}

	p, err := c.newPipeline(ctx, fc, popts)
	if err != nil {
		return err
	}
	defer p.Close()

	prog := newProgress(c.Logger)
	report, err := p.assembler.Generate(ctx, path)
	stopSpinner()
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Resolved %d dependencies", report.Stats.Total))

	if opts.interactive {
		return browse(report)
	}
	return emitReport(os.Stdout, report, opts)
}

// emitReport writes the report to stdout, a file or a directory.
func emitReport(stdout io.Writer, report *bom.Report, opts generateOpts) error {
	switch {
	case opts.output == "":
		if err := writeReport(stdout, opts.format, report, true); err != nil {
			return err
		}
		if opts.format == formatTable {
			printStats(report.Stats)
		}
		return nil

	case isDirTarget(opts.output):
		paths, err := writeOutputs(opts.output, opts.format, report)
		if err != nil {
			return err
		}
		printSuccess("Wrote %d reports", len(paths))
		for _, p := range paths {
			printFile(p)
		}

	default:
		if dir := filepath.Dir(opts.output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := writeFile(opts.output, func(w io.Writer) error {
			return writeReport(w, opts.format, report, false)
		}); err != nil {
			return err
		}
		printSuccess("Wrote report")
		printFile(opts.output)
	}
	printStats(report.Stats)
	return nil
}

// browse opens the interactive entry browser.
func browse(report *bom.Report) error {
	_, err := tea.NewProgram(newEntryListModel(report), tea.WithAltScreen()).Run()
	return err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
