package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	bomerrors "github.com/matzehuels/superbom/pkg/errors"
	"github.com/matzehuels/superbom/pkg/license"
)

// licenseCheck is one row of the license command's output.
type licenseCheck struct {
	Input string `json:"input"`
	license.Verdict
}

// licenseCommand creates the license command, which runs license strings or
// license files through the SPDX oracle.
func (c *CLI) licenseCommand() *cobra.Command {
	var (
		files   []string
		allowed []string
		format  = formatTable
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "license [text...]",
		Short: "Check license strings against the SPDX policy",
		Example: `  superbom license MIT "Apache Software License" "GPLv3"
  superbom license --file LICENSE
  superbom license --allowed MIT --allowed Apache-2.0 "MIT OR GPL-3.0-only"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(files) == 0 {
				return bomerrors.New(bomerrors.ErrCodeInvalidInput, "no license text or --file given")
			}
			if format != formatTable && format != formatJSON {
				return bomerrors.New(bomerrors.ErrCodeInvalidFormat, "unknown format %q (available: table, json)", format)
			}
			if len(allowed) == 0 {
				fc, err := loadConfig(c.configPath, defaultEnvFile)
				if err != nil {
					return err
				}
				allowed = fc.AllowedLicenses
			}
			oracle, err := license.NewSPDXOracle(allowed)
			if err != nil {
				return err
			}

			inputs := args
			for _, f := range files {
				text, err := identifyFile(f)
				if err != nil {
					return err
				}
				inputs = append(inputs, text)
			}

			checks := checkLicenses(oracle, inputs)
			if format == formatJSON {
				if err := writeJSON(os.Stdout, checks); err != nil {
					return err
				}
			} else {
				printLicenseChecks(checks)
			}

			if strict {
				for _, ch := range checks {
					if !ch.Supported {
						return bomerrors.New(bomerrors.ErrCodeInvalidInput, "license %q is not supported", ch.Input)
					}
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&files, "file", nil, "identify the license text in a file (repeatable)")
	f.StringSliceVar(&allowed, "allowed", nil, "allowed SPDX licenses (overrides the config file)")
	f.StringVarP(&format, "format", "f", format, "output format: table, json")
	f.BoolVar(&strict, "strict", false, "fail when any license is not supported")
	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{formatTable, formatJSON}, cobra.ShellCompDirectiveNoFileComp))
	return cmd
}

func checkLicenses(o license.Oracle, inputs []string) []licenseCheck {
	out := make([]licenseCheck, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, licenseCheck{Input: in, Verdict: o.Check(in)})
	}
	return out
}

// identifyFile reads a license file and returns the SPDX identifier of the
// text it contains.
func identifyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", bomerrors.Wrap(bomerrors.ErrCodeFileNotFound, err, "open %s", path)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	id, ok := license.IdentifyText(string(data))
	if !ok {
		return "", bomerrors.New(bomerrors.ErrCodeNotFound, "no known license text in %s", path)
	}
	return id, nil
}

func printLicenseChecks(checks []licenseCheck) {
	for _, ch := range checks {
		if ch.Supported {
			printSuccess("%s %s %s", ch.Input, StyleDim.Render(iconArrow), StyleHighlight.Render(ch.Canonical))
			continue
		}
		printError("%s %s", ch.Input, StyleDim.Render(fmt.Sprintf("(not supported, reported as %q)", ch.Canonical)))
	}
}
