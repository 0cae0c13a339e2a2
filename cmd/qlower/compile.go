package main

import (
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qlower/internal/diag"
)

var (
	readFile  = os.ReadFile
	writeFile = os.WriteFile
)

func newCompileCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile [file]",
		Short: "Lower the entry point for the target profile",
		Long: `Reads a program from file, or stdin when the file is "-" or missing, and
prints the lowered module. Diagnostics go to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := c.readSource(args)
			if err != nil {
				return err
			}
			comp, err := c.compiler()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			m, diags, err := comp.Compile(ctx, source)
			c.report(source, diags)
			if err != nil {
				return &exitError{code: exitRejected, err: err}
			}
			text := m.String()
			if output == "" {
				_, err = c.stdout.Write([]byte(text))
				return err
			}
			if err := writeFile(output, []byte(text), 0o644); err != nil {
				return &exitError{code: exitUsage, err: errors.Wrapf(err, "write %s", output)}
			}
			c.errorf("Compiled to: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the module to this file")
	return cmd
}

// report prints each diagnostic with the source line it points at.
func (c *cli) report(source string, diags diag.List) {
	for _, d := range diags {
		c.errorf("%s\n", diag.Render(source, d))
	}
}
