package main

import (
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/markkurossi/tabulate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"qlower/internal/caps"
)

var tableStyles = map[string]tabulate.Style{
	"plain":   tabulate.Plain,
	"ascii":   tabulate.ASCII,
	"unicode": tabulate.Unicode,
	"csv":     tabulate.CSV,
	"json":    tabulate.JSON,
}

func tableStyle(name string) (tabulate.Style, error) {
	s, ok := tableStyles[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(tableStyles))
		for n := range tableStyles {
			names = append(names, n)
		}
		sort.Strings(names)
		return s, &exitError{code: exitUsage,
			err: errors.Errorf("unknown table format %q (want one of %s)", name, strings.Join(names, ", "))}
	}
	return s, nil
}

func flagList(s caps.Set) string {
	if s.IsEmpty() {
		return "-"
	}
	names := make([]string, 0, s.Len())
	for _, f := range s.Flags() {
		names = append(names, f.String())
	}
	return strings.Join(names, " ")
}

func newCapsCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "caps [file]",
		Short: "Report the capabilities each callable requires",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := tableStyle(format)
			if err != nil {
				return err
			}
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

			reports, diags, err := comp.Capabilities(ctx, source)
			c.report(source, diags)
			if err != nil {
				return &exitError{code: exitRejected, err: err}
			}

			tab := tabulate.New(style)
			tab.Header("Callable")
			tab.Header("Variant")
			tab.Header("Minimal profile")
			tab.Header("Required")
			for _, r := range reports {
				row := tab.Row()
				row.Column(r.Callable)
				row.Column(r.Variant.String())
				if r.Admitted {
					row.Column(r.Minimal.String())
				} else {
					row.Column("none")
				}
				row.Column(flagList(r.Required))
			}
			tab.Print(c.stdout)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "unicode", "table format (plain, ascii, unicode, csv, json)")
	return cmd
}

func newProfilesCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the target profiles and the capabilities they permit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			style, err := tableStyle(format)
			if err != nil {
				return err
			}
			lattice, err := c.cfg.Lattice()
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			tab := tabulate.New(style)
			tab.Header("Profile")
			tab.Header("Permitted")
			for _, p := range caps.Profiles {
				row := tab.Row()
				row.Column(p.String())
				row.Column(flagList(lattice.Permitted(p)))
			}
			tab.Print(c.stdout)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "unicode", "table format (plain, ascii, unicode, csv, json)")
	return cmd
}
