package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qlower/internal/compiler"
	"qlower/internal/config"
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	profile    string
	entry      string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "qlower",
		Short: "Capability-aware lowering for quantum programs",
		Long: `qlower checks a quantum program against a target profile and lowers its
entry point to a block-structured instruction module the target can run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return &exitError{code: exitUsage, err: errors.New("no command given")}
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&c.profile, "profile", "p", "", "target profile (minimal, partial, extended, unrestricted)")
	flags.StringVarP(&c.entry, "entry", "e", "", "entry callable")
	flags.BoolVar(&c.debug, "debug", false, "development logging")

	root.AddCommand(
		newCompileCmd(c),
		newCapsCmd(c),
		newProfilesCmd(c),
		newVersionCmd(c),
	)
	return root
}

// setup loads the configuration and applies flag overrides.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if cmd.Flags().Changed("profile") {
		cfg.Profile = c.profile
	}
	if cmd.Flags().Changed("entry") {
		cfg.Entry = c.entry
	}
	if _, err := cfg.TargetProfile(); err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	c.cfg = cfg

	logger, err := cfg.CreateLogger(c.debug)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	c.logger = logger
	return nil
}

func (c *cli) compiler() (*compiler.Compiler, error) {
	opts, err := compiler.LoadOptions(c.cfg)
	if err != nil {
		return nil, &exitError{code: exitUsage, err: err}
	}
	return compiler.New(c.logger, opts), nil
}

// readSource reads the program from the named file, or stdin for "-" or no
// argument.
func (c *cli) readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", &exitError{code: exitUsage, err: errors.Wrap(err, "read stdin")}
		}
		return string(data), nil
	}
	data, err := readFile(args[0])
	if err != nil {
		return "", &exitError{code: exitUsage, err: errors.Wrapf(err, "read %s", args[0])}
	}
	return string(data), nil
}

func (c *cli) errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.stderr, format, args...)
}
