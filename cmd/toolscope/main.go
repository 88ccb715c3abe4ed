// Command toolscope lists the tools of a catalog, shows which tools are
// exposed for a request, calls a tool, runs orchestration scripts and
// serves the toolset to MCP clients.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/callbacks"
	"github.com/effective-security/toolscope/factory"
	"github.com/effective-security/toolscope/toolset"
	"github.com/effective-security/xlog"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "cmd")

// cli holds the state shared by the commands.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfgFile  string
	logLevel string
	verbose  bool
	noColor  bool

	cfg        *factory.Config
	toolset    *toolset.Toolset
	scratchpad *callbacks.Scratchpad
}

func main() {
	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "toolscope",
		Short: "Tool selection and orchestration for LLM agents",
		Long: `toolscope exposes a small set of relevant tools per request
instead of the whole catalog, and runs orchestration scripts that chain
several tool calls and return only what they print.

Commands:
  tools    list the catalog or print the function definitions
  select   show the tools exposed for a query
  call     invoke one tool by name
  run      run an orchestration script
  serve    serve the toolset to MCP clients`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "configuration file, the built-in defaults when empty")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, notice, warning or error (overrides config)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "print the selections and tool calls to stderr")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.toolsCmd(),
		c.selectCmd(),
		c.callCmd(),
		c.runCmd(),
		c.serveCmd(),
	)
	return root
}

// setup configures the logger and builds the toolset.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.noColor {
		color.NoColor = true
	}

	cfg, err := factory.LoadConfig(c.cfgFile)
	if err != nil {
		return errors.WithMessage(err, "failed to load configuration")
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
		if err = cfg.Validate(); err != nil {
			return err
		}
	}

	xlog.SetFormatter(xlog.NewStringFormatter(c.stderr))
	xlog.SetGlobalLogLevel(cfg.Logging.LogLevel())

	var opts []factory.Option
	if c.verbose {
		c.scratchpad = callbacks.NewScratchpad(callbacks.ModeVerbose)
		opts = append(opts, factory.WithCallback(callbacks.NewFanout(
			callbacks.NewPrinter(c.stderr, callbacks.ModeDefault),
			c.scratchpad,
		)))
	} else {
		opts = append(opts, factory.WithCallback(callbacks.NewPackageLogger(logger)))
	}

	c.cfg = cfg
	c.toolset, err = factory.New(cfg, opts...)
	if err != nil {
		return err
	}

	logger.ContextKV(cmd.Context(), xlog.DEBUG,
		"status", "configured",
		"config", c.cfgFile,
		"tools", c.toolset.Names(),
	)
	return nil
}
