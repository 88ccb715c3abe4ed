package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/encoding"
	"github.com/effective-security/toolscope/mcp"
	"github.com/effective-security/toolscope/pkg/prompts"
	"github.com/effective-security/toolscope/selector"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/toolscope/toolset"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ErrScriptFault is returned by the run command when the script faulted.
var ErrScriptFault = errors.New("script faulted")

var (
	alwaysColor  = color.New(color.FgGreen, color.Bold)
	matchedColor = color.New(color.FgCyan)
	dimColor     = color.New(color.Faint)
)

func (c *cli) toolsCmd() *cobra.Command {
	var (
		format      string
		definitions bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the catalog",
		Long: `List the catalog in registration order, or print the function
definitions of every tool with --definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				out []byte
				err error
			)
			cat := c.toolset.Catalog()
			if definitions {
				out, err = encoding.EncodeDefinitions(format, toolset.Definitions(cat.All()))
			} else {
				out, err = encoding.EncodeListing(format, cat.Infos())
			}
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(out)
			return errors.WithStack(err)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", encoding.FormatText, "output format: json, yaml, toml or text")
	cmd.Flags().BoolVar(&definitions, "definitions", false, "print the function definitions")
	return cmd
}

func (c *cli) selectCmd() *cobra.Command {
	var (
		query       string
		topK        int
		format      string
		tmpl        string
		definitions bool
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show the tools exposed for a query",
		Long: `Show the tools exposed for a query: the eager tools followed by the
deferred tools that best match it.

--template renders a Go template with the sprig functions. The template
receives .Query, .TopK, .Scorer and .Items, each item with .Tag, .Name,
.Description, .Examples and .Score.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" && len(args) > 0 {
				query = args[0]
			}
			if !cmd.Flags().Changed("top-k") {
				topK = c.toolset.TopK()
			}

			ctx, done := c.startRun(cmd.Context())
			defer done()

			sel, err := c.toolset.Select(ctx, query, topK)
			if err != nil {
				return err
			}

			switch {
			case tmpl != "":
				out, err := prompts.RenderGoTemplate(tmpl, selectionValues(sel))
				if err != nil {
					return err
				}
				fmt.Fprint(c.stdout, out)
			case definitions:
				out, err := encoding.EncodeDefinitions(format, toolset.Definitions(sel.Descriptors()))
				if err != nil {
					return err
				}
				_, _ = c.stdout.Write(out)
			case !strings.EqualFold(format, encoding.FormatText):
				infos := make([]tools.Info, len(sel.Items))
				for i, d := range sel.Descriptors() {
					infos[i] = d.Info()
				}
				out, err := encoding.EncodeListing(format, infos)
				if err != nil {
					return err
				}
				_, _ = c.stdout.Write(out)
			default:
				printSelection(c.stdout, sel)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "user request")
	cmd.Flags().IntVarP(&topK, "top-k", "k", selector.DefaultTopK, "number of deferred tools to expose (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", encoding.FormatText, "output format: json, yaml, toml or text")
	cmd.Flags().StringVar(&tmpl, "template", "", "Go template to render the selection")
	cmd.Flags().BoolVar(&definitions, "definitions", false, "print the function definitions of the exposed tools")
	return cmd
}

func (c *cli) callCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool> [input]",
		Short: "Invoke one tool by name",
		Long: `Invoke one tool by name. The input is a JSON object matching the
tool parameters, or a plain text for tools taking a single text argument.
When omitted, the input is read from stdin.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input string
			if len(args) > 1 {
				input = args[1]
			} else {
				bs, err := io.ReadAll(c.stdin)
				if err != nil {
					return errors.Wrap(err, "failed to read input")
				}
				input = strings.TrimSpace(string(bs))
			}

			ctx, done := c.startRun(cmd.Context())
			defer done()

			res := c.toolset.Dispatch(ctx, toolset.ToolCall{Name: args[0], Arguments: input})
			fmt.Fprintln(c.stdout, strings.TrimRight(res.Content, "\n"))
			if res.IsError {
				return errors.Newf("tool %s failed", args[0])
			}
			return nil
		},
	}
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file|->",
		Short: "Run an orchestration script",
		Long: `Run an orchestration script from a file, or from stdin when the
argument is - or omitted. Only what the script prints is written to stdout.
On a fault the diagnostic is written and the command fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := c.readScript(args)
			if err != nil {
				return err
			}

			ctx, done := c.startRun(cmd.Context())
			defer done()

			res, err := c.toolset.Run(ctx, script)
			if err != nil {
				return err
			}
			fmt.Fprint(c.stdout, res.Output)
			if res.Truncated {
				fmt.Fprintln(c.stderr, dimColor.Sprint("(output truncated)"))
			}
			if !res.Success {
				if !strings.HasSuffix(res.Output, "\n") {
					fmt.Fprintln(c.stdout)
				}
				return errors.WithStack(ErrScriptFault)
			}
			return nil
		},
	}
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	var (
		addr     string
		endpoint string
		stdio    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the toolset to MCP clients",
		Long: `Serve the toolset to Model Context Protocol clients over HTTP,
or over stdin and stdout with --stdio. tools/list accepts a "query"
parameter to list only the tools exposed for a request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := mcp.NewServer(c.toolset,
				mcp.WithInstructions(serverInstructions),
			)
			if stdio {
				return server.ServeStdio(ctx, c.stdin, c.stdout)
			}
			return mcp.ListenAndServe(ctx, addr, endpoint, server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&endpoint, "endpoint", mcp.DefaultEndpoint, "HTTP path of the MCP endpoint")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve on stdin and stdout")
	return cmd
}

const serverInstructions = "Call tools/list with a query to get the tools relevant to the request. " +
	"Use run_orchestration to chain several tool calls in one step, only what the script prints is returned."

func (c *cli) readScript(args []string) (string, error) {
	var (
		bs  []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		bs, err = io.ReadAll(c.stdin)
	} else {
		bs, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read script")
	}
	return string(bs), nil
}

// startRun starts the scratchpad when verbose,
// the returned func prints its transcript to stderr.
func (c *cli) startRun(ctx context.Context) (context.Context, func()) {
	if c.scratchpad == nil {
		return ctx, func() {}
	}
	ctx = c.scratchpad.StartRun(ctx)
	return ctx, func() {
		_, transcript := c.scratchpad.EndRun(ctx)
		_, _ = c.stderr.Write(transcript)
	}
}

// printSelection prints one colored line per exposed tool with its first example.
func printSelection(w io.Writer, sel *selector.Selection) {
	for _, item := range sel.Items {
		tag := alwaysColor.Sprintf("[%s]", item.Tag)
		if item.Tag == selector.TagMatched {
			tag = matchedColor.Sprintf("[%s]", item.Tag)
		}
		fmt.Fprintf(w, "  %s %s", tag, item.Descriptor.Name())
		if item.Tag == selector.TagMatched {
			fmt.Fprint(w, dimColor.Sprintf(" (%.4f)", item.Score))
		}
		fmt.Fprintln(w)
		if ex := item.Descriptor.FirstExample(); ex != "" {
			fmt.Fprintf(w, "           Example: %s\n", ex)
		}
	}
}

func selectionValues(sel *selector.Selection) map[string]any {
	items := make([]map[string]any, len(sel.Items))
	for i, item := range sel.Items {
		d := item.Descriptor
		items[i] = map[string]any{
			"Tag":         string(item.Tag),
			"Name":        d.Name(),
			"Description": d.Description(),
			"Examples":    d.Examples(),
			"Score":       item.Score,
		}
	}
	return map[string]any{
		"Query":  sel.Query,
		"TopK":   sel.TopK,
		"Scorer": sel.Scorer,
		"Items":  items,
	}
}
