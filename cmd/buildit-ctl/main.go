// Command buildit-ctl is an operator CLI for the coordinator's HTTP
// surface: creating pipelines, inspecting jobs, and listing the worker
// fleet, dispatching to one subcommand per verb.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/distr1/distri"
)

var server = flag.String("server", envOr("BUILDIT_CTL_SERVER", "http://localhost:3718"), "coordinator base URL")

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// plain reports whether stdout is not a terminal, so output can drop
// decorative separators when piped (e.g. into a script or `column`).
func plain() bool {
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"pipeline-new":    {cmdPipelineNew},
		"pipeline-new-pr": {cmdPipelineNewPR},
		"pipeline-info":   {cmdPipelineInfo},
		"pipeline-list":   {cmdPipelineList},
		"worker-list":     {cmdWorkerList},
		"job-info":        {cmdJobInfo},
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "buildit-ctl [-server=%s] <command> [args]\n\n", *server)
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "\tpipeline-new    -branch=B -packages=P [-archs=A]\n")
		fmt.Fprintf(os.Stderr, "\tpipeline-new-pr -pr=N [-archs=A]\n")
		fmt.Fprintf(os.Stderr, "\tpipeline-info   -id=N\n")
		fmt.Fprintf(os.Stderr, "\tpipeline-list   [-page=1] [-items_per_page=20]\n")
		fmt.Fprintf(os.Stderr, "\tworker-list     [-page=1] [-items_per_page=20]\n")
		fmt.Fprintf(os.Stderr, "\tjob-info        -id=N\n")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		os.Exit(2)
	}

	ctx, canc := distri.InterruptibleContext()
	defer canc()
	return v.fn(ctx, rest)
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
