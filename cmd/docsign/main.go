// Command docsign drives the document signing service from a terminal:
// account management, document creation, delivery to signers, signing and
// AI summaries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"docsign/internal/config"
	"docsign/internal/util"
)

const usage = `usage: docsign [--config <path>] <command> [flags]

commands:
  register     create an account
  login        log in and store the session
  logout       forget the stored session
  whoami       show the logged-in user
  templates    list document templates and their fields
  create       generate a document from a template
  list         list your documents
  download     fetch the original or signed PDF
  send         send a document to its signer
  status       show signing status of one or all documents
  summarize    request an AI summary
  summary      show the AI summary of a document
  sign         sign a document through a signing link
  serve-fake   run an in-memory document service for local use`

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"register":   runRegister,
	"login":      runLogin,
	"logout":     runLogout,
	"whoami":     runWhoami,
	"templates":  runTemplates,
	"create":     runCreate,
	"list":       runList,
	"download":   runDownload,
	"send":       runSend,
	"status":     runStatus,
	"summarize":  runSummarize,
	"summary":    runSummary,
	"sign":       runSign,
	"serve-fake": runServeFake,
}

// errUsage marks failures that should exit with status 2.
var errUsage = errors.New("usage error")

type cli struct {
	cfg    config.FileConfig
	stdout io.Writer
	stderr io.Writer
	app    *app
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("docsign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage) }
	configPath := fs.String("config", "", "path to docsign.yaml")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s\n", rest[0], usage)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	util.InitLogger(cfg.LogLevel)

	c := &cli{cfg: cfg, stdout: stdout, stderr: stderr}
	defer func() {
		if c.app != nil {
			c.app.Close()
		}
	}()
	if err := cmd(ctx, c, rest[1:]); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintln(stderr, describeError(err))
		return 1
	}
	return 0
}

// services builds the wiring lazily so that serve-fake and templates need
// no session store.
func (c *cli) services() (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := newApp(c.cfg)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (c *cli) usageError(format string, args ...any) error {
	fmt.Fprintf(c.stderr, format+"\n", args...)
	return errUsage
}

type repeatStringFlag []string

func (r *repeatStringFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatStringFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	*r = append(*r, v)
	return nil
}
