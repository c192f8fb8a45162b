// Command optijit compiles and runs YAML function trees.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/astio"
	"github.com/funvibe/optijit/internal/codegen"
	"github.com/funvibe/optijit/internal/compiler"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/engine"
	"github.com/funvibe/optijit/internal/persist"
	"github.com/funvibe/optijit/internal/prettyprinter"
)

const usage = `Usage:
  optijit compile [-config file] [-timing] [-stats] [-ast] file.yaml...
  optijit run [-config file] file.yaml
  optijit disasm [-config file] file.yaml
  optijit cache [-config file] prune|clean
`

// cli carries the streams and settings shared by every command.
type cli struct {
	stdout, stderr io.Writer
	color          bool
	log            zerolog.Logger
	opts           config.Options
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}
	c := &cli{stdout: stdout, stderr: stderr, color: isTerminal(stderr)}
	var cmd func(*cli, []string) error
	switch args[0] {
	case "compile":
		cmd = (*cli).compile
	case "run":
		cmd = (*cli).run
	case "disasm":
		cmd = (*cli).disasm
	case "cache":
		cmd = (*cli).cache
	default:
		c.fail(errors.Errorf("unknown command %q", args[0]))
		fmt.Fprint(stderr, usage)
		return 2
	}
	if err := cmd(c, args[1:]); err != nil {
		c.fail(err)
		return 1
	}
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// flags parses the command line of one command. The config is read from
// -config, else from the nearest optijit.yaml, else the defaults apply.
func (c *cli) flags(name string, args []string, define func(*flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	path := fs.String("config", "", "config file")
	verbose := fs.Bool("v", false, "debug logging")
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *path == "" {
		found, err := config.FindConfig(".")
		if err != nil {
			return nil, err
		}
		*path = found
	}
	c.opts = config.Default()
	if *path != "" {
		opts, err := config.LoadConfig(*path)
		if err != nil {
			return nil, err
		}
		c.opts = *opts
	}
	level := c.opts.Level()
	if *verbose {
		level = zerolog.DebugLevel
	}
	c.log = zerolog.New(zerolog.ConsoleWriter{Out: c.stderr, NoColor: !c.color}).
		Level(level).With().Timestamp().Logger()
	return fs, nil
}

func (c *cli) openCache() (*persist.Cache, error) {
	return persist.Open(c.opts.Persistence, c.log)
}

func (c *cli) compile(args []string) error {
	var timing, stats, printAST bool
	fs, err := c.flags("compile", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&timing, "timing", false, "print phase durations")
		fs.BoolVar(&stats, "stats", false, "print function counts")
		fs.BoolVar(&printAST, "ast", false, "print the compiled tree")
	})
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("compile needs at least one file")
	}
	timing = timing || c.opts.Timing

	var jobs []engine.Job
	for _, path := range fs.Args() {
		doc, err := astio.ReadFile(path)
		if err != nil {
			return err
		}
		jobs = append(jobs, engine.Job{Name: doc.Name, Source: doc.Source, Program: doc.Program})
	}
	cache, err := c.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	t := compiler.NewTiming()
	results, err := engine.CompileAll(context.Background(), c.opts, c.log, cache, compiler.RecipeBytecodeOnly, jobs, compiler.WithTiming(t))
	if err != nil {
		return err
	}
	for i, res := range results {
		c.report(jobs[i].Name, res, stats)
		if printAST {
			fmt.Fprintln(c.stdout, prettyprinter.Print(res.Function))
		}
	}
	if timing {
		c.printTiming(t)
	}
	return nil
}

// report prints the units of one compile with their weights and sizes.
func (c *cli) report(name string, res *compiler.Result, stats bool) {
	fmt.Fprintf(c.stdout, "%s: root %s\n", name, res.Root)
	for _, u := range res.Units {
		fmt.Fprintf(c.stdout, "  %-24s weight %-8s %s\n", u.Name, humanize.Comma(int64(u.Weight)), humanize.Bytes(uint64(len(res.Bytecode[u.Name]))))
	}
	for _, r := range res.Rejected {
		c.warn("%s: unit %s rejected: %v", name, r.Unit, r.Err)
	}
	if !stats {
		return
	}
	var functions, fragments, stubs int
	for _, f := range ast.Functions(res.Function) {
		switch {
		case f.Is(ast.IsSplit):
			fragments++
		case f.Is(ast.IsLazyStub):
			stubs++
		default:
			functions++
		}
	}
	fmt.Fprintf(c.stdout, "  functions %d, split fragments %d, lazy stubs %d\n", functions, fragments, stubs)
}

func (c *cli) printTiming(t *compiler.Timing) {
	fmt.Fprintln(c.stdout, "phase timing:")
	for _, pt := range t.Phases() {
		fmt.Fprintf(c.stdout, "  %-24s %10s  %s runs\n", pt.Phase, pt.Duration, humanize.Comma(int64(pt.Runs)))
	}
	fmt.Fprintf(c.stdout, "  %-24s %10s\n", "total", t.Total())
}

func (c *cli) run(args []string) error {
	fs, err := c.flags("run", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("run needs exactly one file")
	}
	doc, err := astio.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	cache, err := c.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	e, err := engine.New(c.opts, doc.Source,
		engine.WithLogger(c.log),
		engine.WithCache(cache),
		engine.WithOutput(c.stdout),
		engine.WithName(doc.Name))
	if err != nil {
		return err
	}
	res, err := e.Run(doc.Program)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, res.Inspect())
	s := e.Stats()
	c.log.Info().Int("deopts", s.Deopts).Int("recompiles", s.Recompiles).Int("on_demand", s.OnDemand).Msg("done")
	return nil
}

func (c *cli) disasm(args []string) error {
	fs, err := c.flags("disasm", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("disasm needs exactly one file")
	}
	doc, err := astio.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := compiler.New(c.opts, compiler.WithLogger(c.log), compiler.WithName(doc.Name)).
		Compile(doc.Program, compiler.RecipeBytecodeOnly)
	if err != nil {
		return err
	}
	units, err := codegen.DeserializeAll(res.Bytecode)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(units))
	for name := range units {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(c.stdout, codegen.Disassemble(units[name]))
	}
	return nil
}

func (c *cli) cache(args []string) error {
	fs, err := c.flags("cache", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("cache needs prune or clean")
	}
	c.opts.Persistence.Enabled = true
	cache, err := c.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()
	switch fs.Arg(0) {
	case "prune":
		n, err := cache.Prune(c.opts.Persistence.MaxEntries)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "removed %s entries\n", humanize.Comma(int64(n)))
	case "clean":
		if err := cache.Clean(); err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "cleaned %s\n", c.opts.Persistence.Dir)
	default:
		return errors.Errorf("unknown cache command %q", fs.Arg(0))
	}
	return nil
}

func (c *cli) fail(err error) {
	label := "error"
	var ce *compiler.CompilationError
	if errors.As(err, &ce) {
		label = "compile error"
	}
	red := c.paint(color.FgRed, color.Bold)
	red.Fprintf(c.stderr, "%s: ", label)
	fmt.Fprintln(c.stderr, strings.TrimSpace(err.Error()))
}

func (c *cli) warn(format string, args ...any) {
	c.paint(color.FgYellow).Fprintf(c.stderr, "warning: ")
	fmt.Fprintf(c.stderr, format+"\n", args...)
}

func (c *cli) paint(attrs ...color.Attribute) *color.Color {
	p := color.New(attrs...)
	if c.color {
		p.EnableColor()
	} else {
		p.DisableColor()
	}
	return p
}
