// Command-line interface to voxel label coarsening.
// Provides local commands on top of the voxcoarsen library and an HTTP server.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxcoarsen"
	"github.com/janelia-flyem/voxcoarsen/coarsen"
	"github.com/janelia-flyem/voxcoarsen/format"
	"github.com/janelia-flyem/voxcoarsen/result"
	"github.com/janelia-flyem/voxcoarsen/server"
	"github.com/janelia-flyem/voxcoarsen/storage"
	"github.com/janelia-flyem/voxcoarsen/vox"

	_ "github.com/janelia-flyem/voxcoarsen/storage/badger"
	_ "github.com/janelia-flyem/voxcoarsen/storage/memory"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// TOML configuration for the serve command.
	configFile = flag.String("config", "", "")

	// Address for http communication, overriding any TOML setting.
	httpAddress = flag.String("http", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")

	// Coarsening settings.
	ruleName     = flag.String("rule", "mode", "")
	boundaryName = flag.String("boundary", "truncate", "")
	background   = flag.Int("background", 0, "")

	// Output settings.
	outFormat   = flag.String("outformat", "", "")
	compression = flag.String("compress", "none", "")
)

const helpMessage = `
voxcoarsen reduces the resolution of 3d voxel label volumes

Usage: voxcoarsen [options] <command>

      -rule       =string   Reduction rule: mode (default), mode-nonzero, first-nonzero.
      -boundary   =string   Partial block policy: truncate (default), fold, partial.
      -background =number   Label ignored by the nonzero rules (default 0).
      -outformat  =string   Output format: vxl, txt, json, msgpack, arrow.  By default
                            chosen from the output file extension.
      -compress   =string   Compression of vxl output: none, snappy, zstd, gzip.
      -config     =string   TOML configuration file for the serve command.
      -http       =string   Address for HTTP communication.
      -cpuprofile =string   Write CPU profile to this file.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	info     <dataset>
	coarsen  <dataset> <factor> [output file]
	pyramid  <dataset> <factor> <levels> <output prefix>
	convert  <dataset> <output file>
	serve

Datasets may be local files or gs:// and s3:// URLs.
`

var usage = func() {
	fmt.Print(helpMessage)
}

// Command is a command-line request split into its arguments.
type Command []string

// Name returns the command name.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return strings.ToLower(cmd[0])
}

// Argument returns the i-th argument, where the command name is argument 0, or
// the empty string if there is no such argument.
func (cmd Command) Argument(i int) string {
	if i >= len(cmd) {
		return ""
	}
	return cmd[i]
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}

	if *runVerbose {
		vox.SetLogLevel(vox.DebugLevel)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *useCPU != 0 {
		vox.NumCPU = *useCPU
	}
	runtime.GOMAXPROCS(vox.NumCPU)

	// Capture ctrl+c and other interrupts.  Then handle graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := DoCommand(ctx, Command(flag.Args()))
	stop()
	vox.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if *cpuprofile != "" {
			pprof.StopCPUProfile()
		}
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command")
	}

	switch cmd.Name() {
	case "about":
		fmt.Println(about())
	case "info":
		return DoInfo(ctx, cmd)
	case "coarsen":
		return DoCoarsen(ctx, cmd)
	case "pyramid":
		return DoPyramid(ctx, cmd)
	case "convert":
		return DoConvert(ctx, cmd)
	case "serve":
		return DoServe(ctx, cmd)
	default:
		return fmt.Errorf("unknown command %q, see 'voxcoarsen help'", cmd.Name())
	}
	return nil
}

func about() string {
	var formats []string
	for _, f := range format.Formats {
		formats = append(formats, f.String())
	}
	var rules []string
	for _, r := range coarsen.Rules {
		rules = append(rules, r.String())
	}
	var boundaries []string
	for _, b := range coarsen.Boundaries {
		boundaries = append(boundaries, b.String())
	}
	return fmt.Sprintf("voxcoarsen %s\n  Formats: %s\n  Rules: %s\n  Boundaries: %s\n  Storage engines: %s",
		voxcoarsen.Version, strings.Join(formats, ", "), strings.Join(rules, ", "),
		strings.Join(boundaries, ", "), storage.EnginesAvailable())
}

// flagConfig returns the coarsening settings given on the command line.
func flagConfig() (coarsen.Config, error) {
	var cfg coarsen.Config
	var err error
	if cfg.Rule, err = coarsen.ParseRule(*ruleName); err != nil {
		return cfg, err
	}
	if cfg.Boundary, err = coarsen.ParseBoundary(*boundaryName); err != nil {
		return cfg, err
	}
	cfg.Background = int32(*background)
	cfg.Workers = vox.NumCPU
	return cfg, nil
}

// outputSettings returns the format and encoding options for the given file.
func outputSettings(filename string) (format.Format, format.Options, error) {
	var opts format.Options
	var err error
	if opts.Compression, err = format.ParseCompression(*compression); err != nil {
		return format.Unknown, opts, err
	}
	f := format.Unknown
	if *outFormat != "" {
		if f, err = format.ParseFormat(*outFormat); err != nil {
			return format.Unknown, opts, err
		}
	} else if f = format.FromExtension(filename); f == format.Unknown {
		f = format.VXL
	}
	return f, opts, nil
}

func parseFactor(s string) (uint, error) {
	k, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, vox.NewError(vox.CodeInvalidFactor, "bad coarsen factor %q", s)
	}
	return uint(k), nil
}

func writeGrid(filename string, g *vox.Grid) error {
	f, opts, err := outputSettings(filename)
	if err != nil {
		return err
	}
	if err := format.WriteFile(filename, g, f, opts); err != nil {
		return err
	}
	if fi, err := os.Stat(filename); err == nil {
		fmt.Printf("Wrote %s grid to %s (%s)\n", g.Size, filename, humanize.Bytes(uint64(fi.Size())))
	}
	return nil
}

// DoInfo performs the "info" command, describing a dataset.
func DoInfo(ctx context.Context, cmd Command) error {
	file := cmd.Argument(1)
	if file == "" {
		return fmt.Errorf("info command must be followed by a dataset")
	}
	g, f, err := format.DefaultLoader.LoadFormat(ctx, file)
	if err != nil {
		return err
	}
	counts := g.CountLabels()
	fmt.Printf("%s\n  Format: %s\n  Size: %s\n  Voxels: %s\n  Labels: %d\n  Memory: %s\n",
		file, f, g.Size, humanize.Comma(int64(g.NumVoxels())), len(counts), vox.MemSize(g))
	return nil
}

// DoCoarsen performs the "coarsen" command, writing the result to a file if given
// or printing a summary otherwise.
func DoCoarsen(ctx context.Context, cmd Command) error {
	file, factor := cmd.Argument(1), cmd.Argument(2)
	if file == "" || factor == "" {
		return fmt.Errorf("coarsen command must be followed by a dataset and integer factor")
	}
	k, err := parseFactor(factor)
	if err != nil {
		return err
	}
	cfg, err := flagConfig()
	if err != nil {
		return err
	}
	timedLog := vox.NewTimeLog()
	r, err := voxcoarsen.Run(ctx, file, k, voxcoarsen.Options{Config: cfg})
	if err != nil {
		return err
	}
	timedLog.Infof("Coarsened %s by %d using %s", file, k, cfg)

	output := cmd.Argument(3)
	if output == "" {
		printSummary(r)
		return nil
	}
	g, err := r.Grid()
	if err != nil {
		return err
	}
	return writeGrid(output, g)
}

func printSummary(r result.Result) {
	fmt.Printf("Shape: (%s)\n", r.Shape)
	g, err := r.Grid()
	if err != nil {
		return
	}
	counts := g.CountLabels()
	fmt.Printf("Voxels: %s\nLabels: %d\n", humanize.Comma(int64(len(r.Labels))), len(counts))
}

// DoPyramid performs the "pyramid" command, writing each level of repeated
// coarsening to <prefix>-<level><ext>.
func DoPyramid(ctx context.Context, cmd Command) error {
	file, factor, levelsStr, prefix := cmd.Argument(1), cmd.Argument(2), cmd.Argument(3), cmd.Argument(4)
	if prefix == "" {
		return fmt.Errorf("pyramid command must be followed by dataset, factor, levels, and output prefix")
	}
	k, err := parseFactor(factor)
	if err != nil {
		return err
	}
	if k == 0 {
		return vox.NewError(vox.CodeInvalidFactor, "coarsen factor must be at least 1")
	}
	levels, err := strconv.Atoi(levelsStr)
	if err != nil || levels < 1 {
		return fmt.Errorf("bad number of pyramid levels %q", levelsStr)
	}
	cfg, err := flagConfig()
	if err != nil {
		return err
	}
	g, err := format.Load(ctx, file)
	if err != nil {
		return err
	}
	grids, err := coarsen.Pyramid(ctx, g, int(k), levels, cfg)
	if err != nil {
		return err
	}
	f, _, err := outputSettings(prefix)
	if err != nil {
		return err
	}
	ext := filepath.Ext(prefix)
	base := strings.TrimSuffix(prefix, ext)
	if format.FromExtension(prefix) == format.Unknown {
		base, ext = prefix, f.Extension()
	}
	for i, level := range grids {
		if err := writeGrid(fmt.Sprintf("%s-%d%s", base, i+1, ext), level); err != nil {
			return err
		}
	}
	return nil
}

// DoConvert performs the "convert" command, rewriting a dataset in another format.
func DoConvert(ctx context.Context, cmd Command) error {
	file, output := cmd.Argument(1), cmd.Argument(2)
	if file == "" || output == "" {
		return fmt.Errorf("convert command must be followed by a dataset and output file")
	}
	g, err := format.Load(ctx, file)
	if err != nil {
		return err
	}
	return writeGrid(output, g)
}

// DoServe starts the HTTP server until interrupted.
func DoServe(ctx context.Context, cmd Command) error {
	var c *server.Config
	var err error
	if *configFile != "" {
		if c, err = server.LoadConfig(*configFile); err != nil {
			return err
		}
	} else {
		c = server.DefaultConfig()
	}
	if *httpAddress != "" {
		c.Server.HTTPAddress = *httpAddress
	}
	if c.Coarsen.Workers == 0 {
		c.Coarsen.Workers = vox.NumCPU
	}
	if err := c.Logging.SetLogger(); err != nil {
		return err
	}
	if *runVerbose {
		vox.SetLogLevel(vox.DebugLevel)
	}

	service, err := server.New(c, nil)
	if err != nil {
		return err
	}
	defer service.Close()
	vox.Infof("voxcoarsen %s serving with %d cores\n", voxcoarsen.Version, vox.NumCPU)
	return service.Serve(ctx)
}
