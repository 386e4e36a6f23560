// Package main provides the CLI entry point for dcpflow.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/five82/dcpflow"
	"github.com/five82/dcpflow/internal/logging"
	"github.com/five82/dcpflow/internal/reporter"
	"github.com/five82/dcpflow/internal/serverd"
	"github.com/five82/dcpflow/internal/synth"
)

const (
	appName    = "dcpencode"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "encode":
		err = runEncode(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", appName, appVersion)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - distributed JPEG2000 DCP encoding tool

Usage:
  %s <command> [options]

Commands:
  encode    Encode a synthetic picture/audio source into a DCP essence
  serve     Run an encoding server daemon that accepts remote requests
  version   Print version information
  help      Show this help message

Run '%s encode --help' or '%s serve --help' for command options.
`, appName, appName, appName, appName)
}

func cancellableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func setupLogger(logDir string, verbose, noLog bool) (*logging.Logger, error) {
	if logDir == "" {
		logDir = logging.DefaultLogDir()
	}
	return logging.Setup(logDir, verbose, noLog, os.Args)
}

func buildReporter(verbose bool, logger *logging.Logger) reporter.Reporter {
	term := reporter.NewTerminalReporterVerbose(verbose)
	var rep reporter.Reporter = term
	if logger != nil {
		rep = reporter.NewCompositeReporter(term, reporter.NewLogReporter(logger.Writer()))
	}
	return rep
}

// encodeArgs holds the parsed arguments for the encode command.
type encodeArgs struct {
	manifestPath    string
	outputDir       string
	workDir         string
	logDir          string
	verbose         bool
	noLog           bool
	threads         int
	portBase        uint
	useAnyServers   bool
	explicitServers string
	bandwidth       uint64
	protocolVersion uint
	resolution      string
	priorPicture    string
	priorFrameInfo  string
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Encode a synthetic source into a DCP picture/audio essence.

Usage:
  %s encode [options]

Required:
  -m, --manifest <PATH>   JSON manifest describing the synthetic source
  -o, --output <PATH>     Output directory for essence and FrameInfo files

Options:
  -w, --work-dir <PATH>   Scratch directory for the Writer's spill buffer
  -l, --log-dir <PATH>    Log directory (defaults to ~/.local/state/dcpflow/logs)
  -v, --verbose           Enable verbose output for troubleshooting
  --no-log                Disable log file creation

Encoding:
  --threads <N>           Local worker pool size (default: all logical CPUs)
  --resolution <2K|4K>    Output resolution (default: 2K)
  --bandwidth <BPS>       Target picture-essence bitrate (default: 250000000)
  --protocol-version <N>  Wire protocol handshake value (default: 2)

Remote servers:
  --any-servers           Enable UDP broadcast discovery (default: true)
  --servers <HOST,...>    Explicit server hosts to probe
  --port-base <PORT>      Base port for encode/discovery traffic (default: 6192)

Resume:
  --prior-picture <PATH>  Prior run's picture essence, for fake-writes
  --prior-frameinfo <PATH> Prior run's FrameInfo file, for fake-writes
`, appName)
	}

	var ea encodeArgs
	fs.StringVar(&ea.manifestPath, "m", "", "Manifest path")
	fs.StringVar(&ea.manifestPath, "manifest", "", "Manifest path")
	fs.StringVar(&ea.outputDir, "o", "", "Output directory")
	fs.StringVar(&ea.outputDir, "output", "", "Output directory")
	fs.StringVar(&ea.workDir, "w", "", "Scratch directory")
	fs.StringVar(&ea.workDir, "work-dir", "", "Scratch directory")
	fs.StringVar(&ea.logDir, "l", "", "Log directory")
	fs.StringVar(&ea.logDir, "log-dir", "", "Log directory")
	fs.BoolVar(&ea.verbose, "v", false, "Verbose output")
	fs.BoolVar(&ea.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&ea.noLog, "no-log", false, "Disable log file creation")
	fs.IntVar(&ea.threads, "threads", 0, "Local worker pool size")
	fs.StringVar(&ea.resolution, "resolution", "2K", "Output resolution (2K or 4K)")
	fs.Uint64Var(&ea.bandwidth, "bandwidth", 0, "Target picture-essence bitrate")
	fs.UintVar(&ea.protocolVersion, "protocol-version", 0, "Wire protocol handshake value")
	fs.BoolVar(&ea.useAnyServers, "any-servers", true, "Enable broadcast discovery")
	fs.StringVar(&ea.explicitServers, "servers", "", "Comma-separated explicit server hosts")
	fs.UintVar(&ea.portBase, "port-base", 0, "Base port for encode/discovery traffic")
	fs.StringVar(&ea.priorPicture, "prior-picture", "", "Prior run's picture essence")
	fs.StringVar(&ea.priorFrameInfo, "prior-frameinfo", "", "Prior run's FrameInfo file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if ea.manifestPath == "" {
		return fmt.Errorf("manifest path is required (-m/--manifest)")
	}
	if ea.outputDir == "" {
		return fmt.Errorf("output directory is required (-o/--output)")
	}
	return executeEncode(ea)
}

func executeEncode(ea encodeArgs) error {
	outputDir, err := filepath.Abs(ea.outputDir)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	workDir := ea.workDir
	if workDir == "" {
		workDir = outputDir
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	logger, err := setupLogger(ea.logDir, ea.verbose, ea.noLog)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	manifest, err := synth.LoadManifest(ea.manifestPath)
	if err != nil {
		return err
	}

	resolution := dcpflow.Res2K
	if strings.EqualFold(ea.resolution, "4K") {
		resolution = dcpflow.Res4K
	}

	opts := []dcpflow.Option{}
	if ea.threads > 0 {
		opts = append(opts, dcpflow.WithLocalThreads(ea.threads))
	}
	opts = append(opts, dcpflow.WithAnyServers(ea.useAnyServers))
	if ea.explicitServers != "" {
		opts = append(opts, dcpflow.WithExplicitServers(strings.Split(ea.explicitServers, ",")))
	}
	if ea.bandwidth > 0 {
		opts = append(opts, dcpflow.WithJ2KBandwidth(ea.bandwidth))
	}
	if ea.protocolVersion > 0 {
		opts = append(opts, dcpflow.WithProtocolVersion(uint32(ea.protocolVersion)))
	}
	if ea.portBase > 0 {
		opts = append(opts, dcpflow.WithServerPortBase(uint16(ea.portBase)))
	}

	pipeline, err := dcpflow.New(outputDir, workDir, ea.logDir, opts...)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	input := dcpflow.JobInput{
		Video:      &videoSourceAdapter{fs: synth.NewFrameSource(manifest, resolution)},
		Audio:      &audioSourceAdapter{as: synth.NewAudioSource(manifest, 48000)},
		Stereo:     manifest.Stereo(),
		Resolution: resolution,
		FPS:        manifest.FPS,
		FrameCount: manifest.Frames,
	}
	if ea.priorPicture != "" && ea.priorFrameInfo != "" {
		input.Prior = &dcpflow.PriorRun{
			PictureEssencePath: ea.priorPicture,
			FrameInfoPath:      ea.priorFrameInfo,
		}
	}

	rep := buildReporter(ea.verbose, logger)

	ctx, cancel := cancellableContext()
	defer cancel()

	_, err = pipeline.EncodeDCPWithReporter(ctx, input, rep)
	return err
}

// videoSourceAdapter adapts synth.FrameSource to dcpflow.VideoSource. The
// synthetic source never reports "same as previous" since consecutive
// gradient frames always differ.
type videoSourceAdapter struct {
	fs *synth.FrameSource
}

func (v *videoSourceAdapter) Next(index int, eye dcpflow.Eye) (*dcpflow.PreparedFrame, bool) {
	return v.fs.Next(index, eye), false
}

// audioSourceAdapter adapts synth.AudioSource to dcpflow.AudioSource.
type audioSourceAdapter struct {
	as *synth.AudioSource
}

func (a *audioSourceAdapter) Next() *dcpflow.PcmBlock {
	return a.as.Next()
}

// serveArgs holds the parsed arguments for the serve command.
type serveArgs struct {
	threads         int
	portBase        uint
	protocolVersion uint
	logDir          string
	verbose         bool
	noLog           bool
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Run an encoding server daemon.

Usage:
  %s serve [options]

Options:
  --threads <N>           Concurrent local encodes (default: all logical CPUs)
  --port-base <PORT>      Base port for encode/discovery traffic (default: 6192)
  --protocol-version <N>  Wire protocol handshake value (default: 2)
  -l, --log-dir <PATH>    Log directory
  -v, --verbose           Enable verbose output
  --no-log                Disable log file creation
`, appName)
	}

	var sa serveArgs
	fs.IntVar(&sa.threads, "threads", 0, "Concurrent local encodes")
	fs.UintVar(&sa.portBase, "port-base", 6192, "Base port")
	fs.UintVar(&sa.protocolVersion, "protocol-version", 2, "Protocol version")
	fs.StringVar(&sa.logDir, "l", "", "Log directory")
	fs.StringVar(&sa.logDir, "log-dir", "", "Log directory")
	fs.BoolVar(&sa.verbose, "v", false, "Verbose output")
	fs.BoolVar(&sa.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&sa.noLog, "no-log", false, "Disable log file creation")

	if err := fs.Parse(args); err != nil {
		return err
	}
	return executeServe(sa)
}

func executeServe(sa serveArgs) error {
	logger, err := setupLogger(sa.logDir, sa.verbose, sa.noLog)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logger != nil {
		defer func() { _ = logger.Close() }()
	}

	threads := sa.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	daemon := serverd.New(serverd.Config{
		PortBase:        uint16(sa.portBase),
		Threads:         threads,
		ProtocolVersion: uint32(sa.protocolVersion),
	})

	logger.Info("dcpencode serve: threads=%d port-base=%d protocol-version=%d", threads, sa.portBase, sa.protocolVersion)
	fmt.Printf("dcpencode serve: listening on port-base %d with %d threads\n", sa.portBase, threads)

	ctx, cancel := cancellableContext()
	defer cancel()

	return daemon.Run(ctx)
}
