package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/rbf/config"
	"github.com/INLOpen/rbf/frame"
	"github.com/INLOpen/rbf/hooks"
	"github.com/INLOpen/rbf/hooks/listeners"
	"github.com/INLOpen/rbf/inspect"
	"github.com/INLOpen/rbf/rbf"
)

var (
	errUsage        = errors.New("invalid usage")
	errVerifyFailed = errors.New("verification failed")
)

// environment is what every command runs against.
type environment struct {
	cfg         *config.Config
	logger      *slog.Logger
	hookManager hooks.HookManager
	tracer      trace.Tracer
	stdout      io.Writer
	stdin       io.Reader
	table       bool
}

func (e *environment) options(readOnly bool) rbf.Options {
	opts := e.cfg.File.Options(e.logger)
	opts.Tracer = e.tracer
	opts.HookManager = e.hookManager
	opts.ReadOnly = readOnly
	if readOnly {
		opts.ExclusiveLock = false
		opts.PreallocateBytes = 0
	}
	return opts
}

type command struct {
	name    string
	summary string
	run     func(env *environment, args []string) error
}

var commands = []command{
	{"scan", "list frames from the tail towards the header", runScan},
	{"verify", "check every frame's payload checksum", runVerify},
	{"stats", "summarise frame sizes and framing overhead", runStats},
	{"append", "append one frame from -data or stdin", runAppend},
	{"truncate", "cut the file at a frame boundary", runTruncate},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// parseArgs parses flags and returns the single file argument.
func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "%s: expected exactly one file argument\n", fs.Name())
		fs.Usage()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func runScan(env *environment, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	tombstones := fs.Bool("tombstones", env.cfg.Inspect.ShowTombstones, "Include tombstoned frames")
	from := fs.Int64("from", 0, "Start at this fence-end offset instead of the tail")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	f, err := rbf.Open(path, env.options(true))
	if err != nil {
		return err
	}
	defer f.Close()

	var opts []rbf.ScanOption
	if *tombstones {
		opts = append(opts, rbf.WithTombstones())
	}
	if *from > 0 {
		opts = append(opts, rbf.FromOffset(*from))
	}
	listing := inspect.List(f, opts...)

	t := newTable(env.stdout, env.table, "OFFSET", "LENGTH", "TAG", "PAYLOAD", "TAILMETA", "TOMBSTONE")
	for _, info := range listing.Frames {
		t.row(info.Ticket.Offset(), info.FrameLength(), info.Tag, info.PayloadLength, info.TailMetaLength, info.Tombstone)
	}
	t.flush()

	if listing.ScanErr != nil {
		return fmt.Errorf("scan stopped at offset %d after %d frames: %w", listing.StopOffset, len(listing.Frames), listing.ScanErr)
	}
	return nil
}

func runVerify(env *environment, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	concurrency := fs.Int("concurrency", env.cfg.Inspect.VerifyConcurrency, "Frames verified in parallel")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	f, err := rbf.Open(path, env.options(true))
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := inspect.Verify(context.Background(), f, *concurrency)
	if err != nil {
		return err
	}

	if len(report.Failures) > 0 {
		t := newTable(env.stdout, env.table, "OFFSET", "LENGTH", "TAG", "ERROR")
		for _, fail := range report.Failures {
			t.row(fail.Ticket.Offset(), fail.Ticket.Length(), fail.Tag, fail.Err)
		}
		t.flush()
	}
	fmt.Fprintf(env.stdout, "checked %d frames, %d failed\n", report.Checked, len(report.Failures))
	if report.ScanErr != nil {
		fmt.Fprintf(env.stdout, "scan stopped at offset %d: %v\n", report.StopOffset, report.ScanErr)
	}
	if !report.OK() {
		return errVerifyFailed
	}
	return nil
}

func runStats(env *environment, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	f, err := rbf.Open(path, env.options(true))
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := inspect.ComputeStats(f)
	if err != nil {
		return err
	}

	t := newTable(env.stdout, env.table, "METRIC", "VALUE")
	t.row("frames", st.Frames)
	t.row("tombstones", st.Tombstones)
	t.row("file_bytes", st.FileBytes)
	t.row("frame_bytes", st.FrameBytes)
	t.row("payload_bytes", st.PayloadBytes)
	t.row("tail_meta_bytes", st.TailMetaBytes)
	t.row("overhead", fmt.Sprintf("%.3f", st.Overhead))
	t.row("frame_length_p50", fmt.Sprintf("%.0f", st.P50))
	t.row("frame_length_p90", fmt.Sprintf("%.0f", st.P90))
	t.row("frame_length_p99", fmt.Sprintf("%.0f", st.P99))
	if st.DiskTotal > 0 {
		t.row("disk_free_bytes", st.DiskFree)
		t.row("disk_total_bytes", st.DiskTotal)
	}
	t.flush()

	if st.ScanErr != nil {
		return fmt.Errorf("scan stopped at offset %d: %w", st.StopOffset, st.ScanErr)
	}
	return nil
}

func runAppend(env *environment, args []string) error {
	fs := flag.NewFlagSet("append", flag.ContinueOnError)
	tag := fs.Uint("tag", 0, "Frame tag")
	tombstone := fs.Bool("tombstone", false, "Write a tombstone frame")
	data := fs.String("data", "", "Payload; read from stdin when empty")
	tailMeta := fs.String("tail-meta", "", "Tail metadata appended after the payload")
	maxPayload := fs.Int("max-payload", 0, "Reject payloads longer than this for -tag (0 disables)")
	create := fs.Bool("create", false, "Create the file if it does not exist")
	flush := fs.Bool("sync", true, "Flush to stable storage after appending")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if *tombstone && *tailMeta != "" {
		fmt.Fprintln(os.Stderr, "append: -tombstone and -tail-meta cannot be combined")
		return errUsage
	}
	if *tag > math.MaxUint32 {
		fmt.Fprintf(os.Stderr, "append: -tag %d does not fit in 32 bits\n", *tag)
		return errUsage
	}
	frameTag := uint32(*tag)

	payload := []byte(*data)
	if *data == "" {
		if payload, err = io.ReadAll(env.stdin); err != nil {
			return fmt.Errorf("failed to read payload from stdin: %w", err)
		}
	}
	if *maxPayload > 0 {
		env.hookManager.Register(hooks.EventPreFrameAppend, listeners.NewFrameSizeGuardListener(env.logger, []listeners.SizeRule{
			{Tag: frameTag, MaxPayload: *maxPayload, Reject: true},
		}))
	}

	f, err := openForWrite(env, path, *create)
	if err != nil {
		return err
	}
	defer f.Close()

	ticket, err := appendFrame(f, frameTag, payload, []byte(*tailMeta), *tombstone)
	if err != nil {
		return err
	}
	if *flush {
		if err := f.DurableFlush(); err != nil {
			return err
		}
	}
	fmt.Fprintf(env.stdout, "%s tail=%d\n", ticket, f.TailOffset())
	return nil
}

func openForWrite(env *environment, path string, create bool) (*rbf.File, error) {
	opts := env.options(false)
	f, err := rbf.Open(path, opts)
	if err == nil || !create || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}
	return rbf.Create(path, opts)
}

// appendFrame uses the single-call path for plain frames and a Builder when
// tail metadata is present.
func appendFrame(f *rbf.File, tag uint32, payload, tailMeta []byte, tombstone bool) (frame.Ticket, error) {
	if tombstone {
		return f.AppendTombstone(tag, payload)
	}
	if len(tailMeta) == 0 {
		return f.Append(tag, payload)
	}

	b, err := f.BeginAppend()
	if err != nil {
		return 0, err
	}
	defer b.Abort()
	if _, err := b.Sink().Write(payload); err != nil {
		return 0, err
	}
	if _, err := b.Sink().Write(tailMeta); err != nil {
		return 0, err
	}
	return b.EndAppend(tag, len(tailMeta))
}

func runTruncate(env *environment, args []string) error {
	fs := flag.NewFlagSet("truncate", flag.ContinueOnError)
	length := fs.Int64("length", -1, "New file length; must be a frame boundary (required)")
	path, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if *length < 0 {
		fmt.Fprintln(os.Stderr, "truncate: -length is required")
		return errUsage
	}

	f, err := rbf.Open(path, env.options(false))
	if err != nil {
		return err
	}
	defer f.Close()

	old := f.TailOffset()
	if err := f.Truncate(*length); err != nil {
		return err
	}
	if err := f.DurableFlush(); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "truncated %s from %d to %d bytes\n", path, old, *length)
	return nil
}
