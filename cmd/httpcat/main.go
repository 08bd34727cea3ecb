package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zstd"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpstream "github.com/SaveTheRbtz/http-seekable-stream-go"
	"github.com/SaveTheRbtz/http-seekable-stream-go/engine"
	"github.com/SaveTheRbtz/http-seekable-stream-go/internal/config"
	"github.com/SaveTheRbtz/http-seekable-stream-go/options"
)

const copyBufferSize = 128 << 10

type fetcher struct {
	logger *zap.Logger
	engine *engine.Engine
	cfg    config.Config

	start    int64
	compress bool
	verify   bool
}

func main() {
	var (
		outputFlag, configFlag                 string
		startFlag                              int64
		qualityFlag, parallelFlag              int
		verifyFlag, compressFlag, progressFlag bool
		verboseFlag                            bool
	)

	flag.StringVar(&outputFlag, "o", "-", "output filename, or directory if several urls are given")
	flag.StringVar(&configFlag, "c", "", "yaml config file")
	flag.Int64Var(&startFlag, "s", 0, "start offset")
	flag.BoolVar(&verifyFlag, "t", false, "test seeking back and re-reading after the copy")
	flag.BoolVar(&compressFlag, "z", false, "zstd compress the output")
	flag.IntVar(&qualityFlag, "q", 0, "compression quality (lower == faster)")
	flag.IntVar(&parallelFlag, "j", 0, "number of parallel fetches")
	flag.BoolVar(&progressFlag, "p", false, "show progress")
	flag.BoolVar(&verboseFlag, "v", false, "be verbose")

	flag.Parse()

	var err error
	var logger *zap.Logger
	if verboseFlag {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal("failed to initialize logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	urls := flag.Args()
	if len(urls) == 0 {
		logger.Fatal("at least one url needs to be given")
	}
	if startFlag < 0 {
		logger.Fatal("start offset must not be negative", zap.Int64("start", startFlag))
	}
	if len(urls) > 1 && outputFlag == "-" {
		logger.Fatal("several urls need an output directory")
	}

	cfg := config.Default()
	if configFlag != "" {
		if cfg, err = config.LoadFromFile(configFlag); err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}
	if err = cfg.LoadFromEnv(); err != nil {
		logger.Fatal("failed to load config from environment", zap.Error(err))
	}
	cfg = cfg.Merge(config.Config{Parallel: parallelFlag, Progress: progressFlag, Level: qualityFlag})
	if err = cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f := &fetcher{
		logger:   logger,
		engine:   engine.New(cfg.Engine(), logger),
		cfg:      cfg,
		start:    startFlag,
		compress: compressFlag,
		verify:   verifyFlag,
	}

	if len(urls) == 1 {
		err = f.fetch(ctx, urls[0], outputFlag)
	} else {
		err = f.fetchAll(ctx, urls, outputFlag)
	}

	stats := f.engine.Stats()
	logger.Info("transfers finished",
		zap.Int64("started", stats.Started), zap.Int64("failed", stats.Failed),
		zap.Int64("received", stats.BytesReceived))
	if err != nil {
		logger.Fatal("fetch failed", zap.Error(err))
	}
}

// fetchAll fetches every url into dir, at most cfg.Parallel at a time.
func (f *fetcher) fetchAll(ctx context.Context, urls []string, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Parallel)
	for i, rawURL := range urls {
		rawURL := rawURL
		output := filepath.Join(dir, outputName(rawURL, i, f.compress))
		g.Go(func() error {
			if err := f.fetch(gCtx, rawURL, output); err != nil {
				return fmt.Errorf("%s: %w", rawURL, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// outputName derives a file name from the last element of the url path.
func outputName(rawURL string, i int, compress bool) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("stream-%d", i)
	}
	if compress {
		name += ".zst"
	}
	return name
}

func (f *fetcher) fetch(ctx context.Context, rawURL, outputPath string) (err error) {
	logger := f.logger.With(zap.String("url", rawURL))

	opts := append([]options.ROption{
		options.WithRLogger(logger),
		options.WithREngine(f.engine),
	}, f.cfg.ReaderOptions()...)
	r, err := httpstream.Open(ctx, rawURL, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	if f.start > 0 {
		if _, err = r.Seek(f.start, io.SeekStart); err != nil {
			return fmt.Errorf("seek to start offset: %w", err)
		}
	}

	var output io.WriteCloser = nopCloser{os.Stdout}
	if outputPath != "-" {
		file, openErr := os.OpenFile(outputPath, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0644)
		if openErr != nil {
			return fmt.Errorf("open output: %w", openErr)
		}
		output = file
	}
	defer func() {
		err = multierr.Append(err, output.Close())
	}()

	if f.compress {
		enc, encErr := zstd.NewWriter(output, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(f.cfg.Level)))
		if encErr != nil {
			return fmt.Errorf("create zstd encoder: %w", encErr)
		}
		// closes before the file does
		defer func() {
			err = multierr.Append(err, enc.Close())
		}()
		output = enc
	}

	digest := xxhash.New()
	n, err := f.copy(io.MultiWriter(output, digest), r, logger)
	if err != nil {
		return err
	}

	meta := r.Metadata()
	logger.Info("stream copied",
		zap.Int64("start", f.start), zap.Int64("copied", n),
		zap.Object("metadata", meta), zap.Uint64("xxhash", digest.Sum64()))

	if f.verify {
		return f.check(r, n, digest.Sum64(), logger)
	}
	return nil
}

// copy reads the first block to learn the size from the headers, then copies the rest.
func (f *fetcher) copy(dst io.Writer, r httpstream.Reader, logger *zap.Logger) (int64, error) {
	buf := make([]byte, copyBufferSize)
	m, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read: %w", err)
	}
	if r.Metadata().MIMEType == "" && m > 0 {
		logger.Info("no content type sent, sniffed from data", zap.Stringer("mime", mimetype.Detect(buf[:m])))
	}

	if f.cfg.Progress {
		size := int64(-1)
		if meta := r.Metadata(); meta.HasSize() {
			size = meta.TotalSize - f.start
		}
		bar := progressbar.DefaultBytes(size, r.Metadata().Title)
		defer func() {
			_ = bar.Finish()
		}()
		dst = io.MultiWriter(dst, bar)
	}

	if _, err := dst.Write(buf[:m]); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	n, err := io.CopyBuffer(dst, r, buf)
	if err != nil {
		return int64(m) + n, fmt.Errorf("copy: %w", err)
	}
	return int64(m) + n, nil
}

// check seeks back to the start offset and compares a digest of the same bytes read again.
func (f *fetcher) check(r httpstream.Reader, n int64, expected uint64, logger *zap.Logger) error {
	if _, err := r.Seek(f.start, io.SeekStart); err != nil {
		return fmt.Errorf("seek for verification: %w", err)
	}

	actual := xxhash.New()
	m, err := io.CopyBuffer(actual, io.LimitReader(r, n), make([]byte, copyBufferSize))
	if err != nil {
		return fmt.Errorf("read for verification: %w", err)
	}
	if m != n || actual.Sum64() != expected {
		logger.Error("checksum verification failed",
			zap.Int64("expected_size", n), zap.Int64("actual_size", m),
			zap.Uint64("expected", expected), zap.Uint64("actual", actual.Sum64()))
		return errors.New("checksum verification failed")
	}
	logger.Info("checksum verification succeeded", zap.Uint64("actual", actual.Sum64()))
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
