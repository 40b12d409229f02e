package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/invoice-scan/internal/invoice"
	"github.com/zombor/invoice-scan/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port          int
	image         string
	localOnly     bool
	logLevel      string
	engine        string
	geminiKey     string
	geminiModel   string
	languages     string
	whitelist     string
	segmentation  string
	timeout       time.Duration
	storage       string
	storagePath   string
	publicURL     string
	gcsBucket     string
	folder        string
	access        string
	backend       string
	dbPath        string
	backendURL    string
	maxImageBytes int
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	var cfg config
	fs := ff.NewFlagSet("invoice-scan")
	fs.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.image, 0, "image", "", "Scan a single image file or URL and print the result instead of serving")
	fs.BoolVar(&cfg.localOnly, 0, "local-only", "Only recognize and extract; skip upload and submission")
	fs.StringVar(&cfg.logLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&cfg.engine, 0, "engine", "tesseract", "Recognition engine: 'tesseract' or 'gemini'")
	fs.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	fs.StringVar(&cfg.languages, 0, "languages", "spa,eng", "Comma separated recognition languages")
	fs.StringVar(&cfg.whitelist, 0, "whitelist", scanning.DefaultWhitelist, "Characters the engine may emit")
	fs.StringVar(&cfg.segmentation, 0, "segmentation", "single-block", "Page segmentation: 'auto' or 'single-block'")
	fs.DurationVar(&cfg.timeout, 0, "timeout", scanning.DefaultTimeout, "Recognition timeout")
	fs.StringVar(&cfg.storage, 0, "storage", "local", "Image store: 'local' or 'gcs'")
	fs.StringVar(&cfg.storagePath, 0, "storage-path", "./invoices", "Local storage directory")
	fs.StringVar(&cfg.publicURL, 0, "public-url", "", "Base URL for locally stored images (defaults to http://localhost:<port>)")
	fs.StringVar(&cfg.gcsBucket, 0, "gcs-bucket", "", "Google Cloud Storage bucket for uploads")
	fs.StringVar(&cfg.folder, 0, "folder", invoice.DefaultFolder, "Storage folder for uploads")
	fs.StringVar(&cfg.access, 0, "access", string(invoice.AccessPublic), "Upload access mode: 'public' or 'private'")
	fs.StringVar(&cfg.backend, 0, "backend", "bolt", "Submission backend: 'bolt' or 'http'")
	fs.StringVar(&cfg.dbPath, 0, "db", "invoice-scan.db", "Database file path for the bolt backend")
	fs.StringVar(&cfg.backendURL, 0, "backend-url", "", "Ingestion endpoint for the http backend")
	fs.IntVar(&cfg.maxImageBytes, 0, "max-image-bytes", invoice.MaxImageBytes, "Largest accepted image in bytes")
	showVersion := fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_SCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := configureLogging(cfg.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func configureLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func run(cfg config) error {
	ctx := context.Background()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	mode, ok := scanning.ParseSegmentationMode(cfg.segmentation)
	if !ok {
		return fmt.Errorf("invalid segmentation mode %q", cfg.segmentation)
	}
	recognizer := scanning.NewAdapter(engine,
		scanning.WithConfig(scanning.Configure(splitList(cfg.languages), cfg.whitelist, mode)),
		scanning.WithTimeout(cfg.timeout),
	)

	access := invoice.AccessMode(cfg.access)
	if access != invoice.AccessPublic && access != invoice.AccessPrivate {
		return fmt.Errorf("invalid access mode %q", cfg.access)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []invoice.Option{
		invoice.WithFolder(cfg.folder),
		invoice.WithAccess(access),
		invoice.WithMaxImageBytes(int64(cfg.maxImageBytes)),
		invoice.WithMetrics(invoice.NewMetrics(registry)),
	}

	// One-shot local runs need neither a store nor a backend
	if cfg.image != "" && cfg.localOnly {
		pipeline := invoice.NewPipeline(nil, recognizer, nil, opts...)
		return scanOnce(ctx, pipeline, cfg)
	}

	if cfg.publicURL == "" {
		cfg.publicURL = fmt.Sprintf("http://localhost:%d", cfg.port)
	}
	serverCfg := invoice.ServerConfig{
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		MaxUploadBytes: int64(cfg.maxImageBytes) + 1<<20,
	}

	var store invoice.ImageStore
	switch cfg.storage {
	case "local":
		slog.Info("Initializing local storage...", "path", cfg.storagePath)
		local, err := invoice.NewLocalStorage(cfg.storagePath, cfg.publicURL)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		store = local
		serverCfg.Images = local
	case "gcs":
		if cfg.gcsBucket == "" {
			return errors.New("--gcs-bucket is required for gcs storage")
		}
		slog.Info("Initializing Cloud Storage...", "bucket", cfg.gcsBucket)
		gcs, err := invoice.NewGCSStorage(ctx, cfg.gcsBucket)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		defer gcs.Close()
		store = gcs
	default:
		return fmt.Errorf("invalid storage type %q", cfg.storage)
	}

	var backend invoice.Backend
	switch cfg.backend {
	case "bolt":
		slog.Info("Initializing database...", "path", cfg.dbPath)
		db, err := invoice.NewBoltDB(cfg.dbPath)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		defer db.Close()
		backend = db
		serverCfg.Submissions = db
	case "http":
		if cfg.backendURL == "" {
			return errors.New("--backend-url is required for the http backend")
		}
		backend = invoice.NewHTTPBackend(cfg.backendURL, 30*time.Second)
	default:
		return fmt.Errorf("invalid backend type %q", cfg.backend)
	}

	pipeline := invoice.NewPipeline(store, recognizer, backend, opts...)
	if cfg.image != "" {
		return scanOnce(ctx, pipeline, cfg)
	}

	server := invoice.NewServer(pipeline, serverCfg)
	addr := fmt.Sprintf(":%d", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()
	slog.Info("Server started", "address", cfg.publicURL, "engine", engine.Name(), "version", version)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-sigChan:
	}

	slog.Info("Shutting down...")
	return nil
}

func newEngine(cfg config) (scanning.Engine, error) {
	switch cfg.engine {
	case "tesseract":
		slog.Info("Initializing Tesseract engine...")
		return scanning.NewTesseract(), nil
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required; set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini engine...", "model", cfg.geminiModel)
		engine, err := scanning.NewGemini(apiKey, cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return engine, nil
	}
	return nil, fmt.Errorf("invalid engine %q (valid: tesseract or gemini)", cfg.engine)
}

// scanOnce runs the pipeline on --image and prints the result as JSON
func scanOnce(ctx context.Context, pipeline *invoice.Pipeline, cfg config) error {
	asset, err := loadAsset(cfg.image)
	if err != nil {
		return err
	}

	observer := func(p invoice.Progress) {
		slog.Info("Progress", "run_id", p.RunID, "stage", p.Stage.String(), "percent", p.Percent)
	}

	var result any
	if cfg.localOnly {
		result, err = pipeline.RunLocal(ctx, asset, observer)
	} else {
		result, err = pipeline.RunFull(ctx, asset, observer)
	}

	var submissionErr *invoice.SubmissionError
	if errors.As(err, &submissionErr) {
		slog.Warn("Submission failed, retrying once", "error", submissionErr.Err)
		ack, retryErr := pipeline.RetrySubmission(ctx, submissionErr)
		if retryErr != nil {
			return retryErr
		}
		return printJSON(map[string]any{
			"recognition": submissionErr.Recognition,
			"fields":      submissionErr.Fields,
			"upload":      submissionErr.Upload,
			"ack":         ack,
		})
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func loadAsset(image string) (invoice.ImageAsset, error) {
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return invoice.ImageAsset{URL: image}, nil
	}
	data, err := os.ReadFile(image)
	if err != nil {
		return invoice.ImageAsset{}, fmt.Errorf("reading image: %w", err)
	}
	return invoice.ImageAsset{
		Filename: filepath.Base(image),
		Data:     data,
		MimeType: scanning.DetectMimeType(data, ""),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
