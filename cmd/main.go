package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ferryline/photoferry/catalog"
	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/discovery"
	"github.com/ferryline/photoferry/dispatch"
	"github.com/ferryline/photoferry/download"
	"github.com/ferryline/photoferry/ledger"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/orchestrator"
	"github.com/ferryline/photoferry/source"
	"github.com/ferryline/photoferry/space"
	"github.com/ferryline/photoferry/uploader"
)

func main() {
	// Define CLI flags
	var (
		// General flags
		dryRun      = flag.Bool("dry-run", false, "Walk and report only, nothing is transferred (env: DRY_RUN)")
		showSummary = flag.Bool("summary", false, "Print the ledger summary and exit")

		// Logger flags
		logLevel = flag.String("log-level", "", "Log level: silent, error, warn, info, debug, verbose (env: LOG_LEVEL)")

		// Ledger flags
		ledgerPath = flag.String("ledger-path", "", "Path to the ledger JSON document (env: LEDGER_PATH)")

		// Catalog flags
		catalogPath   = flag.String("catalog-path", "", "Path to the catalog database, empty disables it (env: CATALOG_PATH)")
		catalogBucket = flag.String("catalog-bucket", "", "Catalog bucket name (env: CATALOG_BUCKET)")
		catalogNoSync = flag.Bool("catalog-no-sync", false, "Disable fsync for the catalog (env: CATALOG_NO_SYNC)")

		// Source flags
		sourceType       = flag.String("source-type", "", "Source type: ftp (env: SOURCE_TYPE)")
		sourcePoolSize   = flag.Int("source-pool-size", 0, "Number of pooled source connections (env: SOURCE_POOL_SIZE)")
		sourceTimeout    = flag.Int("source-timeout", 0, "Source I/O timeout in seconds (env: SOURCE_TIMEOUT_SECONDS)")
		sourceMaxRetries = flag.Int("source-max-retries", 0, "Max retries for listing calls (env: SOURCE_MAX_RETRIES)")
		sourceMaxRPS     = flag.Int("source-max-rps", 0, "Max control commands per second (0 = no limit) (env: SOURCE_MAX_RPS)")

		// FTP flags
		ftpHost     = flag.String("ftp-host", "", "FTP server host (env: FTP_HOST)")
		ftpPort     = flag.Int("ftp-port", 0, "FTP server port (env: FTP_PORT)")
		ftpUsername = flag.String("ftp-username", "", "FTP username (env: FTP_USERNAME)")
		ftpPassword = flag.String("ftp-password", "", "FTP password (env: FTP_PASSWORD)")
		ftpRoot     = flag.String("ftp-root", "", "Directory the walk starts from (env: FTP_ROOT)")
		ftpUseTLS   = flag.Bool("ftp-use-tls", false, "Use explicit FTP over TLS (env: FTP_USE_TLS)")

		// Uploader flags
		uploaderType    = flag.String("uploader-type", "", "Uploader type: photos, s3 (env: UPLOADER_TYPE)")
		uploaderTimeout = flag.Int("uploader-timeout", 0, "Uploader metadata timeout in seconds (env: UPLOADER_TIMEOUT_SECONDS)")

		// Photos flags
		photosAPIURL    = flag.String("photos-api-url", "", "Photo service base URL (env: PHOTOS_API_URL)")
		photosAuthToken = flag.String("photos-auth-token", "", "Photo service auth token (env: PHOTOS_AUTH_TOKEN)")

		// S3 flags
		s3Region    = flag.String("s3-region", "", "S3 region (env: S3_REGION)")
		s3Bucket    = flag.String("s3-bucket", "", "S3 bucket name (env: S3_BUCKET)")
		s3AccessKey = flag.String("s3-access-key", "", "S3 access key ID (env: S3_ACCESS_KEY_ID)")
		s3SecretKey = flag.String("s3-secret-key", "", "S3 secret access key (env: S3_SECRET_ACCESS_KEY)")
		s3Endpoint  = flag.String("s3-endpoint", "", "S3 endpoint URL (env: S3_ENDPOINT)")
		s3Prefix    = flag.String("s3-prefix", "", "Key prefix for uploaded objects (env: S3_PREFIX)")

		// Discovery flags
		minFileSize = flag.Int64("min-file-size", 0, "Smallest candidate in bytes (env: MIN_FILE_SIZE)")
		maxFileSize = flag.Int64("max-file-size", 0, "Largest candidate in bytes (env: MAX_FILE_SIZE)")
		extensions  = flag.String("extensions", "", "Comma-separated extension allow-list (env: EXTENSIONS)")

		// Transfer flags
		workDir          = flag.String("work-dir", "", "Local directory holding in-flight files (env: WORK_DIR)")
		maxAttempts      = flag.Int("max-attempts", 0, "Download attempts within one run (env: MAX_ATTEMPTS)")
		attemptCap       = flag.Int("attempt-cap", 0, "Lifetime attempts before permanent skip (env: ATTEMPT_CAP)")
		backoffInitial   = flag.Int("backoff-initial", 0, "First inter-attempt sleep in seconds (env: BACKOFF_INITIAL_SECONDS)")
		backoffMax       = flag.Int("backoff-max", 0, "Inter-attempt sleep ceiling in seconds (env: BACKOFF_MAX_SECONDS)")
		stallTimeout     = flag.Int("stall-timeout", 0, "Zero-progress seconds before a transfer is cut (env: STALL_TIMEOUT_SECONDS)")
		progressInterval = flag.Int("progress-interval", 0, "Byte-progress sampling interval in seconds (env: PROGRESS_INTERVAL_SECONDS)")
		maxRuntime       = flag.Int("max-runtime", 0, "Wall-clock budget in seconds, 0 = unlimited (env: MAX_RUNTIME_SECONDS)")
		safetyMargin     = flag.Int64("safety-margin", 0, "Free space kept in reserve in bytes (env: SAFETY_MARGIN_BYTES)")
		noResume         = flag.Bool("no-resume", false, "Never continue partial downloads (env: RESUME=false)")

		// General flags
		showHelp = flag.Bool("help", false, "Show help message")
	)

	flag.Parse()

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// Load base configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config from environment: %v\n", err)
		os.Exit(1)
	}

	// Override with CLI flags if provided
	applyFlags(cfg, flagValues{
		dryRun:           *dryRun,
		logLevel:         *logLevel,
		ledgerPath:       *ledgerPath,
		catalogPath:      *catalogPath,
		catalogBucket:    *catalogBucket,
		catalogNoSync:    *catalogNoSync,
		sourceType:       *sourceType,
		sourcePoolSize:   *sourcePoolSize,
		sourceTimeout:    *sourceTimeout,
		sourceMaxRetries: *sourceMaxRetries,
		sourceMaxRPS:     *sourceMaxRPS,
		ftpHost:          *ftpHost,
		ftpPort:          *ftpPort,
		ftpUsername:      *ftpUsername,
		ftpPassword:      *ftpPassword,
		ftpRoot:          *ftpRoot,
		ftpUseTLS:        *ftpUseTLS,
		uploaderType:     *uploaderType,
		uploaderTimeout:  *uploaderTimeout,
		photosAPIURL:     *photosAPIURL,
		photosAuthToken:  *photosAuthToken,
		s3Region:         *s3Region,
		s3Bucket:         *s3Bucket,
		s3AccessKey:      *s3AccessKey,
		s3SecretKey:      *s3SecretKey,
		s3Endpoint:       *s3Endpoint,
		s3Prefix:         *s3Prefix,
		minFileSize:      *minFileSize,
		maxFileSize:      *maxFileSize,
		extensions:       *extensions,
		workDir:          *workDir,
		maxAttempts:      *maxAttempts,
		attemptCap:       *attemptCap,
		backoffInitial:   *backoffInitial,
		backoffMax:       *backoffMax,
		stallTimeout:     *stallTimeout,
		progressInterval: *progressInterval,
		maxRuntime:       *maxRuntime,
		safetyMargin:     *safetyMargin,
		noResume:         *noResume,
	})

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration validation error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(&cfg.Logger)
	log.Info("Starting remote-to-photos transfer service")
	log.Debug("Configuration loaded and validated")

	// Initialize ledger
	log.Debug("Loading ledger...")
	store := ledger.NewFileStore(&cfg.Ledger, log)
	manager, err := ledger.NewManager(store, log)
	if err != nil {
		log.Error("Failed to load ledger: %v", err)
		os.Exit(1)
	}
	log.Info("Ledger loaded: path=%s, records=%d", cfg.Ledger.Path, len(manager.Ledger().Records))

	if *showSummary {
		fmt.Print(manager.Summary())
		os.Exit(0)
	}

	// Initialize source
	log.Debug("Initializing source...")
	src, err := source.CreateSource(&cfg.Source, log)
	if err != nil {
		log.Error("Failed to create source: %v", err)
		os.Exit(1)
	}
	defer func() {
		log.Debug("Closing source...")
		if err := src.Close(); err != nil {
			log.Error("Error closing source: %v", err)
		}
	}()
	log.Info("Source initialized: type=%s, root=%s", cfg.Source.SourceType, sourceRoot(&cfg.Source))

	// Initialize uploader
	log.Debug("Initializing uploader...")
	up, err := uploader.CreateUploader(&cfg.Uploader, log)
	if err != nil {
		log.Error("Failed to create uploader: %v", err)
		os.Exit(1)
	}
	defer func() {
		log.Debug("Closing uploader...")
		if err := up.Close(); err != nil {
			log.Error("Error closing uploader: %v", err)
		}
	}()
	log.Info("Uploader initialized: type=%s", cfg.Uploader.UploaderType)

	// Initialize optional catalog
	var cat *catalog.Catalog
	if cfg.Catalog.Enabled() {
		log.Debug("Opening catalog...")
		cat, err = catalog.Open(&cfg.Catalog)
		if err != nil {
			log.Error("Failed to open catalog: %v", err)
			os.Exit(1)
		}
		defer func() {
			log.Debug("Closing catalog...")
			if err := cat.Close(); err != nil {
				log.Error("Error closing catalog: %v", err)
			}
		}()
		log.Info("Catalog opened: path=%s", cfg.Catalog.Path)
	}

	// Assemble the transfer pipeline
	walker, err := discovery.NewWalker(src, &cfg.Discovery, log)
	if err != nil {
		log.Error("Failed to create walker: %v", err)
		os.Exit(1)
	}
	guard := space.NewGuard(cfg.Transfer.WorkDir, cfg.Transfer.SafetyMarginBytes, log)
	engine, err := download.NewEngine(src, &cfg.Transfer, log)
	if err != nil {
		log.Error("Failed to create download engine: %v", err)
		os.Exit(1)
	}
	dispatcher, err := dispatch.NewDispatcher(up, guard, log)
	if err != nil {
		log.Error("Failed to create dispatcher: %v", err)
		os.Exit(1)
	}

	deps := orchestrator.Deps{
		Ledger:     manager,
		Discoverer: walker,
		Guard:      guard,
		Fetcher:    engine,
		Dispatcher: dispatcher,
	}
	if cat != nil {
		deps.Catalog = cat
	}

	if cfg.DryRun {
		log.Info("Running in DRY-RUN mode - no files will be transferred")
	}
	runner, err := orchestrator.NewRunner(deps, &cfg.Transfer, sourceRoot(&cfg.Source), cfg.DryRun, log)
	if err != nil {
		log.Error("Failed to create runner: %v", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Run the transfer pass in a goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting transfer pass...")
		_, err := runner.Run(ctx)
		errChan <- err
	}()

	// Wait for completion or interruption
	select {
	case err := <-errChan:
		if err != nil {
			log.Error("Transfer pass failed: %v", err)
			os.Exit(1)
		}
		log.Info("Transfer pass completed successfully")
	case sig := <-sigChan:
		log.Info("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for the runner to finish
		err := <-errChan
		if err != nil && err != context.Canceled {
			log.Error("Error during shutdown: %v", err)
			os.Exit(1)
		}
		log.Info("Shutdown completed")
	}
}

type flagValues struct {
	dryRun           bool
	logLevel         string
	ledgerPath       string
	catalogPath      string
	catalogBucket    string
	catalogNoSync    bool
	sourceType       string
	sourcePoolSize   int
	sourceTimeout    int
	sourceMaxRetries int
	sourceMaxRPS     int
	ftpHost          string
	ftpPort          int
	ftpUsername      string
	ftpPassword      string
	ftpRoot          string
	ftpUseTLS        bool
	uploaderType     string
	uploaderTimeout  int
	photosAPIURL     string
	photosAuthToken  string
	s3Region         string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3Endpoint       string
	s3Prefix         string
	minFileSize      int64
	maxFileSize      int64
	extensions       string
	workDir          string
	maxAttempts      int
	attemptCap       int
	backoffInitial   int
	backoffMax       int
	stallTimeout     int
	progressInterval int
	maxRuntime       int
	safetyMargin     int64
	noResume         bool
}

func applyFlags(cfg *config.AppConfig, flags flagValues) {
	// General
	if flag.Lookup("dry-run").Value.String() == "true" {
		cfg.DryRun = flags.dryRun
	}

	// Logger
	if flags.logLevel != "" {
		cfg.Logger.Level = config.LogLevel(flags.logLevel)
	}

	// Ledger
	if flags.ledgerPath != "" {
		cfg.Ledger.Path = flags.ledgerPath
	}

	// Catalog
	if flags.catalogPath != "" {
		cfg.Catalog.Path = flags.catalogPath
	}
	if flags.catalogBucket != "" {
		cfg.Catalog.Bucket = flags.catalogBucket
	}
	if flag.Lookup("catalog-no-sync").Value.String() == "true" {
		cfg.Catalog.NoSync = flags.catalogNoSync
	}

	// Source
	if flags.sourceType != "" {
		cfg.Source.SourceType = config.SourceType(flags.sourceType)
	}
	if flags.sourcePoolSize > 0 {
		cfg.Source.Common.PoolSize = flags.sourcePoolSize
	}
	if flags.sourceTimeout > 0 {
		cfg.Source.Common.TimeoutSeconds = flags.sourceTimeout
	}
	if flags.sourceMaxRetries > 0 {
		cfg.Source.Common.MaxRetries = flags.sourceMaxRetries
	}
	if flags.sourceMaxRPS > 0 {
		cfg.Source.Common.MaxRPS = flags.sourceMaxRPS
	}

	// FTP
	if flags.ftpHost != "" {
		cfg.Source.FTP.Host = flags.ftpHost
	}
	if flags.ftpPort > 0 {
		cfg.Source.FTP.Port = flags.ftpPort
	}
	if flags.ftpUsername != "" {
		cfg.Source.FTP.Username = flags.ftpUsername
	}
	if flags.ftpPassword != "" {
		cfg.Source.FTP.Password = flags.ftpPassword
	}
	if flags.ftpRoot != "" {
		cfg.Source.FTP.Root = flags.ftpRoot
	}
	if flag.Lookup("ftp-use-tls").Value.String() == "true" {
		cfg.Source.FTP.UseTLS = flags.ftpUseTLS
	}

	// Uploader
	if flags.uploaderType != "" {
		cfg.Uploader.UploaderType = config.UploaderType(flags.uploaderType)
	}
	if flags.uploaderTimeout > 0 {
		cfg.Uploader.Common.TimeoutSeconds = flags.uploaderTimeout
	}

	// Photos
	if flags.photosAPIURL != "" {
		cfg.Uploader.Photos.BaseURL = flags.photosAPIURL
	}
	if flags.photosAuthToken != "" {
		cfg.Uploader.Photos.AuthToken = flags.photosAuthToken
	}

	// S3
	if flags.s3Region != "" {
		cfg.Uploader.S3.Region = flags.s3Region
	}
	if flags.s3Bucket != "" {
		cfg.Uploader.S3.Bucket = flags.s3Bucket
	}
	if flags.s3AccessKey != "" {
		cfg.Uploader.S3.AccessKeyID = flags.s3AccessKey
	}
	if flags.s3SecretKey != "" {
		cfg.Uploader.S3.SecretAccessKey = flags.s3SecretKey
	}
	if flags.s3Endpoint != "" {
		cfg.Uploader.S3.Endpoint = flags.s3Endpoint
	}
	if flags.s3Prefix != "" {
		cfg.Uploader.S3.Prefix = flags.s3Prefix
	}

	// Discovery
	if flags.minFileSize > 0 {
		cfg.Discovery.MinFileSize = flags.minFileSize
	}
	if flags.maxFileSize > 0 {
		cfg.Discovery.MaxFileSize = flags.maxFileSize
	}
	if flags.extensions != "" {
		cfg.Discovery.Extensions = strings.Split(flags.extensions, ",")
	}

	// Transfer
	if flags.workDir != "" {
		cfg.Transfer.WorkDir = flags.workDir
	}
	if flags.maxAttempts > 0 {
		cfg.Transfer.MaxAttempts = flags.maxAttempts
	}
	if flags.attemptCap > 0 {
		cfg.Transfer.AttemptCap = flags.attemptCap
	}
	if flags.backoffInitial > 0 {
		cfg.Transfer.BackoffInitialSeconds = flags.backoffInitial
	}
	if flags.backoffMax > 0 {
		cfg.Transfer.BackoffMaxSeconds = flags.backoffMax
	}
	if flags.stallTimeout > 0 {
		cfg.Transfer.StallTimeoutSeconds = flags.stallTimeout
	}
	if flags.progressInterval > 0 {
		cfg.Transfer.ProgressIntervalSeconds = flags.progressInterval
	}
	if flags.maxRuntime > 0 {
		cfg.Transfer.MaxRuntimeSeconds = flags.maxRuntime
	}
	if flags.safetyMargin > 0 {
		cfg.Transfer.SafetyMarginBytes = flags.safetyMargin
	}
	if flag.Lookup("no-resume").Value.String() == "true" {
		cfg.Transfer.Resume = false
	}
}

func sourceRoot(cfg *config.SourceConfig) string {
	switch cfg.SourceType {
	case config.SourceTypeFTP:
		return cfg.FTP.Root
	default:
		return "/"
	}
}

func printHelp() {
	fmt.Println("Remote-to-Photos Transfer Tool")
	fmt.Println()
	fmt.Println("Usage: photoferry [options]")
	fmt.Println()
	fmt.Println("Configuration can be provided via environment variables or command-line flags.")
	fmt.Println("Command-line flags take precedence over environment variables.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println("  photoferry --ftp-host=nas.local --ftp-username=media --photos-api-url=https://photos.example.com")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DRY_RUN                   - Walk and report only (true/false)")
	fmt.Println("  LOG_LEVEL                 - Log level (silent, error, warn, info, debug, verbose)")
	fmt.Println("  LEDGER_PATH               - Path to the ledger JSON document")
	fmt.Println("  CATALOG_PATH              - Path to the catalog database (empty disables it)")
	fmt.Println("  CATALOG_BUCKET            - Catalog bucket name")
	fmt.Println("  CATALOG_NO_SYNC           - Disable fsync for the catalog (true/false)")
	fmt.Println("  SOURCE_TYPE               - Source type (ftp)")
	fmt.Println("  SOURCE_POOL_SIZE          - Number of pooled source connections")
	fmt.Println("  SOURCE_TIMEOUT_SECONDS    - Source I/O timeout in seconds")
	fmt.Println("  SOURCE_MAX_RETRIES        - Max retries for listing calls")
	fmt.Println("  SOURCE_MAX_RPS            - Max control commands per second (0 = no limit)")
	fmt.Println("  FTP_HOST                  - FTP server host")
	fmt.Println("  FTP_PORT                  - FTP server port")
	fmt.Println("  FTP_USERNAME              - FTP username")
	fmt.Println("  FTP_PASSWORD              - FTP password")
	fmt.Println("  FTP_ROOT                  - Directory the walk starts from")
	fmt.Println("  FTP_USE_TLS               - Use explicit FTP over TLS (true/false)")
	fmt.Println("  UPLOADER_TYPE             - Uploader type (photos, s3)")
	fmt.Println("  UPLOADER_TIMEOUT_SECONDS  - Uploader metadata timeout in seconds")
	fmt.Println("  PHOTOS_API_URL            - Photo service base URL")
	fmt.Println("  PHOTOS_AUTH_TOKEN         - Photo service auth token")
	fmt.Println("  S3_REGION                 - S3 region")
	fmt.Println("  S3_BUCKET                 - S3 bucket name")
	fmt.Println("  S3_ACCESS_KEY_ID          - S3 access key ID")
	fmt.Println("  S3_SECRET_ACCESS_KEY      - S3 secret access key")
	fmt.Println("  S3_ENDPOINT               - S3 endpoint URL")
	fmt.Println("  S3_PREFIX                 - Key prefix for uploaded objects")
	fmt.Println("  MIN_FILE_SIZE             - Smallest candidate in bytes")
	fmt.Println("  MAX_FILE_SIZE             - Largest candidate in bytes")
	fmt.Println("  EXTENSIONS                - Comma-separated extension allow-list")
	fmt.Println("  WORK_DIR                  - Local directory holding in-flight files")
	fmt.Println("  MAX_ATTEMPTS              - Download attempts within one run")
	fmt.Println("  ATTEMPT_CAP               - Lifetime attempts before permanent skip")
	fmt.Println("  BACKOFF_INITIAL_SECONDS   - First inter-attempt sleep")
	fmt.Println("  BACKOFF_MAX_SECONDS       - Inter-attempt sleep ceiling")
	fmt.Println("  STALL_TIMEOUT_SECONDS     - Zero-progress seconds before a transfer is cut")
	fmt.Println("  PROGRESS_INTERVAL_SECONDS - Byte-progress sampling interval")
	fmt.Println("  MAX_RUNTIME_SECONDS       - Wall-clock budget for a pass (0 = unlimited)")
	fmt.Println("  SAFETY_MARGIN_BYTES       - Free space kept in reserve")
	fmt.Println("  RESUME                    - Continue partial downloads (true/false)")
}
