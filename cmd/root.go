package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diku-dk/staffeli-go/internal/canvas"
	"github.com/diku-dk/staffeli-go/internal/config"
	"github.com/diku-dk/staffeli-go/internal/console"
)

var (
	// Config flags - bound in init()
	envFile    string
	apiURL     string
	tokenPath  string
	workers    int
	maxRetries int
	logFormat  string
	logLevel   string
	logOutput  string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	appConfig  *config.Config
	client     *canvas.Client
	term       *console.Console
)

var rootCmd = &cobra.Command{
	Use:   "staffeli",
	Short: "Grading workflow automation for Canvas courses.",
	Long: `Staffeli automates the grading workflow of a Canvas course: it fetches
student submissions in parallel, merges group handins, distributes them among
teaching assistants, tracks grading completion, and uploads grades and
feedback back to the platform.

The primary command is 'download', which runs the parallel submission-fetch
pipeline and writes a submissions tree ready for grading. 'scan' checks the
tree for missing grades, and 'upload' pushes the finished grading back.

A fetch failure during download (including rate-limit retry exhaustion)
cancels the whole run; partial output is left on disk for inspection.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		var err error
		appConfig, err = config.Load(envFile)
		if err != nil {
			return err
		}
		// Flags override the environment.
		if cmd.Flags().Changed("api-url") {
			appConfig.APIURL = apiURL
		}
		if cmd.Flags().Changed("token-path") {
			appConfig.TokenPath = tokenPath
		}
		if cmd.Flags().Changed("workers") {
			appConfig.Workers = workers
		}
		if cmd.Flags().Changed("max-retries") {
			appConfig.MaxRetries = maxRetries
		}
		if err := appConfig.ResolveToken(); err != nil {
			return err
		}

		client = canvas.NewClient(appConfig.APIURL, appConfig.Token)
		term = console.New()
		rootLogger.Debug("configuration loaded",
			slog.String("api_url", appConfig.APIURL),
			slog.Int("workers", appConfig.Workers))
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
// Called by main.main().
func Execute() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(uploadSingleCmd)

	if err := rootCmd.Execute(); err != nil {
		if term != nil {
			term.Errorf("%v", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file with STAFFELI_* settings")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "https://absalon.ku.dk/", "Canvas instance root URL")
	rootCmd.PersistentFlags().StringVar(&tokenPath, "token-path", "", "path to the Canvas API token (default ~/.canvas.token)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", config.DefaultWorkers, "concurrent in-flight fetches per phase")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", config.DefaultMaxRetries, "attempts per rate-limited remote call")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "0.1.0"
}
