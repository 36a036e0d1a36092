package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/segfetch/internal/config"
	"github.com/tanq16/segfetch/internal/output"
	"github.com/tanq16/segfetch/internal/utils"
)

var (
	configPath    string
	outputPath    string
	connections   int
	bufferSize    int
	readDelay     time.Duration
	chunkTimeout  time.Duration
	strictLength  bool
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	rps           int
	burst         int
	awsProfile    string
	logFile       string
	debug         bool
)

var SegfetchVersion = "dev"

// appConfig is resolved once per invocation before any command runs.
var appConfig config.Config

var rootCmd = &cobra.Command{
	Use:   "segfetch [URL]",
	Short: "segfetch downloads a file over parallel HTTP range requests",
	Long: `segfetch splits a remote file into one byte range per worker, fetches
every range concurrently and reassembles them in order.

Examples:
  segfetch https://example.com/file.iso
  segfetch https://example.com/file.iso -c 16 -o file.iso
  segfetch https://example.com/file.iso -o s3://bucket/isos/file.iso`,
	Version: SegfetchVersion,
	Args:    cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg
		return setupLogging(cfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := appConfig
		if _, err := u.ParseRequestURI(args[0]); err != nil {
			output.PrintError("Invalid URL format")
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job := cfg.Job(args[0])
		report := fetchOne(ctx, cfg, job, cfg.Output, true)
		if report.Err != nil {
			output.PrintError(fmt.Sprintf("Fetch failed: %v", report.Err))
			os.Exit(1)
		}
		printReport(report)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flags.StringVarP(&outputPath, "output", "o", "", "Output path or s3://bucket/key (inferred if not provided)")
	flags.IntVarP(&connections, "connections", "c", utils.DefaultWorkers, "Number of range workers per download (above 5 enables high-thread-mode)")
	flags.IntVarP(&bufferSize, "buffer-size", "b", utils.DefaultBufferSize, "Bytes read per iteration by each worker")
	flags.DurationVarP(&readDelay, "read-delay", "d", utils.DefaultReadDelay, "Pause between reads of a worker (eg. 0s, 10ms)")
	flags.DurationVar(&chunkTimeout, "chunk-timeout", 0, "Deadline for each range worker, 0 disables it")
	flags.BoolVar(&strictLength, "strict-length", false, "Fail when a range response reports an unexpected length")
	flags.DurationVarP(&timeout, "timeout", "t", utils.DefaultTimeout, "Timeout for connecting and receiving response headers (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", utils.DefaultKATimeout, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'X-Key: value'); can be specified multiple times")
	flags.IntVar(&rps, "rps", 0, "Maximum requests per second towards the origin, 0 disables throttling")
	flags.IntVar(&burst, "burst", 0, "Burst size for --rps (defaults to the rps value)")
	flags.StringVar(&awsProfile, "profile", "default", "AWS profile used for s3:// outputs")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newBatchCmd())
}

func setupLogging(cfg config.Config) error {
	utils.InitLogger(cfg.Debug)
	if cfg.LogFile == "" {
		return nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	utils.SetLogOutput(f)
	return nil
}

// loadConfig layers changed flags over the config file over defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed
	if changed("output") {
		cfg.Output = outputPath
	}
	if changed("connections") {
		cfg.Fetch.Workers = connections
	}
	if changed("buffer-size") {
		cfg.Fetch.BufferSize = bufferSize
	}
	if changed("read-delay") {
		cfg.Fetch.ReadDelay = readDelay
	}
	if changed("chunk-timeout") {
		cfg.Fetch.ChunkTimeout = chunkTimeout
	}
	if changed("strict-length") {
		cfg.Fetch.StrictLength = strictLength
	}
	if changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if changed("keep-alive-timeout") {
		cfg.HTTP.KATimeout = kaTimeout
	}
	if changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if changed("rps") {
		cfg.HTTP.RPS = rps
	}
	if changed("burst") {
		cfg.HTTP.Burst = burst
	}
	if changed("profile") {
		cfg.AWSProfile = awsProfile
	}
	if changed("log-file") {
		cfg.LogFile = logFile
	}
	if changed("debug") {
		cfg.Debug = debug
	}
	for k, v := range utils.ParseHeaderArgs(headers) {
		cfg.HTTP.Headers[k] = v
	}
	if changed("proxy") {
		cfg.HTTP.ProxyURL = proxyURL
	}
	if changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.HTTP.ProxyURL)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.ProxyURL = parsedProxy.String()
	}
	return cfg, cfg.Validate()
}
