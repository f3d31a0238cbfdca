package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sambabib/dependency-inspector/pkg/audit"
	"github.com/sambabib/dependency-inspector/pkg/cache"
	"github.com/sambabib/dependency-inspector/pkg/config"
	"github.com/sambabib/dependency-inspector/pkg/lockfile"
	"github.com/sambabib/dependency-inspector/pkg/logger"
	"github.com/sambabib/dependency-inspector/pkg/output"
	"github.com/sambabib/dependency-inspector/pkg/probe"
	"github.com/sambabib/dependency-inspector/pkg/registry"
	"github.com/sambabib/dependency-inspector/pkg/report"
)

// inspectOptions holds the flags of the inspect command.
type inspectOptions struct {
	path           string
	format         string
	outputFile     string
	configPath     string
	packageManager string
	latest         bool
	vulnerability  bool
	all            bool
	silent         bool
	verbose        bool
	noCache        bool
	clearCache     bool
}

var inspectOpts inspectOptions

// inspectCmd represents the inspect subcommand
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect project dependencies",
	Long: `Inspect the project's resolved dependencies and report installed versions,
available updates and known vulnerabilities.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := inspectOpts
		if len(args) > 0 {
			opts.path = args[0]
		}
		return runInspect(cmd.Context(), cmd, opts, cmd.OutOrStdout())
	},
	Args: cobra.MaximumNArgs(1),
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	f := inspectCmd.Flags()
	f.StringVarP(&inspectOpts.path, "path", "p", ".", "Path to project directory to inspect")
	f.StringVarP(&inspectOpts.format, "format", "f", "", "Output format: text, json or sarif")
	f.StringVarP(&inspectOpts.outputFile, "output", "o", "", "Write the report to a file instead of stdout")
	f.StringVar(&inspectOpts.configPath, "config", "", "Path to config file (default: search for "+config.FileName+")")
	f.StringVarP(&inspectOpts.packageManager, "package-manager", "m", "", "Force a package manager: yarn, npm, poetry or go")
	f.BoolVarP(&inspectOpts.latest, "latest", "l", false, "Fetch the latest versions from the registry")
	f.BoolVarP(&inspectOpts.vulnerability, "vulnerability", "x", false, "Fetch known vulnerabilities")
	f.BoolVarP(&inspectOpts.all, "all", "a", false, "Include transitive dependencies")
	f.BoolVarP(&inspectOpts.silent, "silent", "s", false, "Suppress progress output")
	f.BoolVarP(&inspectOpts.verbose, "verbose", "v", false, "Enable verbose logging")
	f.BoolVar(&inspectOpts.noCache, "no-cache", false, "Do not use the on-disk response cache")
	f.BoolVar(&inspectOpts.clearCache, "clear-cache", false, "Remove cached registry and audit responses before inspecting")
}

func runInspect(ctx context.Context, cmd *cobra.Command, opts inspectOptions, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.LoadEnv(opts.path); err != nil {
		return err
	}
	applyFlags(cmd, cfg, &opts)

	logger.SetVerbose(opts.verbose)
	logger.SetSilent(opts.silent)

	provider, err := selectProvider(opts.path, cfg.PackageManager)
	if err != nil {
		return err
	}
	logger.Infof("Reading %s lockfile in %s", provider.Name(), opts.path)
	g, err := provider.Load(ctx, opts.path)
	if err != nil {
		return fmt.Errorf("failed to load %s project: %w", provider.Name(), err)
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	diskCache := openCache(cfg)
	if opts.clearCache && diskCache != nil {
		if err := diskCache.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache %s: %w", diskCache.Dir, err)
		}
		logger.Infof("Cleared cache %s", diskCache.Dir)
	}

	var prober report.Prober
	if opts.latest {
		resolver, err := registry.NewResolver(g.Ecosystem, registry.Options{
			NpmURL:     cfg.Registries.Npm,
			PyPIURL:    cfg.Registries.PyPI,
			GoProxyURL: cfg.Registries.GoProxy,
			HTTPClient: hc,
			Cache:      diskCache,
		})
		if err != nil {
			return err
		}
		prober = probe.New(resolver, cfg.DefaultSemverRangePrefix)
	}

	var fetcher audit.Fetcher
	if opts.vulnerability {
		fetcher = audit.ForEcosystem(g.Ecosystem, audit.Options{
			NpmAuditURL: cfg.Audit.Npm,
			OSVURL:      cfg.Audit.OSV,
			PyPIURL:     cfg.Registries.PyPI,
			PreferOSV:   cfg.Audit.PreferOSV,
			HTTPClient:  hc,
			Cache:       diskCache,
		})
	}

	assembler := report.NewAssembler(report.Options{
		ShowLatest:        opts.latest,
		ShowAll:           opts.all,
		ShowVulnerability: opts.vulnerability,
		Ignore:            cfg.IsPackageIgnored,
	}, prober, fetcher)

	doc, err := assembler.Assemble(ctx, g)
	if err != nil {
		return err
	}

	data, err := render(doc, opts.format, cfg, provider.Name(), started)
	if err != nil {
		return err
	}

	if opts.outputFile == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(opts.outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", opts.outputFile, err)
	}
	logger.Infof("Report written to %s", opts.outputFile)
	return nil
}

func loadConfig(opts inspectOptions) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadConfig(opts.configPath)
	}
	return config.FindAndLoadConfig(opts.path)
}

// applyFlags lets explicitly set flags win over config values, and config
// defaults fill the flags that were left alone.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *inspectOptions) {
	changed := func(name string) bool {
		return cmd != nil && cmd.Flags().Changed(name)
	}
	if !changed("latest") {
		opts.latest = opts.latest || cfg.Defaults.Latest
	}
	if !changed("vulnerability") {
		opts.vulnerability = opts.vulnerability || cfg.Defaults.Vulnerability
	}
	if !changed("all") {
		opts.all = opts.all || cfg.Defaults.All
	}
	if !changed("silent") {
		opts.silent = opts.silent || cfg.Defaults.Silent
	}
	if opts.format == "" {
		opts.format = cfg.Output.Format
	}
	if opts.outputFile == "" {
		opts.outputFile = cfg.Output.File
	}
	if opts.packageManager != "" {
		cfg.PackageManager = opts.packageManager
	}
	if opts.noCache {
		cfg.Cache.Disabled = true
	}
}

func selectProvider(dir, packageManager string) (lockfile.Provider, error) {
	if packageManager != "" {
		return lockfile.ForName(packageManager)
	}
	return lockfile.Detect(dir)
}

// openCache returns nil when caching is disabled or unavailable; a nil cache
// always misses.
func openCache(cfg *config.Config) *cache.Cache {
	if cfg.Cache.Disabled {
		return nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		d, err := cache.DefaultDir("depinspect")
		if err != nil {
			logger.Warnf("Cache disabled: %v", err)
			return nil
		}
		dir = d
	}
	c, err := cache.New(dir, cfg.Cache.TTL)
	if err != nil {
		logger.Warnf("Cache disabled: %v", err)
		return nil
	}
	logger.Debugf("Using cache directory %s", dir)
	return c
}

func render(doc *report.Document, format string, cfg *config.Config, packageManager string, started time.Time) ([]byte, error) {
	switch format {
	case "json":
		data, err := output.GenerateJSONReport(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal report to JSON: %w", err)
		}
		return append(data, '\n'), nil
	case "sarif":
		data, err := output.GenerateSarifReport(doc, output.SarifOptions{
			ArtifactURI: filepath.ToSlash(lockfileName(packageManager)),
			ToolVersion: Version,
			Severity:    cfg.GetSeverityForUpdate,
			StartTime:   started,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate SARIF report: %w", err)
		}
		return append(data, '\n'), nil
	case "text", "":
		var buf bytes.Buffer
		if err := output.PrintTextReport(&buf, doc, cfg.GetSeverityForUpdate); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want text, json or sarif)", format)
	}
}

func lockfileName(packageManager string) string {
	switch packageManager {
	case "yarn":
		return "yarn.lock"
	case "npm":
		return "package-lock.json"
	case "poetry":
		return "poetry.lock"
	case "go":
		return "go.mod"
	default:
		return "."
	}
}
