// vogelsgen generates Go service clients from JSON service models.
//
// # Usage
//
// Point it at a directory of service model directories and an output
// directory:
//
//	vogelsgen generate --models ./models --output ./service
//
// Each subdirectory of --models holds one service: its api model file
// (api-2.json), and optionally paginators, customization and endpoint
// rule files. Every service generates into its own package under
// --output.
//
// Unchanged services are skipped using a content hash cache; --force
// regenerates everything and "vogelsgen cache clear" resets the hashes.
//
// A vogelsgen.yaml file in the working directory (or --config) supplies
// defaults for the flags:
//
//	models: ./models
//	output: ./service
//	parallel: 8
//	services: [dynamodb, sqs]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acksell/vogels/codegen/generate"
	"github.com/acksell/vogels/codegen/intermediate"
	"github.com/acksell/vogels/codegen/model"
)

const defaultConfigFile = "vogelsgen.yaml"

var (
	cfgPath   string
	verbose   bool
	modelsDir string
	outputDir string
	cacheDir  string
	noCache   bool
	force     bool
	parallel  int
	services  []string
)

// config mirrors the persistent flags; explicit flags win over the file.
type config struct {
	Models   string   `yaml:"models"`
	Output   string   `yaml:"output"`
	CacheDir string   `yaml:"cache"`
	Parallel int      `yaml:"parallel"`
	Services []string `yaml:"services"`
}

var rootCmd = &cobra.Command{
	Use:   "vogelsgen",
	Short: "Generate Go service clients from JSON service models",
	Long: `vogelsgen renders a Go client package per service model: the shape
types, the operation schemas the runtime protocol codecs consume, the
client methods and the paginators.`,
	SilenceUsage: true,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate client packages for every service model",
	RunE:  runGenerate,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <service-model-dir>",
	Short: "Print the normalized model for one service as JSON",
	Long: `inspect loads one service model directory and prints the normalized
model the generator would consume, after name resolution, result-shape
unwrapping and paginator validation. Useful when generated output looks
wrong and the question is what the generator actually saw.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the generation cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached services and their input hashes",
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached input hash",
	RunE:  runCacheClear,
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		log.SetLevel(log.InfoLevel)
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		return loadConfig()
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (default "+defaultConfigFile+" when present)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&modelsDir, "models", "models", "directory of service model directories")
	pf.StringVar(&outputDir, "output", ".", "directory generated packages are written under")
	pf.StringVar(&cacheDir, "cache-dir", ".vogelsgen/cache", "generation cache directory")

	generateCmd.Flags().StringSliceVar(&services, "service", nil, "generate only the named services (repeatable)")
	generateCmd.Flags().BoolVar(&force, "force", false, "regenerate even when the cache is current")
	generateCmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cache entirely")
	generateCmd.Flags().IntVar(&parallel, "parallel", 0, "concurrent services (0 means one per CPU)")

	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(cacheCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig fills flag values from the config file, keeping any value the
// command line set explicitly.
func loadConfig() error {
	path := cfgPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return nil
		}
		path = defaultConfigFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	var c config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	unchanged := func(name string) bool {
		f := rootCmd.PersistentFlags().Lookup(name)
		return f != nil && !f.Changed
	}
	if c.Models != "" && unchanged("models") {
		modelsDir = c.Models
	}
	if c.Output != "" && unchanged("output") {
		outputDir = c.Output
	}
	if c.CacheDir != "" && unchanged("cache-dir") {
		cacheDir = c.CacheDir
	}
	gf := generateCmd.Flags()
	if c.Parallel > 0 && !gf.Lookup("parallel").Changed {
		parallel = c.Parallel
	}
	if len(c.Services) > 0 && !gf.Lookup("service").Changed {
		services = c.Services
	}
	log.WithField("path", path).Debug("loaded config file")
	return nil
}

func openCache() (*generate.Cache, error) {
	if noCache {
		return nil, nil
	}
	return generate.OpenCache(cacheDir)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	gen := generate.New(generate.Options{
		OutputDir: outputDir,
		Cache:     cache,
		Force:     force,
		Logger:    log.StandardLogger(),
	})
	results, err := gen.Directory(cmd.Context(), modelsDir, services, parallel)
	if err != nil {
		return err
	}

	var generated, skipped int
	for _, r := range results {
		if r.Skipped {
			skipped++
			continue
		}
		generated++
	}
	log.WithFields(log.Fields{
		"generated": generated,
		"skipped":   skipped,
		"output":    outputDir,
	}).Info("generation complete")
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	svc, err := model.LoadService(args[0])
	if err != nil {
		return err
	}
	m, err := intermediate.NewBuilder(log.StandardLogger()).Build(svc)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	cache, err := generate.OpenCache(cacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	entries, err := cache.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("cache is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-40s %s\n", e.Service, e.Hash)
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, err := generate.OpenCache(cacheDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(); err != nil {
		return err
	}
	log.WithField("dir", cacheDir).Info("cache cleared")
	return nil
}
