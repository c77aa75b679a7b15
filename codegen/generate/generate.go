// Package generate renders Go client packages from normalized service
// models. Rendering is a pure function of the model and the templates; the
// generator adds caching, atomic output staging and parallel runs over a
// models directory on top.
package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/acksell/vogels/codegen/intermediate"
	"github.com/acksell/vogels/codegen/model"
)

// Options configure a Generator.
type Options struct {
	// OutputDir is the directory generated packages are written under,
	// one subdirectory per service package.
	OutputDir string

	// Cache skips services whose inputs are unchanged since the last
	// run. Nil disables caching.
	Cache *Cache

	// Force regenerates even when the cache says the output is current.
	Force bool

	Logger log.FieldLogger
}

// Generator writes generated service packages.
type Generator struct {
	opts   Options
	logger log.FieldLogger
}

// New builds a Generator. The zero Options value writes to the current
// directory without caching.
func New(opts Options) *Generator {
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Generator{opts: opts, logger: logger}
}

// Result describes one generated (or skipped) service.
type Result struct {
	// Service is the model name the run was keyed on.
	Service string

	// Package is the generated Go package name; Dir its directory.
	Package string
	Dir     string

	// Files lists the written file names, sorted.
	Files []string

	// Skipped is set when the cache found the output current.
	Skipped bool
}

// Service generates the client package for one service model.
func (g *Generator) Service(svc *model.Service) (*Result, error) {
	hash, err := InputHash(svc)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	pkg := packageName(svc)
	dir := filepath.Join(g.opts.OutputDir, pkg)

	if !g.opts.Force && g.opts.Cache.UpToDate(svc.Name, hash) {
		g.logger.WithFields(log.Fields{"service": svc.Name, "dir": dir}).Debug("output up to date")
		return &Result{Service: svc.Name, Package: pkg, Dir: dir, Skipped: true}, nil
	}

	m, err := intermediate.NewBuilder(g.logger).Build(svc)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	files, err := Render(m, g.logger)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	if err := g.write(m.Metadata.PackageName, files); err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	if err := g.opts.Cache.Record(svc.Name, hash); err != nil {
		g.logger.WithError(err).WithField("service", svc.Name).Warn("recording cache entry")
	}

	names := maps.Keys(files)
	sort.Strings(names)
	g.logger.WithFields(log.Fields{
		"service": svc.Name,
		"package": m.Metadata.PackageName,
		"files":   len(names),
	}).Info("generated service package")
	return &Result{
		Service: svc.Name,
		Package: m.Metadata.PackageName,
		Dir:     filepath.Join(g.opts.OutputDir, m.Metadata.PackageName),
		Files:   names,
	}, nil
}

// write stages the files in a hidden temp directory next to the target and
// swaps it in with a rename, so a failed run never leaves a half-written
// package.
func (g *Generator) write(pkg string, files map[string][]byte) error {
	if err := os.MkdirAll(g.opts.OutputDir, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(g.opts.OutputDir, "."+pkg+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	names := maps.Keys(files)
	sort.Strings(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(staging, name), files[name], 0o644); err != nil {
			return err
		}
	}

	target := filepath.Join(g.opts.OutputDir, pkg)
	if err := os.RemoveAll(target); err != nil {
		return err
	}
	return os.Rename(staging, target)
}

// Directory generates every service model under modelsDir, one
// subdirectory per service. A non-empty only list restricts the run to the
// named services; naming a service that does not exist is an error before
// any generation starts. parallel bounds concurrent services; values below
// one mean one per CPU.
func (g *Generator) Directory(ctx context.Context, modelsDir string, only []string, parallel int) ([]*Result, error) {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return nil, err
	}
	available := make(map[string]bool, len(entries))
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			available[e.Name()] = true
			names = append(names, e.Name())
		}
	}
	if len(only) > 0 {
		names = names[:0]
		for _, name := range only {
			if !available[name] {
				return nil, fmt.Errorf("service %q not found under %s", name, modelsDir)
			}
			names = append(names, name)
		}
	}

	if parallel < 1 {
		parallel = runtime.NumCPU()
	}
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(parallel)

	var mu sync.Mutex
	var results []*Result
	for _, name := range names {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			svc, err := model.LoadService(filepath.Join(modelsDir, name))
			if err != nil {
				return fmt.Errorf("loading %s: %w", name, err)
			}
			res, err := g.Service(svc)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Service < results[j].Service })
	return results, nil
}

// InputHash digests everything generation output depends on: the generator
// version, the service model and the template sources. Matching hashes
// mean regeneration would reproduce the existing output.
func InputHash(svc *model.Service) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "vogelsgen %s\n", generatorVersion)
	enc := json.NewEncoder(h)
	if err := enc.Encode(svc.API); err != nil {
		return "", fmt.Errorf("hashing api model: %w", err)
	}
	if err := enc.Encode(svc.Paginators); err != nil {
		return "", fmt.Errorf("hashing paginators: %w", err)
	}
	if err := enc.Encode(svc.Customization); err != nil {
		return "", fmt.Errorf("hashing customization: %w", err)
	}
	tnames := maps.Keys(templateSources)
	sort.Strings(tnames)
	for _, name := range tnames {
		fmt.Fprintf(h, "template %s\n%s\n", name, templateSources[name])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func packageName(svc *model.Service) string {
	id := svc.API.Metadata.ServiceID
	if id == "" {
		id = svc.Name
	}
	return intermediate.PackageName(id)
}
