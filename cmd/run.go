package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/insertdocs/internal/cargo"
	"github.com/jcdickinson/insertdocs/internal/cas"
	"github.com/jcdickinson/insertdocs/internal/config"
	"github.com/jcdickinson/insertdocs/internal/diff"
	"github.com/jcdickinson/insertdocs/internal/docs"
	"github.com/jcdickinson/insertdocs/internal/features"
	"github.com/jcdickinson/insertdocs/internal/git"
	"github.com/jcdickinson/insertdocs/internal/insert"
	"github.com/jcdickinson/insertdocs/internal/itemgraph"
	"github.com/jcdickinson/insertdocs/internal/logging"
	"github.com/jcdickinson/insertdocs/internal/markdown"
	"github.com/jcdickinson/insertdocs/internal/resolve"
)

type mode int

const (
	modeBoth mode = iota
	modeFeatures
	modeCrate
)

const (
	featureDocs = "feature documentation"
	crateDocs   = "crate documentation"
)

// workspace is everything shared by the packages of one run.
type workspace struct {
	manifest string
	md       *cargo.Metadata
	cfg      *config.Config
	pkgs     []*cargo.Package
	explicit bool
	source   *cargo.Source
}

// packageRun is the state of one selected package.
type packageRun struct {
	pkg    *cargo.Package
	cfg    *config.Config
	sink   *logging.Sink
	diffs  []*diff.Diff
	logger *log.Logger
}

func (a *app) loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	ctx := cmd.Context()

	manifest := a.opts.manifestPath
	if manifest == "" {
		found, err := cargo.LocateManifest(".")
		if err != nil {
			return nil, err
		}
		manifest = found
	}

	cargoStderr := a.stderr
	if a.opts.quiet {
		cargoStderr = io.Discard
	}
	runner := &cargo.Runner{Cargo: os.Getenv("CARGO"), Stderr: cargoStderr, Logger: a.logger}

	md, err := runner.Metadata(ctx, cargo.MetadataOptions{ManifestPath: manifest, NoDeps: a.opts.noDeps})
	if err != nil {
		return nil, fmt.Errorf("failed to run cargo metadata: %w", err)
	}

	loaded, err := config.Load(config.Sources{
		WorkspaceManifest: md.WorkspaceManifest(),
		File:              a.opts.configFile,
		Flags:             cmd.Flags(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	a.warnUnknown(a.logger, md.WorkspaceManifest(), loaded.Unknown)

	sel := cargo.Selection{
		Packages:     loaded.Package,
		Workspace:    loaded.Workspace,
		Exclude:      loaded.Exclude,
		ManifestPath: manifest,
	}
	pkgs, err := md.Select(sel)
	if err != nil {
		return nil, err
	}
	if err := cargo.ValidateFeatures(pkgs, loaded.Features); err != nil {
		return nil, err
	}

	source := &cargo.Source{Runner: runner, File: loaded.RustdocJSON}
	if !loaded.NoCache {
		source.Store = cas.Default()
	}

	ws := &workspace{
		manifest: manifest,
		md:       md,
		cfg:      loaded.Config,
		pkgs:     pkgs,
		explicit: sel.Explicit() || len(pkgs) > 1,
		source:   source,
	}
	return ws, nil
}

func (a *app) warnUnknown(logger *log.Logger, manifest string, keys []string) {
	for _, key := range keys {
		logger.Warn("unknown config key", "key", key, logging.FieldPath, manifest)
	}
}

// packages loads the per-package config of every selected package.
func (a *app) packages(cmd *cobra.Command, ws *workspace, m mode) ([]*packageRun, error) {
	runs := make([]*packageRun, 0, len(ws.pkgs))
	for _, pkg := range ws.pkgs {
		logger := a.logger
		if ws.explicit {
			logger = logging.ForPackage(logger, pkg.Name)
		}

		loaded, err := config.Load(config.Sources{
			WorkspaceManifest: ws.md.WorkspaceManifest(),
			PackageManifest:   pkg.ManifestPath,
			File:              a.opts.configFile,
			Flags:             cmd.Flags(),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: failed to load config: %w", pkg.Name, err)
		}
		a.warnUnknown(logger, pkg.ManifestPath, loaded.Unknown)

		cfg := loaded.Config
		switch m {
		case modeFeatures:
			cfg.FeatureIntoCrate, cfg.CrateIntoReadme = true, false
		case modeCrate:
			cfg.FeatureIntoCrate, cfg.CrateIntoReadme = false, true
		}

		runs = append(runs, &packageRun{
			pkg:    pkg,
			cfg:    cfg,
			sink:   logging.NewSink(cfg.Strict),
			logger: logger,
		})
	}
	return runs, nil
}

func readmePath(pkg *cargo.Package, cfg *config.Config) string {
	p := cfg.ReadmePath
	if p == "" {
		p = config.DefaultReadme
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(pkg.Dir(), p)
}

func libPath(pkg *cargo.Package) string {
	lib, ok := pkg.Lib()
	if !ok {
		return ""
	}
	return lib.SrcPath
}

func (a *app) runInsert(cmd *cobra.Command, m mode) error {
	if a.opts.printSupportedToolchain {
		fmt.Fprintln(a.stdout, config.DefaultToolchain)
		return nil
	}

	ws, err := a.loadWorkspace(cmd)
	if err != nil {
		return err
	}
	runs, err := a.packages(cmd, ws, m)
	if err != nil {
		return err
	}

	if a.opts.printConfig {
		return a.printConfig(runs)
	}

	if err := a.checkDirty(ws, runs); err != nil {
		return err
	}

	a.logger.Debug("processing packages", logging.FieldJobs, ws.cfg.Jobs, logging.FieldCheck, ws.cfg.Check)

	var g errgroup.Group
	g.SetLimit(ws.cfg.Jobs)
	for _, r := range runs {
		g.Go(func() error {
			a.runPackage(cmd.Context(), ws, r)
			return nil
		})
	}
	_ = g.Wait()

	return a.report(runs)
}

// checkDirty refuses to overwrite files with uncommitted changes.
func (a *app) checkDirty(ws *workspace, runs []*packageRun) error {
	var dirty []string
	for _, r := range runs {
		if r.cfg.Check || r.cfg.AllowDirty {
			continue
		}
		var paths []string
		if r.cfg.FeatureIntoCrate {
			paths = append(paths, libPath(r.pkg))
		}
		if r.cfg.CrateIntoReadme {
			paths = append(paths, readmePath(r.pkg, r.cfg))
		}
		for _, p := range git.DirtyFiles(paths, r.cfg.AllowStaged) {
			if rel, err := filepath.Rel(ws.md.WorkspaceRoot, p); err == nil {
				p = rel
			}
			dirty = append(dirty, p)
		}
	}

	if err := git.DirtyError(dirty); err != nil {
		a.logger.Error(err.Error(),
			"info", "this is to prevent overwriting changes you may have made to a section",
			"help", "use the `--allow-dirty` argument to insert docs anyway",
		)
		return errReported
	}
	return nil
}

func (a *app) runPackage(ctx context.Context, ws *workspace, r *packageRun) {
	ctx = logging.WithLogger(ctx, r.logger)

	if r.cfg.FeatureIntoCrate {
		a.task(r, featureDocs, crateDocs, func() (*insert.Outcome, error) {
			return insert.FeatureIntoCrate(ctx, insert.Task{
				Package:             r.pkg.Name,
				Manifest:            r.pkg.ManifestPath,
				Dest:                libPath(r.pkg),
				Section:             r.cfg.FeatureSection,
				Check:               r.cfg.Check,
				AllowMissingSection: r.cfg.AllowMissingSection,
				Features: features.Options{
					Label:  r.cfg.FeatureLabel,
					Hidden: r.cfg.HiddenFeatures,
				},
				Sink: r.sink,
			})
		})
	}

	if r.cfg.CrateIntoReadme {
		a.task(r, crateDocs, "readme", func() (*insert.Outcome, error) {
			text, opts, err := a.loadCrateDocs(ctx, ws, r)
			if err != nil {
				return nil, err
			}
			return insert.CrateIntoReadme(ctx, insert.Task{
				Package:             r.pkg.Name,
				Dest:                readmePath(r.pkg, r.cfg),
				Section:             r.cfg.CrateSection,
				Check:               r.cfg.Check,
				AllowMissingSection: r.cfg.AllowMissingSection,
				CrateDocs:           text,
				Rewrite:             opts,
				Sink:                r.sink,
			})
		})
	}
}

// task runs one insertion and records its outcome in the package sink.
func (a *app) task(r *packageRun, from, to string, run func() (*insert.Outcome, error)) {
	name, failure := insert.Describe(from, to, r.cfg.Check)
	r.sink.Debug(name)

	out, err := run()
	if out != nil && out.Stale && out.Diff != nil {
		r.diffs = append(r.diffs, out.Diff)
	}
	if err != nil {
		keyvals := []any{logging.FieldError, err}
		var verr *docs.VersionError
		if errors.As(err, &verr) {
			keyvals = append(keyvals, logging.FieldVersion, verr.Actual, logging.FieldToolchain, r.cfg.Toolchain)
		}
		r.sink.Error(failure, keyvals...)
		return
	}
	if out.Changed {
		r.sink.Info("updated "+filepath.Base(out.Path), logging.FieldPath, out.Path, logging.FieldChanged, out.Diff.Added+out.Diff.Removed)
	}
}

func rustdocOptions(ws *workspace, cfg *config.Config, quiet bool) cargo.RustdocOptions {
	return cargo.RustdocOptions{
		Toolchain:            cfg.Toolchain,
		ManifestPath:         ws.manifest,
		Target:               cfg.Target,
		TargetDir:            cfg.TargetDir,
		Features:             cfg.Features,
		AllFeatures:          cfg.AllFeatures,
		NoDefaultFeatures:    cfg.NoDefaultFeatures,
		DocumentPrivateItems: cfg.DocumentPrivateItems,
		Quiet:                quiet,
	}
}

// loadCrateDocs loads the rustdoc description of the package and returns the
// crate root docs with the options that rewrite them for the readme.
func (a *app) loadCrateDocs(ctx context.Context, ws *workspace, r *packageRun) (string, markdown.Options, error) {
	crate, err := ws.source.Load(ctx, ws.md, r.pkg, rustdocOptions(ws, r.cfg, a.opts.quiet))
	if err != nil {
		return "", markdown.Options{}, fmt.Errorf("failed to get rustdoc json: %w", err)
	}

	g, err := itemgraph.Build(crate, itemgraph.Options{
		MaxHops: r.cfg.MaxHops,
		Roots:   ws.md.DocRoots(r.cfg.LinkToLatest),
	})
	if err != nil {
		return "", markdown.Options{}, fmt.Errorf("failed to index rustdoc json: %w", err)
	}

	root := crate.RootItem()
	if root == nil {
		return "", markdown.Options{}, errors.New("rustdoc json has no root item")
	}

	opts := markdown.Options{
		ShiftHeadings: r.cfg.ShiftHeadings,
		Resolver: resolve.Scoped{
			Resolver: resolve.New(g, resolve.Options{Logger: r.logger}),
			From:     g.Root(),
		},
	}
	return root.DocString(), opts, nil
}

var (
	summaryStyle = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

// report flushes the package diagnostics in selection order, prints the
// diffs of stale sections and fails when any error was recorded.
func (a *app) report(runs []*packageRun) error {
	color := diff.ColorEnabled(a.opts.color, a.stdout)
	styles := diff.NewStyles(color)

	var warnings, errs int
	for _, r := range runs {
		r.sink.Flush(r.logger)
		for _, d := range r.diffs {
			if err := diff.Write(a.stdout, d, styles); err != nil {
				return err
			}
		}
		warnings += r.sink.Warnings()
		errs += r.sink.Errors()
	}
	a.logger.Debug("all packages done", logging.FieldWarnings, warnings, logging.FieldErrors, errs)

	if warnings+errs == 0 {
		return nil
	}

	summary := fmt.Sprintf("finished with %d warning(s) and %d error(s)", warnings, errs)
	if color {
		style := summaryStyle
		if errs > 0 {
			style = errorStyle
		}
		summary = style.Render(summary)
	}
	fmt.Fprintln(a.stderr, summary)

	if errs > 0 {
		return errReported
	}
	return nil
}

// printConfig writes the merged config of every package as YAML.
func (a *app) printConfig(runs []*packageRun) error {
	out := make(map[string]*config.Config, len(runs))
	for _, r := range runs {
		out[r.pkg.Name] = r.cfg
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
