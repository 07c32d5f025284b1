package cargo

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcdickinson/insertdocs/internal/cas"
	"github.com/jcdickinson/insertdocs/internal/docs"
	"github.com/jcdickinson/insertdocs/internal/logging"
)

// RustdocOptions are the cargo and rustdoc flags of a rustdoc JSON build.
type RustdocOptions struct {
	Toolchain            string
	ManifestPath         string
	Target               string
	TargetDir            string
	Features             []string
	AllFeatures          bool
	NoDefaultFeatures    bool
	DocumentPrivateItems bool
	Quiet                bool
}

// RustdocArgs returns the cargo arguments that document pkg's lib as JSON.
func RustdocArgs(pkg *Package, opts RustdocOptions) []string {
	var args []string
	if opts.Toolchain != "" {
		args = append(args, "+"+opts.Toolchain)
	}
	args = append(args, "rustdoc", "--lib")
	if opts.Quiet {
		args = append(args, "--quiet")
	}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}
	if opts.Target != "" {
		args = append(args, "--target", opts.Target)
	}
	if opts.TargetDir != "" {
		args = append(args, "--target-dir", opts.TargetDir)
	}
	if opts.AllFeatures {
		args = append(args, "--all-features")
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	for _, f := range pkg.EnabledFeatures(opts.Features) {
		args = append(args, "--features", f)
	}
	args = append(args, "--package", pkg.ID, "--", "-Z", "unstable-options", "--output-format", "json")
	if opts.DocumentPrivateItems {
		args = append(args, "--document-private-items")
	}
	return args
}

// JSONPath is where rustdoc writes the JSON of pkg's lib target.
func (m *Metadata) JSONPath(pkg *Package, opts RustdocOptions) (string, error) {
	lib, ok := pkg.Lib()
	if !ok {
		return "", fmt.Errorf("%s: %w", pkg.Name, ErrNoLibTarget)
	}

	dir := m.TargetDirectory
	if opts.TargetDir != "" {
		dir = opts.TargetDir
	}
	if opts.Target != "" {
		dir = filepath.Join(dir, opts.Target)
	}
	return filepath.Join(dir, "doc", strings.ReplaceAll(lib.Name, "-", "_")+".json"), nil
}

// Rustdoc runs cargo rustdoc for pkg and returns the generated JSON.
func (r *Runner) Rustdoc(ctx context.Context, md *Metadata, pkg *Package, opts RustdocOptions) ([]byte, error) {
	path, err := md.JSONPath(pkg, opts)
	if err != nil {
		return nil, err
	}

	cmd := r.command(ctx, RustdocArgs(pkg, opts)...)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: cargo rustdoc: %v", ErrCommandFailed, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated rustdoc json: %w", err)
	}
	return data, nil
}

// Fingerprint keys the cache entry of a rustdoc build. It covers the flags,
// the package manifest, the workspace lock file and every Rust source below
// the package directory outside the target directory.
func (m *Metadata) Fingerprint(pkg *Package, opts RustdocOptions) (string, error) {
	files := []string{pkg.ManifestPath}
	if lock := filepath.Join(m.WorkspaceRoot, "Cargo.lock"); fileExists(lock) {
		files = append(files, lock)
	}

	targetDir := m.TargetDirectory
	if opts.TargetDir != "" {
		targetDir = opts.TargetDir
	}

	err := filepath.WalkDir(pkg.Dir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == targetDir || (path != pkg.Dir() && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".rs") || strings.HasSuffix(path, ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking package sources: %w", err)
	}

	sources, err := cas.HashFiles(files)
	if err != nil {
		return "", err
	}

	args := RustdocArgs(pkg, opts)
	return cas.Key(append([]string{pkg.ID, sources}, args...)...), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Source loads rustdoc JSON. An explicit file wins, then a cache hit, then a
// cargo run whose output is cached. A nil Store disables caching.
type Source struct {
	Runner *Runner
	Store  *cas.Store
	// File is a pre-generated .json or .json.zst file.
	File string
}

// Load returns the parsed rustdoc description of pkg.
func (d *Source) Load(ctx context.Context, md *Metadata, pkg *Package, opts RustdocOptions) (*docs.RustdocCrate, error) {
	if d.File != "" {
		return docs.Load(d.File)
	}

	logger := logging.FromContext(ctx).With(logging.FieldPackage, pkg.Name)

	var key string
	if d.Store != nil {
		k, err := md.Fingerprint(pkg, opts)
		if err != nil {
			logger.Debug("skipping rustdoc cache", logging.FieldError, err)
		} else {
			key = k
			data, ok, err := d.Store.Get(key)
			if err != nil {
				logger.Debug("rustdoc cache read failed", logging.FieldError, err)
			}
			if ok {
				crate, err := docs.Parse(data)
				if err == nil {
					logger.Debug("using cached rustdoc json")
					return crate, nil
				}
				logger.Debug("discarding cached rustdoc json", logging.FieldError, err)
			}
		}
	}

	runner := d.Runner
	if runner == nil {
		runner = &Runner{}
	}
	data, err := runner.Rustdoc(ctx, md, pkg, opts)
	if err != nil {
		return nil, err
	}

	crate, err := docs.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated rustdoc json: %w", err)
	}

	if key != "" {
		if err := d.Store.Put(ctx, key, data); err != nil {
			logger.Debug("rustdoc cache write failed", logging.FieldError, err)
		}
	}
	return crate, nil
}

// LocateManifest finds the nearest Cargo.toml at or above dir.
func LocateManifest(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve dir: %w", err)
	}
	for {
		p := filepath.Join(abs, defaultManifestName)
		if fileExists(p) {
			return p, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("could not find %s in %s or any parent directory: %w", defaultManifestName, dir, fs.ErrNotExist)
		}
		abs = parent
	}
}
