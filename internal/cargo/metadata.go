// Package cargo runs cargo to discover workspace packages and to generate
// rustdoc JSON for a package's library target.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/jcdickinson/insertdocs/internal/itemgraph"
	"github.com/jcdickinson/insertdocs/internal/logging"
)

var (
	ErrNoLibTarget     = errors.New("no selected package contains a lib target")
	ErrPackageNotFound = errors.New("package not found")
	ErrUnknownFeature  = errors.New("feature not found")
	ErrMissingName     = errors.New("Cargo.toml has no `package.name` field")
	ErrMalformedOutput = errors.New("malformed cargo output")
	ErrCommandFailed   = errors.New("cargo command failed")
)

const defaultManifestName = "Cargo.toml"

var libKinds = []string{"lib", "rlib", "dylib", "staticlib", "cdylib", "proc-macro"}

// Target is a build target of a package.
type Target struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
	SrcPath    string   `json:"src_path"`
}

// IsLib reports whether rustdoc --lib documents this target.
func (t Target) IsLib() bool {
	for _, k := range t.Kind {
		if slices.Contains(libKinds, k) {
			return true
		}
	}
	return false
}

// Package is one entry of `cargo metadata` packages.
type Package struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	ManifestPath string              `json:"manifest_path"`
	Targets      []Target            `json:"targets"`
	Features     map[string][]string `json:"features"`
}

// Lib returns the library target.
func (p *Package) Lib() (*Target, bool) {
	for i := range p.Targets {
		if p.Targets[i].IsLib() {
			return &p.Targets[i], true
		}
	}
	return nil, false
}

// Dir is the package root directory.
func (p *Package) Dir() string {
	return filepath.Dir(p.ManifestPath)
}

// EnabledFeatures filters features to the ones p declares.
func (p *Package) EnabledFeatures(features []string) []string {
	var out []string
	for _, f := range features {
		if _, ok := p.Features[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Metadata is the subset of `cargo metadata --format-version 1` output
// insert-docs uses.
type Metadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
	WorkspaceRoot    string    `json:"workspace_root"`
	TargetDirectory  string    `json:"target_directory"`
}

// ParseMetadata decodes cargo metadata JSON.
func ParseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if md.WorkspaceRoot == "" {
		return nil, fmt.Errorf("%w: missing workspace_root", ErrMalformedOutput)
	}
	return &md, nil
}

// WorkspaceManifest is the Cargo.toml of the workspace root.
func (m *Metadata) WorkspaceManifest() string {
	return filepath.Join(m.WorkspaceRoot, defaultManifestName)
}

// Package returns the package with the given id.
func (m *Metadata) Package(id string) (*Package, bool) {
	for i := range m.Packages {
		if m.Packages[i].ID == id {
			return &m.Packages[i], true
		}
	}
	return nil, false
}

// IsMember reports whether id is a workspace member.
func (m *Metadata) IsMember(id string) bool {
	return slices.Contains(m.WorkspaceMembers, id)
}

// Members returns the workspace member packages in member order.
func (m *Metadata) Members() []*Package {
	out := make([]*Package, 0, len(m.WorkspaceMembers))
	for _, id := range m.WorkspaceMembers {
		if p, ok := m.Package(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *Metadata) memberByName(name string) (*Package, error) {
	for _, p := range m.Members() {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no package named %q found", ErrPackageNotFound, name)
}

// DocRoots maps every known lib crate to its package so links into
// dependencies point at the resolved version on docs.rs.
func (m *Metadata) DocRoots(linkToLatest bool) itemgraph.DocRoots {
	roots := itemgraph.DocRoots{
		Packages:     map[string]itemgraph.Package{},
		LinkToLatest: linkToLatest,
	}
	for i := range m.Packages {
		p := &m.Packages[i]
		crate := strings.ReplaceAll(p.Name, "-", "_")
		if lib, ok := p.Lib(); ok {
			crate = strings.ReplaceAll(lib.Name, "-", "_")
		}
		roots.Packages[crate] = itemgraph.Package{
			Name:      p.Name,
			Version:   p.Version,
			Workspace: m.IsMember(p.ID),
		}
	}
	return roots
}

// Selection chooses the packages to process.
type Selection struct {
	// Packages selects members by name.
	Packages []string
	// Workspace selects every member.
	Workspace bool
	// Exclude removes members by name.
	Exclude []string
	// ManifestPath is used when nothing else is selected. A package manifest
	// selects that package, a virtual manifest every member.
	ManifestPath string
}

// Explicit reports whether packages were named or the workspace was requested.
func (s Selection) Explicit() bool {
	return s.Workspace || len(s.Packages) > 0
}

// Select resolves sel to workspace members that have a lib target. Members
// without one are skipped; selecting none with a lib is ErrNoLibTarget.
func (m *Metadata) Select(sel Selection) ([]*Package, error) {
	var names []string
	switch {
	case sel.Workspace:
		for _, p := range m.Members() {
			names = append(names, p.Name)
		}
	case len(sel.Packages) > 0:
		names = append(names, sel.Packages...)
	default:
		manifest := sel.ManifestPath
		if manifest == "" {
			manifest = m.WorkspaceManifest()
		}
		name, err := ManifestPackageName(manifest)
		switch {
		case errors.Is(err, ErrMissingName):
			for _, p := range m.Members() {
				names = append(names, p.Name)
			}
		case err != nil:
			return nil, fmt.Errorf("reading Cargo.toml to figure out package name: %w", err)
		default:
			names = []string{name}
		}
	}

	var out []*Package
	seen := map[string]bool{}
	for _, name := range names {
		if slices.Contains(sel.Exclude, name) || seen[name] {
			continue
		}
		seen[name] = true

		p, err := m.memberByName(name)
		if err != nil {
			return nil, err
		}
		if _, ok := p.Lib(); ok {
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoLibTarget
	}
	return out, nil
}

// ValidateFeatures fails when a requested feature exists in none of pkgs.
func ValidateFeatures(pkgs []*Package, features []string) error {
	var missing []string
	for _, f := range features {
		found := false
		for _, p := range pkgs {
			if _, ok := p.Features[f]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	what := "contain these features"
	if len(missing) == 1 {
		what = "contains this feature"
	}
	return fmt.Errorf("%w: none of the selected packages %s: %s", ErrUnknownFeature, what, strings.Join(missing, ", "))
}

// ManifestPackageName reads `package.name` from a Cargo.toml.
func ManifestPackageName(manifest string) (string, error) {
	data, err := os.ReadFile(manifest)
	if err != nil {
		return "", fmt.Errorf("reading manifest: %w", err)
	}

	var doc struct {
		Package struct {
			Name string `toml:"name"`
		} `toml:"package"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing manifest: %w", err)
	}
	if doc.Package.Name == "" {
		return "", ErrMissingName
	}
	return doc.Package.Name, nil
}

// Runner invokes cargo.
type Runner struct {
	// Cargo is the cargo executable, "cargo" when empty.
	Cargo string
	// Stderr receives cargo's diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	Logger *log.Logger
}

func (r *Runner) command(ctx context.Context, args ...string) *exec.Cmd {
	bin := r.Cargo
	if bin == "" {
		bin = "cargo"
	}
	logger := r.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger.Debug("running cargo", logging.FieldCommand, bin+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// MetadataOptions tune `cargo metadata`.
type MetadataOptions struct {
	ManifestPath string
	// NoDeps skips dependency resolution. Dependency versions are then
	// unknown and links into dependencies use `latest`.
	NoDeps bool
}

// Metadata runs `cargo metadata --format-version 1`.
func (r *Runner) Metadata(ctx context.Context, opts MetadataOptions) (*Metadata, error) {
	args := []string{"metadata", "--format-version", "1"}
	if opts.NoDeps {
		args = append(args, "--no-deps")
	}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}

	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: cargo metadata: %v\n%s", ErrCommandFailed, err, strings.TrimSpace(stderr.String()))
	}

	md, err := ParseMetadata(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return md, nil
}
