package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jcdickinson/insertdocs/internal/config"
	"github.com/jcdickinson/insertdocs/internal/logging"
)

// errReported is returned once a failure has already been logged.
var errReported = errors.New("failed")

// options are the flags that are not part of the config layer.
type options struct {
	manifestPath            string
	configFile              string
	color                   string
	verbose                 bool
	quiet                   bool
	noDeps                  bool
	printConfig             bool
	printSupportedToolchain bool
}

type app struct {
	opts   options
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "cargo-insert-docs",
		Short: "Insert feature documentation into the crate docs and crate docs into the readme",
		Long: `Inserts the documented features of Cargo.toml into a section of the lib.rs
crate docs, and the crate docs as rustdoc sees them into a section of the readme.

Sections are delimited by HTML comments:

  <!-- feature documentation start -->
  <!-- feature documentation end -->

Defaults can be set in [workspace.metadata.insert-docs],
[package.metadata.insert-docs], insert-docs.toml or INSERT_DOCS_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInsert(cmd, modeBoth)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	a.bindFlags(rootCmd)

	rootCmd.AddCommand(
		newFeatureIntoCrateCmd(a),
		newCrateIntoReadmeCmd(a),
		newLinksCmd(a),
		newClearCacheCmd(a),
	)
	return rootCmd
}

func (a *app) bindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	f.Bool("check", false, "fail if a section is out of date instead of writing it")
	f.Bool("allow-dirty", false, "write files even when they have uncommitted changes")
	f.Bool("allow-staged", false, "write files even when they have staged changes")
	f.Bool("allow-missing-section", false, "warn instead of failing when a section is missing")
	f.Bool("strict", false, "treat warnings as errors")
	f.Bool("link-to-latest", false, "link to the latest version on docs.rs instead of the resolved one")

	f.StringSliceP("package", "p", nil, "package(s) to process")
	f.Bool("workspace", false, "process every workspace member")
	f.StringSlice("exclude", nil, "package(s) to skip")

	f.StringSliceP("features", "F", nil, "space or comma separated features to activate")
	f.Bool("all-features", false, "activate all features")
	f.Bool("no-default-features", false, "do not activate the default feature")
	f.StringSlice("hidden-features", nil, "features left out of the feature documentation")

	f.String("readme-path", "", "readme path relative to the package (default README.md)")
	f.String("toolchain", "", "toolchain used to generate rustdoc json (default "+config.DefaultToolchain+")")
	f.String("target", "", "target triple to document for")
	f.String("target-dir", "", "cargo target directory")
	f.Bool("document-private-items", false, "document private items")
	f.String("rustdoc-json", "", "use this rustdoc json file instead of running cargo")
	f.Int("shift-headings", 0, "levels added to every crate docs heading in the readme (default 1)")
	f.String("feature-label", "", "how features are labeled, {feature} is replaced (default \""+config.DefaultFeatureLabel+"\")")
	f.String("feature-section", "", "name of the feature documentation section (default \""+config.DefaultFeatureSection+"\")")
	f.String("crate-section", "", "name of the crate documentation section (default \""+config.DefaultCrateSection+"\")")
	f.Int("max-hops", 0, "maximum re-export hops followed while resolving a link (default 64)")
	f.IntP("jobs", "j", 0, "number of packages processed in parallel (default: number of CPUs)")
	f.Bool("no-cache", false, "always regenerate rustdoc json")

	f.StringVar(&a.opts.color, "color", "auto", "coloring: auto, always, never")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "print debug output")
	f.BoolVarP(&a.opts.quiet, "quiet", "q", false, "print only errors and silence cargo")
	f.StringVar(&a.opts.manifestPath, "manifest-path", "", "path to Cargo.toml")
	f.StringVar(&a.opts.configFile, "config", "", "config file (default: insert-docs.toml next to the workspace manifest)")
	f.BoolVar(&a.opts.noDeps, "no-deps", false, "skip dependency resolution in cargo metadata")
	f.BoolVar(&a.opts.printConfig, "print-config", false, "print the merged configuration of every selected package and exit")
	f.BoolVar(&a.opts.printSupportedToolchain, "print-supported-toolchain", false, "print the toolchain the rustdoc json format is known to work with and exit")
}

func (a *app) setup(cmd *cobra.Command) {
	a.logger = logging.New(a.stderr, logging.LevelFromFlags(a.opts.verbose, a.opts.quiet))
	logging.SetDefault(a.logger)
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.logger))
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[0], os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, argv0 string, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(cargoArgs(argv0, args))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

// cargoArgs drops the subcommand name cargo passes when the binary is run
// as `cargo insert-docs`.
func cargoArgs(argv0 string, args []string) []string {
	name := strings.TrimSuffix(filepath.Base(argv0), ".exe")
	name = strings.TrimPrefix(name, "cargo-")
	if len(args) > 0 && args[0] == name {
		return args[1:]
	}
	return args
}
