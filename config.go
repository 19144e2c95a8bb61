package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	defaultComponent     = "reolink"
	defaultForkRemote    = "fork"
	defaultRemote        = "origin"
	defaultBranch        = "main"
	defaultInfoFile      = "upstream.yaml"
	defaultCommitMessage = "Sync {{.Component}} with upstream {{.Tag}}"
)

// UpstreamConfig locates the upstream source repository
type UpstreamConfig struct {
	Path           string `yaml:"path"`
	ComponentPath  string `yaml:"component_path"`
	TrackingBranch string `yaml:"tracking_branch"`
	ForkRemote     string `yaml:"fork_remote"`
}

// DownstreamConfig locates the downstream distribution repository
type DownstreamConfig struct {
	Path          string `yaml:"path"`
	ComponentPath string `yaml:"component_path"`
	Remote        string `yaml:"remote"`
	Branch        string `yaml:"branch"`
	InfoFile      string `yaml:"info_file"`
}

// Config is built once at startup and passed by value to everything that
// needs it.
type Config struct {
	Component     string           `yaml:"component"`
	Upstream      UpstreamConfig   `yaml:"upstream"`
	Downstream    DownstreamConfig `yaml:"downstream"`
	CommitMessage string           `yaml:"commit_message"`
	TagConstraint string           `yaml:"tag_constraint"`
	Prepare       [][]string       `yaml:"prepare"`
	LockDir       string           `yaml:"lock_dir"`

	ForceUpdate bool `yaml:"-"`
	NoColor     bool `yaml:"-"`
	Verbose     bool `yaml:"-"`
}

// configFlags holds the values of the command line flags before they are
// layered over the config file.
type configFlags struct {
	configFile string
	cfg        Config
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&f.cfg.Component, "component", "", "component name (default \""+defaultComponent+"\")")
	fs.StringVar(&f.cfg.Upstream.Path, "upstream", "", "path to the upstream working tree")
	fs.StringVar(&f.cfg.Upstream.ComponentPath, "upstream-component-path", "", "component directory inside the upstream tree (default \"homeassistant/components/<component>\")")
	fs.StringVar(&f.cfg.Upstream.TrackingBranch, "tracking-branch", "", "upstream branch rebased onto the latest tag (default \"hacs/<component>\")")
	fs.StringVar(&f.cfg.Upstream.ForkRemote, "fork-remote", "", "remote the tracking branch is force-pushed to (default \""+defaultForkRemote+"\")")
	fs.StringVar(&f.cfg.Downstream.Path, "downstream", "", "path to the downstream working tree")
	fs.StringVar(&f.cfg.Downstream.ComponentPath, "downstream-component-path", "", "component directory inside the downstream tree (default \"custom_components/<component>\")")
	fs.StringVar(&f.cfg.Downstream.Remote, "downstream-remote", "", "downstream remote (default \""+defaultRemote+"\")")
	fs.StringVar(&f.cfg.Downstream.Branch, "downstream-branch", "", "downstream branch (default \""+defaultBranch+"\")")
	fs.BoolVar(&f.cfg.ForceUpdate, "force-update", false, "commit and push even when nothing changed")
	fs.BoolVar(&f.cfg.NoColor, "no-color", false, "disable colored output")
	fs.BoolVarP(&f.cfg.Verbose, "verbose", "v", false, "verbose output")
}

// load builds the final config: defaults, then the config file, then any flag
// that was set on the command line.
func (f *configFlags) load(fs *pflag.FlagSet) (Config, error) {
	var cfg Config
	if f.configFile != "" {
		fileCfg, err := readConfigFile(f.configFile)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("component", &cfg.Component, f.cfg.Component)
	set("upstream", &cfg.Upstream.Path, f.cfg.Upstream.Path)
	set("upstream-component-path", &cfg.Upstream.ComponentPath, f.cfg.Upstream.ComponentPath)
	set("tracking-branch", &cfg.Upstream.TrackingBranch, f.cfg.Upstream.TrackingBranch)
	set("fork-remote", &cfg.Upstream.ForkRemote, f.cfg.Upstream.ForkRemote)
	set("downstream", &cfg.Downstream.Path, f.cfg.Downstream.Path)
	set("downstream-component-path", &cfg.Downstream.ComponentPath, f.cfg.Downstream.ComponentPath)
	set("downstream-remote", &cfg.Downstream.Remote, f.cfg.Downstream.Remote)
	set("downstream-branch", &cfg.Downstream.Branch, f.cfg.Downstream.Branch)
	cfg.ForceUpdate = f.cfg.ForceUpdate
	cfg.NoColor = f.cfg.NoColor
	cfg.Verbose = f.cfg.Verbose

	cfg = cfg.withDefaults()
	if err := cfg.expandPaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readConfigFile reads a YAML config file
func readConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// withDefaults fills every unset field, deriving names from the component
func (c Config) withDefaults() Config {
	if c.Component == "" {
		c.Component = defaultComponent
	}
	if c.Upstream.ComponentPath == "" {
		c.Upstream.ComponentPath = filepath.Join("homeassistant", "components", c.Component)
	}
	if c.Upstream.TrackingBranch == "" {
		c.Upstream.TrackingBranch = "hacs/" + c.Component
	}
	if c.Upstream.ForkRemote == "" {
		c.Upstream.ForkRemote = defaultForkRemote
	}
	if c.Downstream.ComponentPath == "" {
		c.Downstream.ComponentPath = filepath.Join("custom_components", c.Component)
	}
	if c.Downstream.Remote == "" {
		c.Downstream.Remote = defaultRemote
	}
	if c.Downstream.Branch == "" {
		c.Downstream.Branch = defaultBranch
	}
	if c.Downstream.InfoFile == "" {
		c.Downstream.InfoFile = defaultInfoFile
	}
	if c.CommitMessage == "" {
		c.CommitMessage = defaultCommitMessage
	}
	if c.LockDir == "" {
		c.LockDir = os.TempDir()
	}
	return c
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Upstream.Path, &c.Downstream.Path, &c.LockDir} {
		if *p == "" {
			continue
		}
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks that the config can drive a sync run
func (c Config) Validate() error {
	if c.Component == "" {
		return fmt.Errorf("component name is required")
	}
	if c.Upstream.Path == "" {
		return fmt.Errorf("upstream path is required")
	}
	if c.Downstream.Path == "" {
		return fmt.Errorf("downstream path is required")
	}
	if c.Upstream.Path == c.Downstream.Path {
		return fmt.Errorf("upstream and downstream must be different working trees")
	}
	for _, p := range []string{c.Upstream.ComponentPath, c.Downstream.ComponentPath, c.Downstream.InfoFile} {
		if filepath.IsAbs(p) || !filepath.IsLocal(p) || filepath.Clean(p) == "." {
			return fmt.Errorf("%q must be a relative path inside the working tree", p)
		}
	}
	if _, err := c.commitMessage("v0.0.0", 0); err != nil {
		return err
	}
	if c.TagConstraint != "" {
		if _, err := semver.NewConstraint(c.TagConstraint); err != nil {
			return fmt.Errorf("invalid tag constraint %q: %w", c.TagConstraint, err)
		}
	}
	for i, argv := range c.Prepare {
		if len(argv) == 0 || argv[0] == "" {
			return fmt.Errorf("prepare command %d is empty", i+1)
		}
	}
	return nil
}

func (c Config) commitTemplate() (*template.Template, error) {
	tmpl, err := template.New("commit").Option("missingkey=error").Parse(c.CommitMessage)
	if err != nil {
		return nil, fmt.Errorf("invalid commit message template: %w", err)
	}
	return tmpl, nil
}

// commitMessage renders the commit message for tag
func (c Config) commitMessage(tag string, changes int) (string, error) {
	tmpl, err := c.commitTemplate()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	data := struct {
		Component string
		Tag       string
		Changes   int
	}{c.Component, tag, changes}
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render commit message: %w", err)
	}
	return b.String(), nil
}

func (c Config) upstreamComponentDir() string {
	return filepath.Join(c.Upstream.Path, c.Upstream.ComponentPath)
}

func (c Config) downstreamComponentDir() string {
	return filepath.Join(c.Downstream.Path, c.Downstream.ComponentPath)
}

func (c Config) infoFilePath() string {
	return filepath.Join(c.Downstream.Path, c.Downstream.InfoFile)
}
