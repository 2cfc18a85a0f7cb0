// Package config loads and validates the YAML rule configuration: the named
// sources and targets and the ordered file groups that decide what happens to
// every entry below a source.
package config

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-sortbackup/pkg/artifact"
	"github.com/paulschiretz/pgl-sortbackup/pkg/plog"
	"github.com/paulschiretz/pgl-sortbackup/pkg/rules"
	"github.com/paulschiretz/pgl-sortbackup/pkg/util"
)

// DefaultConfigFileName is looked up in the working directory when no path is given.
const DefaultConfigFileName = "config.yaml"

// Source is a tree to classify.
type Source struct {
	Path string `yaml:"path"`
	// IgnorePaths are relative to Path. A matching entry is recorded as
	// ignored and never descended into.
	IgnorePaths []string `yaml:"ignore_paths"`
	Disabled    bool     `yaml:"disabled"`
}

// Ignores reports whether rel is listed in IgnorePaths.
func (s Source) Ignores(rel string) bool {
	return slices.Contains(s.IgnorePaths, rel)
}

// Settings are display and storage options.
type Settings struct {
	FileSizeStyle    FileSizeStyle  `yaml:"file_size_style"`
	IndexCompression artifact.Codec `yaml:"index_compression"`
}

// Hooks are shell commands run around a run. A failing before_run command
// aborts the run; after_run failures are only logged.
type Hooks struct {
	BeforeRun []string `yaml:"before_run"`
	AfterRun  []string `yaml:"after_run"`
}

// FileGroups is the ordered list of file groups. YAML order is kept.
type FileGroups []rules.FileGroup

// UnmarshalYAML implements the yaml.Unmarshaler interface for FileGroups.
func (g *FileGroups) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: file_groups must be a mapping of group name to group", node.Line)
	}
	groups := make(FileGroups, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return errors.Errorf("line %d: duplicate file group %q", node.Content[i].Line, name)
		}
		seen[name] = true

		var fg rules.FileGroup
		if err := node.Content[i+1].Decode(&fg); err != nil {
			return errors.Errorf("file group %q: %w", name, err)
		}
		fg.Name = name
		groups = append(groups, fg)
	}
	*g = groups
	return nil
}

// Config is the whole rule configuration. It is read-only after Load.
type Config struct {
	FileGroups FileGroups        `yaml:"file_groups"`
	Sources    map[string]Source `yaml:"sources"`
	Targets    map[string]string `yaml:"targets"`
	Settings   Settings          `yaml:"settings"`
	Hooks      Hooks             `yaml:"hooks"`
}

// Load reads, normalizes and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("cannot open config %s: %w", path, err)
	}
	defer f.Close()

	plog.Info("Loading configuration", "path", path)
	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Errorf("cannot parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration from r. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config is empty")
		}
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize applies defaults, expands "~" and converts forward-slash
// literals to host paths.
func (c *Config) normalize() error {
	if c.Settings.FileSizeStyle == "" {
		c.Settings.FileSizeStyle = Binary
	}
	if c.Settings.IndexCompression == "" {
		c.Settings.IndexCompression = artifact.Gzip
	}

	hostPath := func(what, p string) (string, error) {
		if strings.TrimSpace(p) == "" {
			return "", errors.Errorf("%s: path cannot be empty", what)
		}
		expanded, err := util.ExpandPath(util.DenormalizePath(p))
		if err != nil {
			return "", errors.Errorf("%s: %w", what, err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return "", errors.Errorf("%s: could not resolve %s: %w", what, p, err)
		}
		return abs, nil
	}

	for name, src := range c.Sources {
		p, err := hostPath("source '"+name+"'", src.Path)
		if err != nil {
			return err
		}
		src.Path = p
		for i, ig := range src.IgnorePaths {
			src.IgnorePaths[i] = filepath.Clean(util.DenormalizePath(strings.TrimSuffix(ig, "/")))
		}
		c.Sources[name] = src
	}
	for name, target := range c.Targets {
		p, err := hostPath("target '"+name+"'", target)
		if err != nil {
			return err
		}
		c.Targets[name] = p
	}
	return nil
}

// Validate checks cross references. Unknown source names in a group's source
// filter only warn, they may refer to a source that was removed on purpose.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured")
	}
	if len(c.Targets) == 0 {
		return errors.New("no targets configured")
	}
	for name, src := range c.Sources {
		if src.Path == "" {
			return errors.Errorf("source '%s': path cannot be empty", name)
		}
		for _, ig := range src.IgnorePaths {
			if filepath.IsAbs(ig) || ig == ".." || strings.HasPrefix(ig, ".."+string(filepath.Separator)) {
				return errors.Errorf("source '%s': ignore path %q must be relative to the source", name, ig)
			}
		}
	}

	for _, g := range c.FileGroups {
		if g.Rule.UsesTarget() {
			if _, ok := c.Targets[g.Rule.Target]; !ok {
				return errors.Errorf("file group '%s': unknown target '%s'", g.Name, g.Rule.Target)
			}
		}
		for _, src := range g.Sources.Names {
			if _, ok := c.Sources[src]; !ok {
				plog.Warn("File group refers to an unknown source", "group", g.Name, "source", src)
			}
		}
	}
	return nil
}

// Target returns the base path of a target.
func (c *Config) Target(name string) (string, error) {
	p, ok := c.Targets[name]
	if !ok {
		return "", errors.Errorf("unknown target: '%s'", name)
	}
	return p, nil
}

// SourceNames returns all source names, sorted.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TargetNames returns all target names, sorted.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatBytes renders n in the configured size style.
func (c *Config) FormatBytes(n uint64) string {
	return c.Settings.FileSizeStyle.Format(n)
}

// LogSummary logs the effective configuration at info level.
func (c *Config) LogSummary() {
	enabled := 0
	for _, s := range c.Sources {
		if !s.Disabled {
			enabled++
		}
	}
	plog.Info("Configuration",
		"sources", len(c.Sources),
		"enabled_sources", enabled,
		"targets", len(c.Targets),
		"file_groups", len(c.FileGroups),
		"file_size_style", c.Settings.FileSizeStyle,
		"index_compression", c.Settings.IndexCompression)
	for _, g := range c.FileGroups {
		plog.Debug("File group", "name", g.Name, "sources", g.Sources, "filter", g.Filter, "rule", g.Rule)
	}
}
