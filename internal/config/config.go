// Package config implements the TOML configuration (component C10). It
// is grounded on the teacher's internal/config/config.go
// struct-of-sections shape and its build_artifact_detector.go's use of
// github.com/pelletier/go-toml/v2 (the teacher otherwise parses its own
// primary config in KDL via sblinch/kdl-go; this module uses go-toml/v2 as
// its primary format instead, since this module's configuration uses TOML syntax and
// keys). The default exclusion list is adapted from the teacher's
// kdl_config.go getDefaultExclusions(), narrowed to the categories relevant
// to a name-search index rather than a source-analysis tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the parsed contents of config.toml plus the context-feature
// weights that need to be exposed as configuration
// rather than hard-coded.
type Config struct {
	IndexRoots    []string `toml:"index_roots"`
	Exclusions    []string `toml:"exclusions"`
	DemotePaths   []string `toml:"demote_paths"`
	BoostPaths    []string `toml:"boost_paths"`
	MemoryCapMB   int      `toml:"memory_cap_mb"`
	ReconcileHour int      `toml:"reconcile_hour"`

	// ContextFeatures weights.
	ScopeBoostWeight    float64 `toml:"scope_boost_weight"`
	DemotePenaltyWeight float64 `toml:"demote_penalty_weight"`
	DepthWeight         float64 `toml:"depth_weight"`
}

// Default returns the built-in configuration used when config.toml is
// absent.
func Default() *Config {
	home, _ := os.UserHomeDir()
	roots := []string{home}
	if home == "" {
		roots = []string{"."}
	}
	return &Config{
		IndexRoots:          roots,
		Exclusions:          defaultExclusions(),
		DemotePaths:         defaultDemotePaths(),
		BoostPaths:          nil,
		MemoryCapMB:         512,
		ReconcileHour:       3,
		ScopeBoostWeight:    0.10,
		DemotePenaltyWeight: 0.20,
		DepthWeight:         0.01,
	}
}

// Load reads and parses path as TOML, expanding "~" in index_roots and
// filling in defaults for any key the file omits. A missing file is not an
// error: Load returns Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.expandHome()
	return cfg, nil
}

func (c *Config) expandHome() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for i, root := range c.IndexRoots {
		if root == "~" {
			c.IndexRoots[i] = home
		} else if strings.HasPrefix(root, "~/") {
			c.IndexRoots[i] = filepath.Join(home, root[2:])
		}
	}
}

// Validate reports whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if len(c.IndexRoots) == 0 {
		return fmt.Errorf("config: index_roots must not be empty")
	}
	if c.ReconcileHour < 0 || c.ReconcileHour > 23 {
		return fmt.Errorf("config: reconcile_hour must be 0-23, got %d", c.ReconcileHour)
	}
	if c.MemoryCapMB <= 0 {
		return fmt.Errorf("config: memory_cap_mb must be positive, got %d", c.MemoryCapMB)
	}
	return nil
}

// defaultExclusions mirrors the teacher's getDefaultExclusions table,
// narrowed to directories that are never useful name-search results:
// VCS internals, dependency caches, build output, and OS/editor cruft.
func defaultExclusions() []string {
	return []string{
		".git", ".hg", ".svn",
		"node_modules", "vendor", "bower_components",
		".venv", "venv", "virtualenv", "__pycache__",
		".cargo", ".gradle", ".m2", ".ivy2",
		"dist", "build", "out", "target", "bin", "obj",
		".cache", ".npm", ".yarn",
		"*.pyc", "*.pyo", "*.class", "*.o", "*.so", "*.dylib",
		"*~", "*.swp", "*.swo", "*.tmp", "*.bak",
		".DS_Store", "Thumbs.db",
	}
}

func defaultDemotePaths() []string {
	return []string{"node_modules", "vendor", "pkg/mod", "target", "build", "dist"}
}
