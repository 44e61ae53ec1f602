// internal/config/loader.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigBytes caps the config file size. A real config is a few KB;
// anything near the cap is the wrong file.
const maxConfigBytes = 1024 * 1024

// LoadWithFile builds the configuration in three layers, later layers
// winning: built-in defaults, then the YAML file, then environment
// variables.
//
// configPath selects the YAML file; empty means
// ~/.config/mnemod/config.yaml. A missing file is fine and leaves the
// defaults in place, but a present file must sit in ~/.config/mnemod/ or
// /etc/mnemod/, be private (0600 or 0400), and stay under 1MB, because it
// can carry database credentials.
//
// Environment names map section-first: VECTOR_PROVIDER sets
// vector.provider, GRAPH_NEO4J_URI sets graph.neo4j.uri.
func LoadWithFile(configPath string) (*Config, error) {
	if configPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	k := koanf.New(".")
	if _, err := os.Stat(configPath); err == nil {
		if err := loadYAMLFile(k, configPath); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mnemod", "config.yaml"), nil
}

// loadYAMLFile reads path into k. Permission and size checks run against
// the already-open descriptor, not a prior stat, so the checked file is the
// file that gets parsed.
func loadYAMLFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	// Group or world access would expose credentials. No permission bits to
	// check on Windows.
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions %04o, want 0600 or 0400", perm)
		}
	}
	if info.Size() > maxConfigBytes {
		return fmt.Errorf("config file too large: %d bytes, limit %d", info.Size(), maxConfigBytes)
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// validateConfigPath refuses paths outside the supported config
// directories. Symlinks resolve first, so a link inside an allowed
// directory cannot smuggle in a file from outside it.
func validateConfigPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	// On EvalSymlinks failure the file does not exist yet; judge the
	// literal path.

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}

	allowed := []string{
		filepath.Join(home, ".config", "mnemod"),
		"/etc/mnemod",
	}
	for _, dir := range allowed {
		if strings.HasPrefix(abs, dir+string(filepath.Separator)) || abs == dir {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/mnemod/ or /etc/mnemod/")
}

// envSubsections lists the koanf paths that sit two levels deep. Their env
// prefixes are matched before the generic first-underscore split, which
// would otherwise turn GRAPH_NEO4J_URI into graph.neo4j_uri.
var envSubsections = map[string]string{
	"graph_neo4j":    "graph.neo4j",
	"vector_chromem": "vector.chromem",
	"vector_qdrant":  "vector.qdrant",
	"storage_s3":     "storage.s3",
}

// envTransformer maps an environment variable name to its koanf key path:
//
//	VECTOR_PROVIDER            -> vector.provider
//	DELETION_BATCH_CONCURRENCY -> deletion.batch_concurrency
//	GRAPH_NEO4J_URI            -> graph.neo4j.uri
//	STORAGE_S3_BUCKET          -> storage.s3.bucket
func envTransformer(s string) string {
	lower := strings.ToLower(s)
	for prefix, path := range envSubsections {
		if rest, ok := strings.CutPrefix(lower, prefix+"_"); ok {
			return path + "." + rest
		}
	}
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}
