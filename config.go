package packgraph

import (
	"fmt"
	"os"

	neo4jstore "github.com/zero-day-ai/packgraph/graph/neo4j"
	"github.com/zero-day-ai/packgraph/walk"
)

// Store backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendNeo4j  = "neo4j"
)

// Environment variables read by ConfigFromEnv.
const (
	// EnvBackend selects the graph store backend.
	EnvBackend = "DEMISTO_SDK_GRAPH_BACKEND"

	// EnvRedisURL configures the distributed update lock. Empty disables
	// locking.
	EnvRedisURL = "REDIS_URL"

	// EnvMaxCPUCores caps the walker's parallelism.
	EnvMaxCPUCores = walk.EnvMaxCPUCores

	// EnvMaxThreads is the deprecated alias of EnvMaxCPUCores, honored
	// when the canonical variable is unset.
	EnvMaxThreads = walk.EnvMaxThreads
)

// Config carries everything the engine needs to build and query a content
// graph.
type Config struct {
	// Backend is the graph store backend, BackendMemory or BackendNeo4j.
	Backend string

	// Neo4j configures the neo4j backend. Ignored for the memory backend.
	Neo4j neo4jstore.Options

	// RedisURL enables the distributed update lock when non-empty.
	RedisURL string

	// RepoRoot is the content repository to walk.
	RepoRoot string

	// OutputDir receives graph exports. Empty disables exporting.
	OutputDir string

	// Workers bounds the walker's parser pool. Zero means one worker per
	// CPU.
	Workers int

	// ValidationConfig is the path of the validation configuration file.
	ValidationConfig string
}

// ConfigFromEnv builds a Config from the environment. Unset variables fall
// back to the memory backend with per-CPU parallelism.
func ConfigFromEnv() Config {
	cfg := Config{
		Backend:  os.Getenv(EnvBackend),
		Neo4j:    neo4jstore.OptionsFromEnv(),
		RedisURL: os.Getenv(EnvRedisURL),
		Workers:  walk.WorkersFromEnv(),
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	return cfg
}

// Validate checks the configuration's field contract.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendNeo4j:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}
