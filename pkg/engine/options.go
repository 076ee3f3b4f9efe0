package engine

import (
	"log/slog"
	"time"

	"github.com/syntrixbase/mongofixture/internal/config"
)

// Options controls how Start locates and runs mongod.
type Options struct {
	// PackageRoot and SearchPattern locate the binary directory by glob.
	PackageRoot   string
	SearchPattern string
	// BinaryPath skips discovery when set.
	BinaryPath string

	// ReplicaSet starts mongod as a single-node replica set. Transactions
	// and change streams only work inside a replica set.
	ReplicaSet     bool
	ReplicaSetName string

	StartupTimeout time.Duration
	StopTimeout    time.Duration

	// DataDirParent holds the temporary data directory; empty means os.TempDir.
	DataDirParent string
	// LogDir receives mongod output in a rotated file; empty discards it.
	LogDir   string
	Rotation config.RotationConfig

	ExtraArgs []string
	Logger    *slog.Logger
}

// NewOptions builds launch options from configuration. Replica-set mode
// is always on.
func NewOptions(cfg *config.Config, searchPattern string) Options {
	return Options{
		PackageRoot:    cfg.Engine.PackageRoot,
		SearchPattern:  searchPattern,
		BinaryPath:     cfg.Engine.Binary,
		ReplicaSet:     true,
		ReplicaSetName: cfg.Engine.ReplicaSetName,
		StartupTimeout: cfg.Engine.StartupTimeout,
		StopTimeout:    cfg.Engine.StopTimeout,
		DataDirParent:  cfg.Engine.DataDirParent,
		LogDir:         cfg.Logging.Dir,
		Rotation:       cfg.Logging.Rotation,
	}
}

func (o *Options) applyDefaults() {
	defaults := config.DefaultEngineConfig()
	if o.ReplicaSetName == "" {
		o.ReplicaSetName = defaults.ReplicaSetName
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = defaults.StartupTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaults.StopTimeout
	}
}
