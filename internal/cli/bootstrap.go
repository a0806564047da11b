package cli

import (
	"fmt"
	"time"

	"github.com/orchid-dev/orchid/internal/config"
	"github.com/orchid-dev/orchid/internal/logger"
	"github.com/orchid-dev/orchid/pkg/capability"
	"github.com/orchid-dev/orchid/pkg/skill"
	"github.com/orchid-dev/orchid/pkg/vfs"
)

// bootstrap holds the process-wide state shared by commands
type bootstrap struct {
	cfg      *config.Config
	log      *logger.Logger
	gateway  *capability.Gateway
	registry *skill.Registry
	fs       *vfs.FS
}

// loadBootstrap builds config, logger, gateway, registry, and the
// sealed virtual filesystem. A malformed skill fails here, before any
// run starts.
func loadBootstrap() (*bootstrap, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zlog := log.GetZerolog()

	gateway := capability.New(capability.Config{
		Logger:      zlog,
		CallTimeout: time.Duration(cfg.Capabilities.CallTimeoutSeconds) * time.Second,
	})
	if err := capability.RegisterBuiltins(gateway, capability.BuiltinConfig{
		SearchAPIKey:  cfg.Capabilities.SearchAPIKey,
		FetchMaxBytes: cfg.Capabilities.FetchMaxBytes,
	}); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to register capabilities: %w", err)
	}

	registry, err := skill.LoadAll(cfg.SkillsDir, gateway, zlog)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}

	fs := vfs.New()
	if err := registry.Populate(fs); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to populate virtual filesystem: %w", err)
	}
	fs.Seal()

	return &bootstrap{
		cfg:      cfg,
		log:      log,
		gateway:  gateway,
		registry: registry,
		fs:       fs,
	}, nil
}

// close releases bootstrap resources
func (b *bootstrap) close() {
	if b.log != nil {
		b.log.Close()
	}
}
