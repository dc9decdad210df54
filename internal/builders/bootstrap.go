package builders

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/config"
	"github.com/aristath/bob/internal/process"
)

// Bootstrap fills reg from cfg: the archive collector, one copy builder per
// configured extension and one command builder per configured tool. Tool
// subprocesses are tracked by pm and killed when ctx is cancelled.
func Bootstrap(ctx context.Context, reg *builder.Registry, cfg *config.BobConfig, pm *process.ProcessManager, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := reg.Register(ArchiveDescriptor, NewArchive); err != nil {
		return fmt.Errorf("registering archive builder: %w", err)
	}

	for _, ext := range sortedKeys(cfg.Copy) {
		desc := builder.Descriptor{
			Name:   "copy",
			OutExt: cfg.Copy[ext],
			InExts: []string{ext},
		}
		if err := reg.Register(desc, NewCopy); err != nil {
			return fmt.Errorf("registering copy builder for %s: %w", ext, err)
		}
	}

	runner := process.NewRunner(pm, process.NewCircuitBreakerRegistry(logger), process.DefaultRetryConfig())
	for _, name := range sortedKeys(cfg.Commands) {
		cmd := cfg.Commands[name]
		if cmd.Tool == "" {
			return fmt.Errorf("command builder %q has no tool", name)
		}
		if cmd.OutExt == "" {
			return fmt.Errorf("command builder %q has no output extension", name)
		}
		desc := builder.Descriptor{
			Name:        name,
			OutExt:      cmd.OutExt,
			InExts:      cmd.InExts,
			CreateOrder: cmd.CreateOrder,
		}
		if err := reg.Register(desc, NewCommandFactory(ctx, cmd, runner)); err != nil {
			return fmt.Errorf("registering command builder: %w", err)
		}
	}

	logger.Debug("builders registered", "extensions", reg.Extensions())
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
