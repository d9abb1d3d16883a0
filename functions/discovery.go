package functions

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DiscoverOptions configures Discover
type DiscoverOptions struct {
	// Prefix is the mount prefix (defaults to DefaultPrefix)
	Prefix string

	// Loaders are the handler runtimes by extension (defaults to DefaultLoaders)
	Loaders []Loader

	// Logger receives one line per mounted or skipped module (optional)
	Logger *zap.Logger
}

// candidate is a source file with a recognized extension
type candidate struct {
	route  string
	source string
	loader Loader
}

// Discover walks root once and loads every recognized module into a Table.
// Hidden files and directories are ignored. A module that fails to load is
// skipped; two sources deriving the same route fail the whole discovery.
func Discover(root string, opts DiscoverOptions) (*Table, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loaders := opts.Loaders
	if loaders == nil {
		loaders = DefaultLoaders()
	}
	prefix := NormalizePrefix(opts.Prefix)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootNotFound, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	byExt := make(map[string]Loader)
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			if _, taken := byExt[ext]; !taken {
				byExt[ext] = l
			}
		}
	}

	candidates, err := collect(root, prefix, byExt, logger)
	if err != nil {
		return nil, err
	}

	sources := make(map[string][]string, len(candidates))
	for _, c := range candidates {
		sources[c.route] = append(sources[c.route], c.source)
	}
	if err := conflictError(sources); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		skipped []Skipped
	)
	for _, c := range candidates {
		if err := checkRoute(c.route); err != nil {
			skipped = append(skipped, skip(logger, c.source, err))
			continue
		}

		mod, err := c.loader.Load(c.source)
		if err != nil {
			skipped = append(skipped, skip(logger, c.source, err))
			continue
		}

		entries = append(entries, Entry{
			Route:      c.route,
			Source:     c.source,
			Kind:       c.loader.Kind(),
			Resolution: mod.Resolution,
			Handler:    mod.Handler,
		})
	}

	table, err := NewTable(entries)
	if err != nil {
		return nil, err
	}
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].Source < skipped[j].Source
	})
	table.skipped = skipped

	logger.Info("functions discovered",
		zap.String("root", root),
		zap.String("prefix", prefix),
		zap.Int("routes", table.Len()),
		zap.Int("skipped", len(skipped)))

	return table, nil
}

// collect enumerates recognized source files under root
func collect(root, prefix string, byExt map[string]Loader, logger *zap.Logger) ([]candidate, error) {
	var candidates []candidate

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		loader, ok := byExt[filepath.Ext(path)]
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		candidates = append(candidates, candidate{
			route:  DeriveRoute(prefix, rel),
			source: path,
			loader: loader,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk functions root: %w", err)
	}

	return candidates, nil
}

func skip(logger *zap.Logger, source string, err error) Skipped {
	logger.Warn("skipping function module",
		zap.String("source", source),
		zap.Error(err))
	return Skipped{Source: source, Reason: err.Error()}
}
