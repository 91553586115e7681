package audit

import (
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"ferry/internal/config"
	"ferry/internal/logging"
)

// maxChoicesPerDir caps how many matching files are collected from one
// directory before picking.
const maxChoicesPerDir = 16

// Sampler draws random files from a directory tree without walking it.
type Sampler struct {
	Root        string
	MaxDepth    int
	PerDirCap   int
	Extensions  []string
	MaxAttempts int
	Rand        *rand.Rand
	Logger      *slog.Logger
}

// NewSampler builds a sampler from cfg.Audit. A zero seed picks a random one.
func NewSampler(cfg *config.Config, logger *slog.Logger) *Sampler {
	seed := uint64(cfg.Audit.Seed)
	if cfg.Audit.Seed == 0 {
		seed = rand.Uint64()
	}
	return &Sampler{
		Root:        cfg.Audit.RootDir,
		MaxDepth:    cfg.Audit.MaxDepth,
		PerDirCap:   cfg.Audit.PerDirCap,
		Extensions:  cfg.Audit.Extensions,
		MaxAttempts: cfg.Audit.MaxAttempts,
		Rand:        rand.New(rand.NewPCG(seed, seed>>1|1)),
		Logger:      logging.NewComponentLogger(logger, "audit"),
	}
}

// Descend performs one random walk from Root and returns the file it landed
// on. It reports false when the walk hit an empty or unreadable directory or
// ran out of depth.
func (s *Sampler) Descend() (string, bool) {
	current := s.Root
	for range max(s.MaxDepth, 1) {
		files, dirs, err := s.scan(current)
		if err != nil {
			return "", false
		}
		if len(files) > 0 {
			return files[s.Rand.IntN(len(files))], true
		}
		if len(dirs) == 0 {
			return "", false
		}
		current = dirs[s.Rand.IntN(len(dirs))]
	}
	return "", false
}

func (s *Sampler) scan(dir string) (files, dirs []string, err error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	limit := s.PerDirCap
	if limit <= 0 {
		limit = -1
	}
	entries, err := f.ReadDir(limit)
	if err != nil && len(entries) == 0 {
		return nil, nil, err
	}
	for _, entry := range entries {
		switch {
		case entry.Type().IsRegular() && s.matches(entry.Name()):
			files = append(files, filepath.Join(dir, entry.Name()))
			if len(files) >= maxChoicesPerDir {
				return files, dirs, nil
			}
		case entry.IsDir():
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	return files, dirs, nil
}

func (s *Sampler) matches(name string) bool {
	if len(s.Extensions) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range s.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// Sample yields up to n unique paths, giving up after MaxAttempts descents.
func (s *Sampler) Sample(n int) iter.Seq[string] {
	return func(yield func(string) bool) {
		logger := s.Logger
		if logger == nil {
			logger = logging.NewNop()
		}
		seen := make(map[string]struct{}, n)
		for attempts := 0; len(seen) < n && attempts < s.MaxAttempts; attempts++ {
			path, ok := s.Descend()
			if !ok {
				if (attempts+1)%100 == 0 {
					logger.Debug("sampling progress", logging.Int("attempts", attempts+1), logging.Int("found", len(seen)))
				}
				continue
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			if !yield(path) {
				return
			}
		}
	}
}
