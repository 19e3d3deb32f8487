package internal

import (
	"log/slog"
	"path/filepath"

	"github.com/AeonDave/cfgmatch/internal/selector"
)

// ProcessorContext holds the state shared by one codegen run.
type ProcessorContext struct {
	RootDir    string
	Flags      selector.Flags
	Exclude    []string
	Submodules []string
	Logger     *slog.Logger
}

// Excluded reports whether a path relative to RootDir matches one of the
// configured exclude globs. A glob without a separator also matches base
// names anywhere in the tree.
func (c *ProcessorContext) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range c.Exclude {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func (c *ProcessorContext) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Config contains the options of a standalone run.
type Config struct {
	Dir     string
	Flags   selector.Flags
	Exclude []string
	Logger  *slog.Logger
}
