package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome of expanding one file.
type FileResult struct {
	Path   string
	Rel    string
	Result *Result
	Err    error
}

// Report is the outcome of a codegen run over one module. Submodules are
// reported separately, each as an independent project.
type Report struct {
	Root       string
	Module     string
	Files      []FileResult
	Submodules []*Report
}

// Err joins the errors of every file, submodules included.
func (r *Report) Err() error {
	var errs []error
	r.Walk(func(fr FileResult) {
		if fr.Err != nil {
			errs = append(errs, fr.Err)
		}
	})
	return errors.Join(errs...)
}

// Walk calls fn for every file of r and its submodules, in path order.
func (r *Report) Walk(fn func(FileResult)) {
	for _, fr := range r.Files {
		fn(fr)
	}
	for _, sub := range r.Submodules {
		sub.Walk(fn)
	}
}

// RunCodegen expands every file under cfg.Dir that contains a directive.
// Nothing is written; callers decide what to do with the results. Per-file
// failures are recorded in the report rather than stopping the run.
func RunCodegen(ctx context.Context, cfg Config) (*Report, error) {
	start := time.Now()

	absDir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		absDir = cfg.Dir
	}

	pctx := &ProcessorContext{
		RootDir: absDir,
		Flags:   cfg.Flags,
		Exclude: cfg.Exclude,
		Logger:  cfg.Logger,
	}
	log := pctx.logger()

	fileProcessor := NewFileProcessor(pctx)
	files, err := fileProcessor.CollectMarkedFiles(absDir)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	log.Debug("walk completed",
		"dir", absDir,
		"files", len(files),
		"submodules", len(pctx.Submodules),
		"elapsed", time.Since(start),
	)

	report := &Report{
		Root:   absDir,
		Module: ModulePath(FindModuleRoot(absDir)),
		Files:  make([]FileResult, len(files)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Files[i] = expandFile(absDir, path, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(report.Files, func(a, b FileResult) int {
		return strings.Compare(a.Path, b.Path)
	})

	log.Debug("expansion completed", "dir", absDir, "elapsed", time.Since(start))

	for _, sub := range pctx.Submodules {
		rel, _ := filepath.Rel(absDir, sub)
		log.Info("processing submodule", "path", rel)

		subCfg := cfg
		subCfg.Dir = sub
		subReport, err := RunCodegen(ctx, subCfg)
		if err != nil {
			return nil, fmt.Errorf("submodule %s: %w", sub, err)
		}
		report.Submodules = append(report.Submodules, subReport)
	}

	return report, nil
}

func expandFile(root, path string, cfg Config) FileResult {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	fr := FileResult{Path: path, Rel: rel}

	src, err := os.ReadFile(path)
	if err != nil {
		fr.Err = fmt.Errorf("read %s: %w", path, err)
		return fr
	}
	fr.Result, fr.Err = Expand(path, src, cfg.Flags)
	return fr
}

// ExpandPath expands a single file outside of a directory walk.
func ExpandPath(path string, cfg Config) FileResult {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fr := expandFile(filepath.Dir(abs), abs, cfg)
	fr.Rel = filepath.Base(abs)
	return fr
}

// WriteReport writes every expanded file of r under outDir, mirroring paths
// relative to the report root. Submodules land in their relative subtree.
func WriteReport(r *Report, outDir string) (int, error) {
	written := 0
	var walk func(rep *Report, base string) error
	walk = func(rep *Report, base string) error {
		for _, fr := range rep.Files {
			if fr.Err != nil || fr.Result == nil {
				continue
			}
			dst := filepath.Join(base, fr.Rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
			}
			if err := os.WriteFile(dst, fr.Result.Source, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", dst, err)
			}
			written++
		}
		for _, sub := range rep.Submodules {
			rel, err := filepath.Rel(rep.Root, sub.Root)
			if err != nil {
				return err
			}
			if err := walk(sub, filepath.Join(base, rel)); err != nil {
				return err
			}
		}
		return nil
	}
	return written, walk(r, outDir)
}
