package internal

import (
	"bufio"
	"bytes"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// FileProcessor finds the Go files a run has to look at.
type FileProcessor struct {
	ctx *ProcessorContext
}

func NewFileProcessor(ctx *ProcessorContext) *FileProcessor {
	return &FileProcessor{ctx: ctx}
}

// CollectMarkedFiles walks dir once and returns the .go files containing a
// //cfg: directive. Directories with their own go.mod are recorded in
// ctx.Submodules and skipped; so are directories the go command ignores
// (testdata, vendor, names starting with "." or "_").
func (fp *FileProcessor) CollectMarkedFiles(dir string) ([]string, error) {
	var files []string
	fp.ctx.Submodules = nil

	absRootDir, err := filepath.Abs(dir)
	if err != nil {
		absRootDir = dir
	}
	absRootDir = filepath.Clean(absRootDir)

	err = filepath.WalkDir(absRootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(absRootDir, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if pathsEqual(path, absRootDir) {
				return nil
			}
			if isIgnoredDir(d.Name()) || fp.ctx.Excluded(rel) {
				return filepath.SkipDir
			}
			if _, statErr := os.Stat(filepath.Join(path, "go.mod")); statErr == nil {
				fp.ctx.Submodules = append(fp.ctx.Submodules, path)
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") || fp.ctx.Excluded(rel) {
			return nil
		}
		if fileHasMarkers(path) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func isIgnoredDir(name string) bool {
	return name == "testdata" || name == "vendor" ||
		strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// fileHasMarkers scans a file line by line for a directive.
func fileHasMarkers(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	prefix := []byte(DirectivePrefix)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if bytes.HasPrefix(bytes.TrimSpace(scanner.Bytes()), prefix) {
			return true
		}
	}
	return false
}

func pathsEqual(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// FilterUserFiles drops files that belong to GOROOT, the module cache or a
// vendor tree; the rest are candidates for expansion.
func FilterUserFiles(files []string, logger *slog.Logger) []string {
	ctx := newFilterContext()
	var userFiles []string

	for _, file := range files {
		include, reason := ctx.includeFile(file)
		if include {
			userFiles = append(userFiles, file)
		}
		logger.Debug(reason, slog.String("file", file))
	}

	return userFiles
}

type filterContext struct {
	gopath string
	goroot string
}

func newFilterContext() *filterContext {
	return &filterContext{
		gopath: determineGoPath(),
		goroot: determineGoRoot(),
	}
}

func determineGoPath() string {
	gopath := os.Getenv("GOPATH")
	if gopath != "" {
		return gopath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, "go")
}

func determineGoRoot() string {
	goroot := os.Getenv("GOROOT")
	if goroot != "" {
		return goroot
	}
	cmd := exec.Command("go", "env", "GOROOT")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

func (c *filterContext) includeFile(file string) (bool, string) {
	absFile, err := filepath.Abs(file)
	if err != nil {
		absFile = file
	}
	if shouldExcludeFile(absFile, c.goroot, c.gopath) {
		return false, "skipping system file"
	}
	if isVendorPath(file) {
		return false, "skipping vendor file"
	}
	return true, "including user file"
}

func isVendorPath(path string) bool {
	if strings.Contains(path, "/vendor/") || strings.Contains(path, "\\vendor\\") {
		return true
	}
	return strings.HasPrefix(path, "vendor/") || strings.HasPrefix(path, "vendor\\")
}

func shouldExcludeFile(absFile, goroot, gopath string) bool {
	if goroot != "" && strings.HasPrefix(absFile, filepath.Clean(goroot)+string(filepath.Separator)) {
		return true
	}
	if gopath != "" && strings.HasPrefix(absFile, filepath.Join(gopath, "pkg", "mod")) {
		return true
	}
	slashed := filepath.ToSlash(absFile)
	for _, path := range GoInstallPaths {
		if strings.Contains(slashed, path) {
			return true
		}
	}
	for _, path := range SystemPaths {
		if strings.Contains(slashed, path) {
			return true
		}
	}
	return false
}

// FindModuleRoot returns the closest directory at or above dir holding a
// go.mod, or "" if there is none.
func FindModuleRoot(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ModulePath reads the module path declared by the go.mod in root.
func ModulePath(root string) string {
	if root == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// FindCommonDir returns the deepest directory containing every file.
func FindCommonDir(files []string) string {
	if len(files) == 0 {
		return ""
	}

	commonDir := filepath.Dir(files[0])
	for _, file := range files[1:] {
		dir := filepath.Dir(file)
		for !isWithin(dir, commonDir) && commonDir != "." && commonDir != string(filepath.Separator) {
			commonDir = filepath.Dir(commonDir)
		}
	}
	return commonDir
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
