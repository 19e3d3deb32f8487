package internal

const (
	// DirectivePrefix starts every cfgmatch directive. Like //go: directives
	// there is no space after the slashes.
	DirectivePrefix = "//cfg:"
	// DirectivePattern captures the verb and the optional argument.
	DirectivePattern = `^(\s*)//cfg:(\S*)(?:\s+(.*?))?\s*$`

	VerbMatch   = "match"
	VerbCase    = "case"
	VerbDefault = "default"
	VerbEnd     = "end"

	// ConfigFileName is looked up from the processed directory up to the
	// module root.
	ConfigFileName = ".cfgmatch.yaml"

	// EnvPrefix prefixes every environment variable read by cfgmatch.
	EnvPrefix = "CFGMATCH"
)

var (
	// GoInstallPaths are matched against slash-separated absolute paths.
	// Each ends in a separator so /opt/gopher or /usr/local/golang-src do
	// not match.
	GoInstallPaths = []string{
		"/usr/lib/go/",
		"/usr/local/go/",
		"/opt/go/",
		":/Go/",              // Windows, C:\Go
		"/Program Files/Go/", // Windows installer
	}
	SystemPaths = []string{
		"/pkg/mod/",
		"/vendor/",
	}
)
