package config

import "strings"

const SourceFileExt = ".lox"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".lox"}

// ConfigFileName is the optional per-project runtime configuration file.
const ConfigFileName = "glox.yaml"

// Exit codes, following the BSD sysexits convention.
const (
	ExitOK           = 0
	ExitUsage        = 64
	ExitCompileError = 65
	ExitRuntimeError = 70
	ExitIOError      = 74
)

// IsSourceFile checks if a file has a recognized source extension
func IsSourceFile(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
