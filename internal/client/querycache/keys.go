package querycache

import "strings"

// Resource keys. Every backend-derived value the client caches is addressed
// by one of these; file details are parameterized by repo-relative path.
const (
	KeyStatus     = "status"
	KeySettings   = "settings"
	KeyTree       = "tree"
	KeyClassGraph = "classgraph"
	KeyLint       = "lint"

	fileKeyPrefix = "file:"
)

// FileKey returns the resource key for a file detail.
func FileKey(path string) string {
	return fileKeyPrefix + path
}

// IsFileKey reports whether key addresses a file detail.
func IsFileKey(key string) bool {
	return strings.HasPrefix(key, fileKeyPrefix)
}

// FilePath returns the path of a file key, or "" if key is not one.
func FilePath(key string) string {
	if !IsFileKey(key) {
		return ""
	}
	return strings.TrimPrefix(key, fileKeyPrefix)
}

// FixedKeys lists the non-parameterized resource keys.
func FixedKeys() []string {
	return []string{KeyStatus, KeySettings, KeyTree, KeyClassGraph, KeyLint}
}
