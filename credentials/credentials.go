// Package credentials resolves the API key used against the
// OpenAI-compatible endpoint.
//
// A key can come from three places:
//   - --api-key flag (highest priority)
//   - OPENAI_API_KEY environment variable
//   - api_token.txt next to the config store
//
// The prefer_env_for_api_key setting decides whether the environment or the
// token file wins when both are present. The flag always wins.
//
// File permissions are 0600 (owner read/write only).
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// TokenFileName is the key file kept next to the config store.
	TokenFileName = "api_token.txt"

	// EnvVar is the environment variable consulted for the key.
	EnvVar = "OPENAI_API_KEY"
)

// Source identifies where a resolved key came from.
type Source string

const (
	SourceFlag Source = "flag"
	SourceEnv  Source = "environment"
	SourceFile Source = "file"
)

// MissingKeyError reports that no key could be found anywhere.
type MissingKeyError struct {
	// Path is the token file location that was consulted.
	Path string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("API key not found in $%s or %s", EnvVar, e.Path)
}

// TokenPath returns the key file location inside the config directory.
func TokenPath(configDir string) string {
	return filepath.Join(configDir, TokenFileName)
}

// Resolve returns the API key for this run.
//
// With preferEnv (the default), the environment is consulted before the
// token file; otherwise the file wins and the environment is the fallback.
// The returned Source reports which origin supplied the key.
func Resolve(flagKey, configDir string, preferEnv bool) (string, Source, error) {
	if key := strings.TrimSpace(flagKey); key != "" {
		return key, SourceFlag, nil
	}

	envKey := strings.TrimSpace(os.Getenv(EnvVar))
	fileKey, err := readTokenFile(TokenPath(configDir))
	if err != nil {
		return "", "", err
	}

	if preferEnv {
		if envKey != "" {
			return envKey, SourceEnv, nil
		}
		if fileKey != "" {
			return fileKey, SourceFile, nil
		}
	} else {
		if fileKey != "" {
			return fileKey, SourceFile, nil
		}
		if envKey != "" {
			return envKey, SourceEnv, nil
		}
	}

	return "", "", &MissingKeyError{Path: TokenPath(configDir)}
}

// readTokenFile returns the trimmed key from path, or "" when no file
// exists.
func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading key file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SaveToken writes the key to the token file with 0600 permissions,
// creating the config directory if needed.
func SaveToken(configDir, key string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := TokenPath(configDir)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(key)+"\n"), 0600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// RemoveToken deletes the token file. Removing a file that does not exist
// is not an error.
func RemoveToken(configDir string) error {
	if err := os.Remove(TokenPath(configDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing key file: %w", err)
	}
	return nil
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
