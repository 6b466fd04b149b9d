// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files, one
// secret per file: the filename is the key name and the trimmed contents are
// the value. Known keys fall back to their conventional environment
// variables.
//
// Supported key files: openai-api-key, anthropic-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Key file names.
const (
	OpenAIKey    = "openai-api-key"
	AnthropicKey = "anthropic-api-key"
)

// envFallback maps key files to the environment variables consulted when
// the file is absent.
var envFallback = map[string]string{
	OpenAIKey:    "OPENAI_API_KEY",
	AnthropicKey: "ANTHROPIC_API_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error. Unreadable files are logged
// and skipped.
func Load(dir string, logger zerolog.Logger) (map[string]string, error) {
	secrets := make(map[string]string)

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}

	for key, env := range envFallback {
		if _, ok := secrets[key]; ok {
			continue
		}
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			secrets[key] = value
		}
	}
	return secrets, nil
}

// ProviderKey returns the key file name holding provider's API key.
func ProviderKey(provider string) string {
	if strings.EqualFold(provider, "anthropic") {
		return AnthropicKey
	}
	return OpenAIKey
}
