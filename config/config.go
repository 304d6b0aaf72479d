// Package config manages the srtrans configuration store: a sectioned TOML
// file holding the translation and model settings, resolved once at startup.
//
// Required values missing from the store are requested through a prompt
// callback and persisted back, so the first run bootstraps the file
// interactively. The resolved settings are immutable for the rest of the
// run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

const (
	dirName  = "srtrans"
	fileName = "config.toml"

	// DefaultBaseURL is the endpoint used when the store has no base_url.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ---------------------------------------------------------------------------
// On-disk structure
// ---------------------------------------------------------------------------

// File mirrors the TOML store. Pointer fields distinguish a missing key from
// a zero value, so resolution knows what still has to be prompted for.
type File struct {
	PreferEnvForAPIKey *bool       `toml:"prefer_env_for_api_key"`
	Translation        Translation `toml:"translation"`
	Settings           Settings    `toml:"settings"`
}

// Translation holds the [translation] section.
type Translation struct {
	Language *string `toml:"language"`
	Context  *string `toml:"context"`
}

// Settings holds the [settings] section.
type Settings struct {
	BlockSize     *int     `toml:"block_size"`
	MaxLineLength *int     `toml:"max_line_length"`
	Model         *string  `toml:"model"`
	Temperature   *float64 `toml:"temperature"`
	MaxTokens     *int     `toml:"max_tokens"`
	BaseURL       *string  `toml:"base_url"`
}

// Resolved is the fully validated configuration of a single run.
type Resolved struct {
	Language      string
	Context       string
	BlockSize     int
	MaxLineLength int
	Model         string
	Temperature   float64
	MaxTokens     int
	BaseURL       string
	PreferEnv     bool
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// Dir returns the srtrans configuration directory. Respects
// $XDG_CONFIG_HOME, falling back to ~/.config.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, dirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", dirName), nil
}

// DefaultPath returns the config store location: $SRTRANS_CONFIG when set,
// otherwise config.toml inside Dir().
func DefaultPath() (string, error) {
	if p := os.Getenv("SRTRANS_CONFIG"); p != "" {
		return ExpandPath(p)
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			path = home
		} else if len(path) > 1 && path[1] == '/' {
			path = filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", path, err)
	}
	return abs, nil
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the store at path. A missing file yields an empty File so the
// first run can fill it in.
func Load(path string) (*File, error) {
	f := &File{}

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return f, nil
}

// Save writes the store to path, creating the directory if needed. A sidecar
// flock serializes concurrent srtrans processes persisting prompted values.
func Save(f *File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking config store: %w", err)
	}
	defer lock.Unlock()

	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Prompt questions, in resolution order. Exported so the CLI can translate
// them before display.
const (
	QuestionLanguage      = "Enter the default translation language code (e.g. 'es' for Spanish):"
	QuestionContext       = "Enter any additional info for translation context (leave blank if none):"
	QuestionBlockSize     = "Enter the number of subtitles to process at once (e.g. 10):"
	QuestionMaxLineLength = "Enter the max characters per subtitle line (0 disables wrapping):"
	QuestionModel         = "Enter the model to use (e.g. 'gpt-4o-mini'):"
	QuestionTemperature   = "Enter the sampling temperature (e.g. 0.3):"
	QuestionMaxTokens     = "Enter the max response tokens per block (e.g. 1024):"
)

// ResolveOptions controls interactive resolution. Prompt is called once per
// missing required value with the question to display and returns the raw
// answer. A nil Prompt turns missing values into errors.
type ResolveOptions struct {
	Prompt func(question string) (string, error)
}

// Resolve produces the validated settings for a run, prompting for any
// missing required value. The second result reports whether the File was
// modified and should be saved back to the store.
func (f *File) Resolve(opts ResolveOptions) (*Resolved, bool, error) {
	var changed bool

	language, err := resolve(&f.Translation.Language, "translation.language", QuestionLanguage, parseString, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	context, err := resolve(&f.Translation.Context, "translation.context", QuestionContext, parseString, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	blockSize, err := resolve(&f.Settings.BlockSize, "settings.block_size", QuestionBlockSize, strconv.Atoi, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	maxLineLength, err := resolve(&f.Settings.MaxLineLength, "settings.max_line_length", QuestionMaxLineLength, strconv.Atoi, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	model, err := resolve(&f.Settings.Model, "settings.model", QuestionModel, parseString, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	temperature, err := resolve(&f.Settings.Temperature, "settings.temperature", QuestionTemperature, parseFloat, opts, &changed)
	if err != nil {
		return nil, changed, err
	}
	maxTokens, err := resolve(&f.Settings.MaxTokens, "settings.max_tokens", QuestionMaxTokens, strconv.Atoi, opts, &changed)
	if err != nil {
		return nil, changed, err
	}

	r := &Resolved{
		Language:      language,
		Context:       context,
		BlockSize:     blockSize,
		MaxLineLength: maxLineLength,
		Model:         model,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
		BaseURL:       DefaultBaseURL,
		PreferEnv:     true,
	}
	if f.Settings.BaseURL != nil && *f.Settings.BaseURL != "" {
		r.BaseURL = *f.Settings.BaseURL
	}
	if f.PreferEnvForAPIKey != nil {
		r.PreferEnv = *f.PreferEnvForAPIKey
	}

	if err := r.validate(); err != nil {
		return nil, changed, err
	}
	return r, changed, nil
}

// resolve returns the field's value, prompting for it when the key is
// absent. Prompted values are written back into the File.
func resolve[T any](field **T, key, question string, parse func(string) (T, error), opts ResolveOptions, changed *bool) (T, error) {
	if *field != nil {
		return **field, nil
	}

	var zero T
	if opts.Prompt == nil {
		return zero, fmt.Errorf("required configuration value %s is missing", key)
	}

	answer, err := opts.Prompt(question)
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", key, err)
	}
	value, err := parse(strings.TrimSpace(answer))
	if err != nil {
		return zero, fmt.Errorf("invalid value for %s: %w", key, err)
	}

	*field = &value
	*changed = true
	return value, nil
}

func parseString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func (r *Resolved) validate() error {
	if strings.TrimSpace(r.Language) == "" {
		return errors.New("translation.language must not be empty")
	}
	if r.BlockSize < 1 {
		return fmt.Errorf("settings.block_size must be at least 1 (got %d)", r.BlockSize)
	}
	if r.MaxLineLength < 0 {
		return fmt.Errorf("settings.max_line_length must not be negative (got %d)", r.MaxLineLength)
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("settings.model must not be empty")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("settings.temperature must be between 0 and 2 (got %g)", r.Temperature)
	}
	if r.MaxTokens < 1 {
		return fmt.Errorf("settings.max_tokens must be at least 1 (got %d)", r.MaxTokens)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Single-key access (config show / config set)
// ---------------------------------------------------------------------------

// Keys lists the store keys accepted by Set, in display order.
func Keys() []string {
	return []string{
		"language",
		"context",
		"block_size",
		"max_line_length",
		"model",
		"temperature",
		"max_tokens",
		"base_url",
		"prefer_env_for_api_key",
	}
}

// Set parses value for the named key and assigns it into the File.
func (f *File) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "language":
		f.Translation.Language = &value
	case "context":
		f.Translation.Context = &value
	case "block_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for block_size: %w", err)
		}
		f.Settings.BlockSize = &n
	case "max_line_length":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_line_length: %w", err)
		}
		f.Settings.MaxLineLength = &n
	case "model":
		f.Settings.Model = &value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for temperature: %w", err)
		}
		f.Settings.Temperature = &t
	case "max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_tokens: %w", err)
		}
		f.Settings.MaxTokens = &n
	case "base_url":
		f.Settings.BaseURL = &value
	case "prefer_env_for_api_key":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for prefer_env_for_api_key: %w", err)
		}
		f.PreferEnvForAPIKey = &b
	default:
		return fmt.Errorf("unknown configuration key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Get returns the display string for the named key, or "(unset)" when the
// key has no value in the store.
func (f *File) Get(key string) string {
	switch key {
	case "language":
		return displayString(f.Translation.Language)
	case "context":
		return displayString(f.Translation.Context)
	case "block_size":
		return displayInt(f.Settings.BlockSize)
	case "max_line_length":
		return displayInt(f.Settings.MaxLineLength)
	case "model":
		return displayString(f.Settings.Model)
	case "temperature":
		if f.Settings.Temperature == nil {
			return unsetValue
		}
		return strconv.FormatFloat(*f.Settings.Temperature, 'g', -1, 64)
	case "max_tokens":
		return displayInt(f.Settings.MaxTokens)
	case "base_url":
		if f.Settings.BaseURL == nil {
			return DefaultBaseURL + " (default)"
		}
		return *f.Settings.BaseURL
	case "prefer_env_for_api_key":
		if f.PreferEnvForAPIKey == nil {
			return "true (default)"
		}
		return strconv.FormatBool(*f.PreferEnvForAPIKey)
	}
	return unsetValue
}

const unsetValue = "(unset)"

func displayString(p *string) string {
	if p == nil {
		return unsetValue
	}
	return *p
}

func displayInt(p *int) string {
	if p == nil {
		return unsetValue
	}
	return strconv.Itoa(*p)
}
