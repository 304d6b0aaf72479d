// srtrans — SRT subtitle translator using OpenAI-compatible chat models.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/kpasargad/srtrans/config"
	"github.com/kpasargad/srtrans/credentials"
	"github.com/kpasargad/srtrans/i18n"
	"github.com/kpasargad/srtrans/srtfile"
	"github.com/kpasargad/srtrans/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var configPath string

// resolveConfigPath returns the configuration file for this invocation,
// honoring --config over $SRTRANS_CONFIG over the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultPath()
}

// ---------------------------------------------------------------------------
// Root command (translate a subtitle file)
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	var (
		lang          string
		model         string
		blockSize     int
		maxLineLength int
		preset        string
		output        string
		yes           bool
		dryRun        bool
		verbose       bool
		apiKey        string
		baseURL       string
		timeout       int
		maxRetries    int
		proxy         string
	)

	root := &cobra.Command{
		Use:   "srtrans <file.srt>",
		Short: "Translate SRT subtitle files with an OpenAI-compatible model",
		Long: `srtrans — translate SRT subtitle files with an OpenAI-compatible model.

Subtitle entries are grouped into blocks, each block is sent to the
chat completions endpoint as one prompt, and the translated lines are
matched back to their entries by index. Translated text is re-wrapped
to the configured line width. The result is written next to the input
as <name>_translated.srt unless -o is given.

Commands:
  config      Manage the configuration store
  presets     List prompt presets
  languages   List common language codes
  version     Show version information

Missing configuration values (target language, model, block size, ...)
are asked for interactively on the first run and saved to the
configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one subtitle file argument, got %d", len(args))
			}
			if !strings.EqualFold(filepath.Ext(args[0]), ".srt") {
				return fmt.Errorf("%q does not look like an .srt file", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(translateArgs{
				input:            args[0],
				language:         lang,
				model:            model,
				blockSize:        blockSize,
				maxLineLength:    maxLineLength,
				maxLineLengthSet: cmd.Flags().Changed("max-line-length"),
				preset:           preset,
				output:           output,
				yes:              yes,
				dryRun:           dryRun,
				verbose:          verbose,
				apiKey:           apiKey,
				baseURL:          baseURL,
				timeout:          timeout,
				maxRetries:       maxRetries,
				proxy:            proxy,
			})
		},
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default ~/.config/srtrans/config.toml)")

	root.Flags().StringVarP(&lang, "language", "l", "", "Target language code (overrides the configured one)")
	root.Flags().StringVar(&model, "model", "", "Model identifier (overrides the configured one)")
	root.Flags().IntVar(&blockSize, "block-size", 0, "Subtitle entries per request (overrides the configured value)")
	root.Flags().IntVar(&maxLineLength, "max-line-length", 0, "Max characters per subtitle line, 0 disables wrapping")
	root.Flags().StringVar(&preset, "preset", "", "Prompt preset replacing the configured context")
	root.Flags().StringVarP(&output, "output", "o", "", "Output file (default <input>_translated.srt)")
	root.Flags().BoolVarP(&yes, "yes", "y", false, "Overwrite the output file without asking")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "Print the block plan and exit without translating")
	root.Flags().BoolVar(&verbose, "verbose", false, "Echo every prompt before sending it")
	root.Flags().StringVar(&apiKey, "api-key", "", "API key (overrides $"+credentials.EnvVar+" and the token file)")
	root.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default "+config.DefaultBaseURL+")")
	root.Flags().IntVar(&timeout, "timeout", 60, "Request timeout in seconds")
	root.Flags().IntVar(&maxRetries, "max-retries", 3, "Retries per block for transient failures")
	root.Flags().StringVar(&proxy, "proxy", "", "HTTP/HTTPS proxy URL")

	_ = root.RegisterFlagCompletionFunc("preset", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		path, err := resolveConfigPath()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		presets, err := config.LoadPresets(config.PresetsPath(path))
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		completions := make([]string, 0, len(presets))
		for _, p := range presets {
			completions = append(completions, fmt.Sprintf("%s\t%s", p.Name, p.Context))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newConfigCmd(),
		newPresetsCmd(),
		newLanguagesCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// translate (the root command's run)
// ---------------------------------------------------------------------------

type translateArgs struct {
	input            string
	language         string
	model            string
	blockSize        int
	maxLineLength    int
	maxLineLengthSet bool
	preset           string
	output           string
	yes              bool
	dryRun           bool
	verbose          bool
	apiKey           string
	baseURL          string
	timeout          int
	maxRetries       int
	proxy            string
}

func runTranslate(a translateArgs) error {
	// A .env in the working directory may carry the API key
	_ = godotenv.Load()

	if a.timeout < 1 {
		return fmt.Errorf("--timeout must be at least 1 second, got %d", a.timeout)
	}
	if a.maxRetries < 0 {
		return fmt.Errorf("--max-retries must be 0 or greater, got %d", a.maxRetries)
	}

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	store, err := config.Load(path)
	if err != nil {
		return err
	}

	// Missing values are prompted for only on a terminal; otherwise they
	// are configuration errors.
	var ropts config.ResolveOptions
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		scanner := bufio.NewScanner(os.Stdin)
		ropts.Prompt = func(question string) (string, error) {
			fmt.Fprintf(os.Stderr, "%s ", i18n.T(question))
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return "", err
				}
				return "", fmt.Errorf("no input received")
			}
			return scanner.Text(), nil
		}
	}
	resolved, changed, err := store.Resolve(ropts)
	if err != nil {
		return err
	}
	if changed {
		if err := config.Save(store, path); err != nil {
			return err
		}
		logInfo(i18n.T("Saved configuration to %s"), path)
	}

	if a.preset != "" {
		presets, err := config.LoadPresets(config.PresetsPath(path))
		if err != nil {
			return err
		}
		p, ok := config.FindPreset(presets, a.preset)
		if !ok {
			return fmt.Errorf("unknown preset %q (run 'srtrans presets' to list them)", a.preset)
		}
		resolved.Context = p.Context
	}

	if err := applyOverrides(resolved, a); err != nil {
		return err
	}
	if _, err := language.Parse(resolved.Language); err != nil {
		logWarning("%q is not a recognized BCP 47 language tag, sending it to the model as-is", resolved.Language)
	}

	doc, err := srtfile.Open(a.input)
	if err != nil {
		return err
	}
	logInfo(i18n.N("Found %d subtitle entry in %s", "Found %d subtitle entries in %s", len(doc.Entries)),
		len(doc.Entries), filepath.Base(a.input))

	outPath := a.output
	if outPath == "" {
		outPath = srtfile.OutputPath(a.input)
	}

	if a.dryRun {
		printBlockPlan(doc, resolved, outPath)
		return nil
	}

	key, source, err := credentials.Resolve(a.apiKey, filepath.Dir(path), resolved.PreferEnv)
	if err != nil {
		var missing *credentials.MissingKeyError
		if errors.As(err, &missing) {
			logError("%v", err)
			fmt.Fprintf(os.Stderr, "  Set the %s environment variable, or store a key with: srtrans config set api-key YOUR_KEY\n", credentials.EnvVar)
			os.Exit(1)
		}
		return err
	}
	logInfo("Using API key from %s (%s)", source, credentials.MaskKey(key))

	if fileExists(outPath) && !a.yes {
		if !confirmOverwrite(os.Stdin, outPath) {
			logInfo(i18n.T("Translation canceled. No files were overwritten."))
			return nil
		}
	}

	// Setup signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning(i18n.T("Interrupted, aborting..."))
		cancel()
	}()

	logInfo(i18n.T("Translating %d entries into %s (%d per block)"),
		len(doc.Entries), resolved.Language, resolved.BlockSize)

	opts := translate.Options{
		Provider: translate.Provider{
			BaseURL:     resolved.BaseURL,
			APIKey:      key,
			Model:       resolved.Model,
			Temperature: resolved.Temperature,
			MaxTokens:   resolved.MaxTokens,
			Proxy:       a.proxy,
			Timeout:     time.Duration(a.timeout) * time.Second,
		},
		Language:      resolved.Language,
		Context:       resolved.Context,
		BlockSize:     resolved.BlockSize,
		MaxLineLength: resolved.MaxLineLength,
		MaxRetries:    a.maxRetries,
		Verbose:       a.verbose,
		OnProgress: func(done, total int) {
			logInfo("  %s %d/%d blocks", progressBar(done*100/total, 24), done, total)
		},
		OnLog: func(format string, args ...any) {
			logInfo(format, args...)
		},
		OnError: func(format string, args ...any) {
			logWarning(format, args...)
		},
	}

	if err := translate.Run(ctx, doc, opts); err != nil {
		if ctx.Err() != nil {
			logWarning(i18n.T("Translation interrupted, nothing was written"))
			os.Exit(1)
		}
		return err
	}

	if err := doc.Write(outPath); err != nil {
		return err
	}
	logSuccess(i18n.T("Translated subtitles saved to %s"), outPath)
	return nil
}

// applyOverrides layers the command-line flags over the resolved
// configuration. Flags left at their zero value keep the stored settings,
// except --max-line-length where an explicit 0 disables wrapping.
func applyOverrides(r *config.Resolved, a translateArgs) error {
	if a.language != "" {
		r.Language = a.language
	}
	if a.model != "" {
		r.Model = a.model
	}
	if a.blockSize != 0 {
		if a.blockSize < 1 {
			return fmt.Errorf("--block-size must be at least 1, got %d", a.blockSize)
		}
		r.BlockSize = a.blockSize
	}
	if a.maxLineLengthSet {
		if a.maxLineLength < 0 {
			return fmt.Errorf("--max-line-length must be 0 or greater, got %d", a.maxLineLength)
		}
		r.MaxLineLength = a.maxLineLength
	}
	if a.baseURL != "" {
		r.BaseURL = a.baseURL
	}
	return nil
}

// confirmOverwrite asks until it gets a y or n answer. EOF declines, so a
// non-interactive stdin never overwrites.
func confirmOverwrite(r io.Reader, path string) bool {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprintf(os.Stderr, i18n.T("%s already exists. Overwrite? [y/n]: "), path)
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}

func printBlockPlan(doc *srtfile.Document, r *config.Resolved, outPath string) {
	plans := translate.Plan(doc, r.BlockSize)
	rows := make([]table.Row, 0, len(plans))
	totalChars := 0
	for _, p := range plans {
		rows = append(rows, table.Row{p.Number, p.Entries, fmt.Sprintf("%d-%d", p.First, p.Last), p.Chars})
		totalChars += p.Chars
	}
	renderTable(os.Stdout, table.Row{"Block", "Entries", "Indices", "Prompt chars"}, rows,
		table.ColumnConfig{Number: 1, Align: text.AlignRight},
		table.ColumnConfig{Number: 2, Align: text.AlignRight},
		table.ColumnConfig{Number: 4, Align: text.AlignRight},
	)
	logInfo("%d blocks, %d prompt characters, target language %s", len(plans), totalChars, r.Language)
	logInfo("Output would be written to %s", outPath)
}

// ---------------------------------------------------------------------------
// config (show / set / path)
// ---------------------------------------------------------------------------

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration store",
		Long: `Manage the configuration store.

The store is a TOML file holding the translation defaults (language,
context, block size, line width, model, temperature, max tokens) plus
the API base URL and the credential preference flag.`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigPathCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			store, err := config.Load(path)
			if err != nil {
				return err
			}

			rows := make([]table.Row, 0, len(config.Keys())+1)
			for _, key := range config.Keys() {
				rows = append(rows, table.Row{key, store.Get(key)})
			}
			rows = append(rows, table.Row{"api-key", apiKeyStatus(filepath.Dir(path))})
			renderTable(os.Stdout, table.Row{"Key", "Value"}, rows)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set one configuration value",
		Long: `Set one configuration value and save the store.

The special key "api-key" writes the value to the token file next to
the configuration file instead (mode 0600). An empty value removes the
token file.

Examples:
  srtrans config set language es
  srtrans config set block_size 10
  srtrans config set api-key sk-...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}

			if key == "api-key" {
				dir := filepath.Dir(path)
				if strings.TrimSpace(value) == "" {
					if err := credentials.RemoveToken(dir); err != nil {
						return err
					}
					logSuccess("API key removed from %s", credentials.TokenPath(dir))
					return nil
				}
				if err := credentials.SaveToken(dir, value); err != nil {
					return err
				}
				logSuccess("API key saved to %s", credentials.TokenPath(dir))
				return nil
			}

			store, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := store.Set(key, value); err != nil {
				return err
			}
			if err := config.Save(store, path); err != nil {
				return err
			}
			logSuccess("Set %s = %s", key, store.Get(key))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

// apiKeyStatus reports whether a key is available without printing it.
func apiKeyStatus(configDir string) string {
	key, source, err := credentials.Resolve("", configDir, true)
	if err != nil {
		return "(unset)"
	}
	return fmt.Sprintf("%s (%s)", credentials.MaskKey(key), source)
}

// ---------------------------------------------------------------------------
// presets (list prompt presets)
// ---------------------------------------------------------------------------

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List prompt presets",
		Long: `List the prompt presets from presets.yaml next to the configuration
file. A preset is a named context snippet selected per run with --preset:

  presets:
    - name: documentary
      context: Keep the register neutral and factual.
    - name: sitcom
      context: Preserve jokes and timing over literal accuracy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			presetsPath := config.PresetsPath(path)
			presets, err := config.LoadPresets(presetsPath)
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				logInfo("No presets defined. Create %s to add some.", presetsPath)
				return nil
			}

			rows := make([]table.Row, 0, len(presets))
			for _, p := range presets {
				rows = append(rows, table.Row{p.Name, p.Context})
			}
			renderTable(os.Stdout, table.Row{"Preset", "Context"}, rows)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// languages (list common language codes)
// ---------------------------------------------------------------------------

// commonLanguages are the codes listed by the languages command. Any valid
// BCP 47 tag works as a target language; this is just the usual set.
var commonLanguages = []string{
	"ar", "bg", "cs", "da", "de", "el", "en", "es", "fa", "fi", "fr",
	"he", "hi", "hu", "id", "it", "ja", "ko", "nl", "no", "pl", "pt",
	"pt-BR", "ro", "ru", "sv", "th", "tr", "uk", "vi", "zh", "zh-Hant",
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages [code...]",
		Short: "List common language codes with display names",
		Long: `List common language codes with their English and native display names.

With arguments, only the given codes are listed:
  srtrans languages es pt-BR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			langs := commonLanguages
			if len(args) > 0 {
				langs = intersectLanguages(commonLanguages, args)
				if len(langs) == 0 {
					logWarning("None of the requested codes are in the common list. Any BCP 47 tag still works with --language.")
					return nil
				}
			}

			rows := make([]table.Row, 0, len(langs))
			for _, code := range langs {
				tag, err := language.Parse(code)
				if err != nil {
					continue
				}
				rows = append(rows, table.Row{
					langCell(code),
					display.English.Tags().Name(tag),
					display.Self.Name(tag),
				})
			}
			renderTable(os.Stdout, table.Row{"Code", "Language", "Native"}, rows)
			return nil
		},
	}
}

// langCell renders a language code with its flag emoji, when the code
// carries a region subtag.
func langCell(code string) string {
	if flag := langFlag(code); flag != "" {
		return flag + " " + code
	}
	return code
}

// langFlag returns the emoji flag for a language tag's region subtag, or ""
// when the tag has none.
func langFlag(code string) string {
	for _, part := range strings.Split(code, "-")[1:] {
		if flag := flagFromRegion(part); flag != "" {
			return flag
		}
	}
	return ""
}

// flagFromRegion converts a two-letter region code to its emoji flag by
// mapping each letter onto the regional indicator symbols.
func flagFromRegion(region string) string {
	if len(region) != 2 {
		return ""
	}
	var runes [2]rune
	for i := 0; i < 2; i++ {
		c := rune(region[i])
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return ""
		}
		runes[i] = 0x1F1E6 + c - 'A'
	}
	return string(runes[:])
}

// intersectLanguages returns the available codes also present in filter,
// preserving the available order. Filter entries are trimmed.
func intersectLanguages(available, filter []string) []string {
	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		want[strings.TrimSpace(f)] = true
	}
	var out []string
	for _, lang := range available {
		if want[lang] {
			out = append(out, lang)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("srtrans version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Rendering helpers
// ---------------------------------------------------------------------------

// renderTable writes a rounded-style table to w.
func renderTable(w io.Writer, header table.Row, rows []table.Row, configs ...table.ColumnConfig) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	if len(configs) > 0 {
		tw.SetColumnConfigs(configs)
	}
	tw.Render()
}

// progressBar renders a fixed-width bar for a percentage, clamped to
// 0-100. The bar turns yellow at 40% and green at 100%.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := width * percent / 100
	color := colorRed
	switch {
	case percent >= 100:
		color = colorGreen
	case percent >= 40:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// fileExists returns true if the file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
