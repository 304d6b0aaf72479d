// Package translate implements block-based subtitle translation through an
// OpenAI-compatible chat completions endpoint.
//
// Entries are grouped into fixed-size blocks. Each block is encoded into a
// single prompt with [index] markers, sent as one request, and the response
// is split back into per-entry texts by those markers. Blocks are processed
// strictly in order, one request per block.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kpasargad/srtrans/srtfile"
	"github.com/kpasargad/srtrans/textutil"
)

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the endpoint configuration for a translation run.
type Provider struct {
	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string
	// APIKey is the bearer token (empty for local endpoints).
	APIKey string
	// Model is the model identifier.
	Model string
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the response tokens per block.
	MaxTokens int
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// Options controls the translation behavior.
type Options struct {
	// Provider is the endpoint configuration.
	Provider Provider
	// Language is the target language (e.g. "es", "pt-BR").
	Language string
	// Context is optional additional info prefixed to every prompt.
	Context string
	// BlockSize is how many entries to translate per API call.
	BlockSize int
	// MaxLineLength re-wraps translated text to this width (0 = no wrapping).
	MaxLineLength int
	// Timeout is the per-request timeout (overrides provider timeout if set).
	Timeout time.Duration
	// MaxRetries is the retry budget per block for transient failures. Default: 3.
	MaxRetries int
	// OnProgress is called after each block is applied.
	OnProgress func(done, total int)
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages during translation.
	OnError func(format string, args ...any)
	// Verbose echoes each prompt before sending it.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	if o.Provider.Timeout > 0 {
		return o.Provider.Timeout
	}
	return 120 * time.Second
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) effectiveBlockSize() int {
	if o.BlockSize > 0 {
		return o.BlockSize
	}
	return 10
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both --proxy flag and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Request builder
// ---------------------------------------------------------------------------

// buildChatRequest encodes the chat completions payload. The whole prompt
// travels as a single system-role message.
func buildChatRequest(prov Provider, prompt string) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Stream      bool    `json:"stream"`
	}{
		Model: prov.Model,
		Messages: []msg{
			{Role: "system", Content: prompt},
		},
		Temperature: prov.Temperature,
		MaxTokens:   prov.MaxTokens,
		Stream:      false,
	}
	return json.Marshal(req)
}

// chatCompletionsURL appends the chat completions path unless the base URL
// already points at it.
func chatCompletionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// ---------------------------------------------------------------------------
// Response parser
// ---------------------------------------------------------------------------

// extractResponseText pulls the assistant text out of a chat completions
// response body.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	// Check for API error
	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return strings.TrimSpace(content), nil
				}
			}
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// ---------------------------------------------------------------------------
// Rate limit: pick the wait before retrying a 429
// ---------------------------------------------------------------------------

// retryDelay returns the wait before retrying a rate-limited request: the
// Retry-After header when present, then a retryDelay hint in the error body,
// then exponential backoff on the attempt number.
func retryDelay(header http.Header, body []byte, attempt int) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		for _, detail := range errResp.Error.Details {
			if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
				// Parse duration like "30s", "45.123s"
				d := strings.TrimSuffix(detail.RetryDelay, "s")
				if secs, err := strconv.ParseFloat(d, 64); err == nil {
					return time.Duration(secs*1000) * time.Millisecond
				}
			}
		}
	}

	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// ---------------------------------------------------------------------------
// Endpoint call with retries
// ---------------------------------------------------------------------------

func callEndpoint(ctx context.Context, client *http.Client, prov Provider, prompt string, maxRetries int, opts *Options) (string, error) {
	body, err := buildChatRequest(prov, prompt)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	endpoint := chatCompletionsURL(prov.BaseURL)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if prov.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+prov.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			if attempt < maxRetries {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				opts.log("Request failed (%v), retrying in %v (attempt %d/%d)", err, wait, attempt+1, maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt < maxRetries {
				wait := retryDelay(resp.Header, respBody, attempt)
				opts.log("Rate limited, waiting %v before retry (attempt %d/%d)", wait, attempt+1, maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", fmt.Errorf("rate limited after %d retries: %s", maxRetries, truncate(string(respBody), 500))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				opts.log("API returned status %d, retrying in %v (attempt %d/%d)", resp.StatusCode, wait, attempt+1, maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		return extractResponseText(respBody)
	}

	return "", fmt.Errorf("exhausted all %d retries", maxRetries)
}

// ---------------------------------------------------------------------------
// Block encoding / decoding
// ---------------------------------------------------------------------------

// encodeBlock renders entries as one marker line each, newlines inside an
// entry collapsed to spaces.
func encodeBlock(entries []*srtfile.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s", e.Index, strings.ReplaceAll(e.Text, "\n", " "))
	}
	return b.String()
}

// buildPrompt assembles the instruction and the encoded block. The context,
// when set, leads the prompt.
func buildPrompt(language, context, block string) string {
	prompt := fmt.Sprintf("Translate this into %s:", language)
	if context != "" {
		prompt = context + " " + prompt
	}
	return prompt + " " + block
}

// parseBlockResponse splits a response into per-entry texts, one non-blank
// line per entry, in order.
func parseBlockResponse(content string) []string {
	var texts []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		texts = append(texts, stripIndexMarker(line))
	}
	return texts
}

// stripIndexMarker removes a leading [index] marker from a response line.
// Lines without a marker are returned whole: models sometimes answer without
// echoing the markers back.
func stripIndexMarker(line string) string {
	i := strings.IndexByte(line, ']')
	if i < 0 {
		return line
	}
	if i+2 > len(line) {
		return ""
	}
	return line[i+2:]
}

// splitBlocks divides entries into blocks of the given size.
func splitBlocks(entries []*srtfile.Entry, size int) [][]*srtfile.Entry {
	if size <= 0 || size >= len(entries) {
		return [][]*srtfile.Entry{entries}
	}
	var blocks [][]*srtfile.Entry
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		blocks = append(blocks, entries[i:end])
	}
	return blocks
}

// TranslationError is the placeholder applied to entries the response did
// not cover.
const TranslationError = "Translation Error"

// applyBlock writes translated texts onto entries positionally, wrapping
// each to maxLineLength. Entries beyond the response get the placeholder;
// surplus response lines are ignored. Returns how many entries were left
// uncovered.
func applyBlock(entries []*srtfile.Entry, texts []string, maxLineLength int) int {
	missing := 0
	for i, e := range entries {
		if i < len(texts) {
			e.Text = textutil.Wrap(texts[i], maxLineLength)
		} else {
			e.Text = TranslationError
			missing++
		}
	}
	return missing
}

// ---------------------------------------------------------------------------
// Core translation loop
// ---------------------------------------------------------------------------

// Run translates every entry of doc in place, block by block. The document
// is not written to disk; serialization is the caller's job once the whole
// run has succeeded.
func Run(ctx context.Context, doc *srtfile.Document, opts Options) error {
	if len(doc.Entries) == 0 {
		return nil
	}

	blocks := splitBlocks(doc.Entries, opts.effectiveBlockSize())
	total := len(blocks)

	client := makeHTTPClient(opts.Provider.Proxy, opts.effectiveTimeout())
	maxRetries := opts.effectiveMaxRetries()

	for i, block := range blocks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		prompt := buildPrompt(opts.Language, opts.Context, encodeBlock(block))
		if opts.Verbose {
			opts.log("Block %d/%d (%d entries):", i+1, total, len(block))
			opts.log("%s", prompt)
		}

		text, err := callEndpoint(ctx, client, opts.Provider, prompt, maxRetries, &opts)
		if err != nil {
			return fmt.Errorf("translating block %d/%d: %w", i+1, total, err)
		}

		texts := parseBlockResponse(text)
		if missing := applyBlock(block, texts, opts.MaxLineLength); missing > 0 {
			opts.logError("Block %d/%d: response covered %d of %d entries, %d marked as failed",
				i+1, total, len(texts), len(block), missing)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, total)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Dry-run planning
// ---------------------------------------------------------------------------

// BlockPlan describes one block of a planned run.
type BlockPlan struct {
	// Number is the 1-based block position.
	Number int
	// Entries is how many subtitle entries the block holds.
	Entries int
	// First and Last are the subtitle indices at the block boundaries.
	First int
	Last  int
	// Chars is the size of the encoded block in characters.
	Chars int
}

// Plan reports how doc would be split into blocks without calling the
// endpoint.
func Plan(doc *srtfile.Document, blockSize int) []BlockPlan {
	if len(doc.Entries) == 0 {
		return nil
	}

	blocks := splitBlocks(doc.Entries, blockSize)
	plans := make([]BlockPlan, len(blocks))
	for i, b := range blocks {
		plans[i] = BlockPlan{
			Number:  i + 1,
			Entries: len(b),
			First:   b[0].Index,
			Last:    b[len(b)-1].Index,
			Chars:   utf8.RuneCountInString(encodeBlock(b)),
		}
	}
	return plans
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
