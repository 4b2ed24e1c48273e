// Package generation は外部のテキスト生成サービス（Gemini互換API）との連携を提供する。
// プロンプトの組み立て、API呼び出し、失敗時の説明文へのフォールバックを含む。
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultEndpoint はGemini generateContent APIのエンドポイント。
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1/models/gemini-1.5-pro-002:generateContent"
	// DefaultTimeout は1回の生成呼び出しに許す最大時間。
	DefaultTimeout = 90 * time.Second
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 4 << 20
	// maxErrorBodyBytes はエラー文言に含めるレスポンスボディの上限。
	maxErrorBodyBytes = 512
)

// ErrEmptyResponse はレスポンスにテキストが含まれない場合のエラー。
var ErrEmptyResponse = errors.New("generation response contains no text")

// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("generation service is not configured")

// StatusError は生成サービスが200以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d", e.StatusCode)
}

// GenerationConfig はモデルに渡すサンプリング設定。
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// DefaultGenerationConfig は既定のサンプリング設定を返す。
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.3,
		TopP:            0.95,
		TopK:            32,
		MaxOutputTokens: 1200,
	}
}

// ClientConfig はClientの設定。
type ClientConfig struct {
	APIKey   string
	Endpoint string        // 空の場合はDefaultEndpoint
	Timeout  time.Duration // 0以下の場合はDefaultTimeout
}

// Client はテキスト生成APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	apiKey     string
	timeout    time.Duration
	config     GenerationConfig
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		config:     DefaultGenerationConfig(),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate はプロンプトを送信し、候補に含まれるテキストパートを改行で連結して返す。
// 呼び出しはクライアントのタイムアウトで打ち切られる。リトライは行わない。
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint: %w", err)
	}
	q := reqURL.Query()
	q.Set("key", c.apiKey)
	reqURL.RawQuery = q.Encode()

	payload, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: c.config,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "docman/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.ErrorはクエリのAPIキーを含むURLを保持するため差し替える
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.endpoint
		}
		c.logger.Error("generation request failed",
			slog.String("error", redactKey(err.Error(), c.apiKey)),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("failed to read generation response",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("generation service returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBodyBytes)}
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Error("failed to decode generation response",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrEmptyResponse, err)
	}

	text := extractText(decoded)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// extractText は全候補の空でないテキストパートを順に改行で連結する。
func extractText(resp generateResponse) string {
	var texts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.Text != nil && strings.TrimSpace(*p.Text) != "" {
				texts = append(texts, *p.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// redactKey はエラー文言（URLを含むことがある）からAPIキーを取り除く。
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	return strings.ReplaceAll(s, key, "REDACTED")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
