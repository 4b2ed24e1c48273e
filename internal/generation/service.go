package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hitoshi/docman/internal/metrics"
)

// Generator はプロンプトからテキストを生成する。Clientが実装する。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder は生成結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordGeneration(outcome string, duration time.Duration)
}

// Service は文書種別ごとのプロンプト組み立てと生成呼び出しをまとめる。
type Service struct {
	gen     Generator
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(gen Generator, rec Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		gen:     gen,
		metrics: rec,
		logger:  logger,
		now:     time.Now,
	}
}

// GenerateContent は入力から文書本文を生成する。
// 生成サービスの障害（非200、接続失敗、タイムアウト、空応答）はエラーにせず、
// 原因を説明する文字列を本文として返す。
func (s *Service) GenerateContent(ctx context.Context, documentType string, input map[string]any) string {
	if input == nil {
		input = map[string]any{}
	}
	prompt := BuildPrompt(documentType, input)

	start := s.now()
	text, err := s.gen.Generate(ctx, prompt)
	elapsed := s.now().Sub(start)

	outcome, result := describe(text, err)
	if s.metrics != nil {
		s.metrics.RecordGeneration(outcome, elapsed)
	}

	if err != nil {
		s.logger.Warn("generation fell back to error text",
			slog.String("document_type", documentType),
			slog.String("outcome", outcome),
			slog.String("error", err.Error()),
		)
	}
	return result
}

// describe は生成結果をメトリクスの結果ラベルと返却文字列に変換する。
func describe(text string, err error) (string, string) {
	if err == nil {
		return metrics.OutcomeSuccess, text
	}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrNotConfigured):
		return metrics.OutcomeError, "Generation service is not configured."
	case errors.As(err, &statusErr):
		return metrics.OutcomeError, fmt.Sprintf("Generation service error: %d - %s", statusErr.StatusCode, statusErr.Body)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return metrics.OutcomeTimeout, "Generation service timed out. Please try again later."
	case errors.Is(err, ErrEmptyResponse):
		return metrics.OutcomeEmpty, "Unexpected response format from the generation service."
	case errors.Is(err, context.Canceled):
		return metrics.OutcomeError, "Generation request was canceled."
	default:
		return metrics.OutcomeError, fmt.Sprintf("Generation service connection error: %v", err)
	}
}
