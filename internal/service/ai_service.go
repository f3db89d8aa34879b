package service

import (
	"bytes"
	"context"
	"courseforge_backend/internal/config"
	"courseforge_backend/pkg/logger"
	"courseforge_backend/pkg/monitoring"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second
	jitterRatio = 0.25
)

// RetryObserver 每次重试前回调，调用方用它上报中间状态
type RetryObserver func(attempt int, err error, delay time.Duration)

// AIService 封装 OpenAI 兼容的 chat/completions 接口：
// 模板渲染由调用方完成，这里负责发送、分类错误并带退避重试
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []AIChatMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CompletionRequest 一次完成调用的全部参数
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	OnRetry     RetryObserver
}

// Complete 发送完成请求，瞬时错误按指数退避重试（限流遵循服务端建议延迟），
// 非瞬时错误立即返回
func (s *AIService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if strings.TrimSpace(s.config.APIKey) == "" {
		return "", ErrMissingAPIKey
	}

	maxRetries := s.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	backoff := baseBackoff
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		text, err := s.completeOnce(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		cls := Classify(err)
		if !cls.Retryable || attempt == maxRetries {
			return "", err
		}

		delay := backoff
		if cls.Kind == KindRateLimit && cls.RetryAfter > 0 {
			delay = cls.RetryAfter
		}
		if delay > maxBackoff {
			delay = maxBackoff
		}
		delay = addJitter(delay)

		monitoring.AIRetryCounter.WithLabelValues(string(cls.Kind)).Inc()
		logger.Log.Warn("completion request retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("maxRetries", maxRetries),
			zap.String("kind", string(cls.Kind)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if req.OnRetry != nil {
			req.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		backoff *= 2
	}

	return "", lastErr
}

func (s *AIService) completeOnce(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = s.config.Temperature
	}

	messages := []AIChatMessage{}
	if req.System != "" {
		messages = append(messages, AIChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, AIChatMessage{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &apiError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: retryAfterHint(resp),
		}
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &ErrBadResponse{Reason: "invalid JSON: " + err.Error()}
	}
	if result.Error != nil {
		return "", &ErrBadResponse{Reason: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return "", &ErrBadResponse{Reason: "no choices returned"}
	}

	return result.Choices[0].Message.Content, nil
}

// retryAfterHint 解析服务端建议的重试延迟
func retryAfterHint(resp *http.Response) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// addJitter 在计算出的延迟上叠加至多 25% 的随机抖动，避免重试风暴
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Float64() * jitterRatio * float64(d))
	return d + jitter
}
