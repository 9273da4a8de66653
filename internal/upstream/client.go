package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"webchat/internal/config"
	"webchat/internal/pkg/textutil"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 120 * time.Second
	defaultStopTimeout    = 5 * time.Second
	defaultUploadTimeout  = 60 * time.Second
	defaultAudioTimeout   = 30 * time.Second

	errorSnippetRunes = 400
	maxErrorBodyBytes = 64 * 1024
)

// Client 上游对话服务（chat-messages 风格 API）客户端
type Client struct {
	baseURL       string
	apiKey        string
	readTimeout   time.Duration
	stopTimeout   time.Duration
	uploadTimeout time.Duration
	audioTimeout  time.Duration
	snippetRunes  int
	httpClient    *http.Client
}

var _ Relay = (*Client)(nil)

// NewClient 创建上游客户端
func NewClient(cfg *config.UpstreamConfig) *Client {
	connectTimeout := orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	readTimeout := orDefault(cfg.ReadTimeout, defaultReadTimeout)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		readTimeout:   readTimeout,
		stopTimeout:   orDefault(cfg.StopTimeout, defaultStopTimeout),
		uploadTimeout: orDefault(cfg.UploadTimeout, defaultUploadTimeout),
		audioTimeout:  orDefault(cfg.AudioTimeout, defaultAudioTimeout),
		snippetRunes:  errorSnippetRunes,
		// 不设置整体超时，流式读取由空闲超时控制
		httpClient: &http.Client{Transport: transport},
	}
}

// SetErrorSnippetRunes 设置非 2xx 响应体摘要的长度
func (c *Client) SetErrorSnippetRunes(n int) {
	if n > 0 {
		c.snippetRunes = n
	}
}

// chatPayload chat-messages 请求体
type chatPayload struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
	Files          any            `json:"files,omitempty"`
}

// Stream 打开一次流式回合
func (c *Client) Stream(ctx context.Context, req ChatRequest) Stream {
	return newChatStream(ctx, c, req)
}

// openChat 发出 chat-messages 请求
func (c *Client) openChat(ctx context.Context, req ChatRequest) (*http.Response, error) {
	payload := chatPayload{
		Inputs:         map[string]any{},
		Query:          req.Query,
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		User:           req.User,
	}
	if len(req.Files) > 0 {
		payload.Files = req.Files
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat-messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	return c.httpClient.Do(httpReq)
}

// StopTask 请求上游停止生成，调用方通常忽略错误
func (c *Client) StopTask(ctx context.Context, taskID, user string) error {
	if taskID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.stopTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"user": user})
	url := fmt.Sprintf("%s/chat-messages/%s/stop", c.baseURL, taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stop task: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("stop task: unexpected status %d", resp.StatusCode)
	}
	log.Debug().Str("task_id", taskID).Msg("Upstream task stopped")
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// readErrorSnippet 读取非 2xx 响应体的前若干字符
func readErrorSnippet(body io.Reader, runes int) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	return textutil.TruncateRunes(string(data), runes)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
