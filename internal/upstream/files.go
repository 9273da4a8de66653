package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const maxPassThroughBody = 4 * 1024 * 1024

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// FilePart 转发给上游的 multipart 文件
type FilePart struct {
	FileName    string
	ContentType string
	Data        []byte
}

// PassThroughResponse 上游原样返回的状态码与响应体
type PassThroughResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// UploadFile 转发文件上传到 /files/upload
func (c *Client) UploadFile(ctx context.Context, file FilePart, user string) (*PassThroughResponse, error) {
	if file.ContentType == "" {
		file.ContentType = "application/octet-stream"
	}
	return c.postMultipart(ctx, "/files/upload", file, user, c.uploadTimeout)
}

// AudioToText 转发语音识别到 /audio-to-text
func (c *Client) AudioToText(ctx context.Context, file FilePart, user string) (*PassThroughResponse, error) {
	if file.FileName == "" {
		file.FileName = "recording.webm"
	}
	if file.ContentType == "" {
		file.ContentType = "audio/webm"
	}
	return c.postMultipart(ctx, "/audio-to-text", file, user, c.audioTimeout)
}

// postMultipart 超时返回 ErrTimeout，连接失败返回 ErrUnavailable
func (c *Client) postMultipart(ctx context.Context, path string, file FilePart, user string, timeout time.Duration) (*PassThroughResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(file.FileName)))
	header.Set("Content-Type", file.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.WriteField("user", user); err != nil {
		return nil, fmt.Errorf("write user field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, passThroughError(err, ctx)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPassThroughBody))
	if err != nil {
		return nil, passThroughError(err, ctx)
	}

	return &PassThroughResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func passThroughError(err error, ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	switch classify(err, context.Background()) {
	case failureTimeout:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case failureConnect:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
