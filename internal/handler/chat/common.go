package chat

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	httputil "webchat/internal/pkg/http"
	"webchat/internal/server/middleware"
	"webchat/internal/upstream"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

const defaultMaxFileBytes = 50 << 20

// resolveUser 请求体中的 user 优先，其次是中间件解析的身份
func resolveUser(c *gin.Context, user string) string {
	if user != "" {
		return user
	}
	return middleware.UserID(c)
}

// readFilePart 读取 multipart 文件到内存
func readFilePart(fh *multipart.FileHeader, limit int64) (upstream.FilePart, error) {
	if fh.Size > limit {
		return upstream.FilePart{}, fmt.Errorf("file too large: %d bytes", fh.Size)
	}
	f, err := fh.Open()
	if err != nil {
		return upstream.FilePart{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return upstream.FilePart{}, err
	}
	if int64(len(data)) > limit {
		return upstream.FilePart{}, fmt.Errorf("file too large")
	}

	return upstream.FilePart{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// writePassThrough 原样返回上游状态码与响应体
func writePassThrough(c *gin.Context, resp *upstream.PassThroughResponse) {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
