package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"webchat/internal/pkg/logger"
	"webchat/internal/pkg/storage"
	"webchat/internal/upstream"
)

// FileRelay 上游文件类接口
type FileRelay interface {
	UploadFile(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error)
	AudioToText(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error)
}

// FileService 文件上传与语音识别透传
// 配置了归档存储时，上传成功的文件同时保存一份
type FileService struct {
	relay   FileRelay
	archive storage.Storage
}

// NewFileService 创建文件服务，archive 可以为 nil
func NewFileService(relay FileRelay, archive storage.Storage) *FileService {
	return &FileService{relay: relay, archive: archive}
}

// uploadResult 上游上传响应中用到的字段
type uploadResult struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
}

// Upload 转发上传；归档失败只记录日志
func (s *FileService) Upload(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error) {
	resp, err := s.relay.UploadFile(ctx, file, user)
	if err != nil {
		return nil, err
	}

	if s.archive != nil && resp.StatusCode/100 == 2 {
		if key, err := s.archiveFile(ctx, file, user, resp.Body); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("file", file.FileName).Msg("Failed to archive upload")
		} else {
			logger.Ctx(ctx).Debug().Str("key", key).Msg("Upload archived")
		}
	}
	return resp, nil
}

// AudioToText 转发语音识别
func (s *FileService) AudioToText(ctx context.Context, file upstream.FilePart, user string) (*upstream.PassThroughResponse, error) {
	return s.relay.AudioToText(ctx, file, user)
}

func (s *FileService) archiveFile(ctx context.Context, file upstream.FilePart, user string, body []byte) (string, error) {
	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil || result.ID == "" {
		return "", fmt.Errorf("upload response has no file id")
	}

	key := ArchiveKey(user, result.ID, result.Extension, file.FileName)
	if _, err := s.archive.Upload(ctx, key, bytes.NewReader(file.Data), file.ContentType); err != nil {
		return "", err
	}
	return key, nil
}

// ArchiveKey 归档对象 key: uploads/{user}/{file_id}.{ext}
func ArchiveKey(user, fileID, extension, fileName string) string {
	ext := strings.TrimPrefix(extension, ".")
	if ext == "" {
		ext = strings.TrimPrefix(path.Ext(fileName), ".")
	}
	user = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(user)
	if user == "" {
		user = "anonymous"
	}
	if ext == "" {
		return fmt.Sprintf("uploads/%s/%s", user, fileID)
	}
	return fmt.Sprintf("uploads/%s/%s.%s", user, fileID, strings.ToLower(ext))
}
