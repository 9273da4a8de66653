package id

import (
	"github.com/google/uuid"
)

// New 生成新的对话/消息 ID（UUID v4 字符串）
func New() string {
	return uuid.New().String()
}

// IsValid 校验外部传入的 ID 是否为合法 UUID
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
