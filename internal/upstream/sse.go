package upstream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// 上游事件类型
const (
	unitMessage         = "message"
	unitAgentMessage    = "agent_message"
	unitMessageEnd      = "message_end"
	unitAgentMessageEnd = "agent_message_end"
	unitError           = "error"
	unitPing            = "ping"
)

// unit 上游流中的一条 data 记录
type unit struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	TaskID         string `json:"task_id"`
	ID             string `json:"id"`
	Message        string `json:"message"`
}

// unitReader 逐行读取 "data: {...}" 记录
// 空行、非 data 行、[DONE]、无法解析的 JSON 都被跳过
type unitReader struct {
	reader *bufio.Reader
}

func newUnitReader(r io.Reader) *unitReader {
	return &unitReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next 返回下一条可解析的记录；流结束时返回 io.EOF
func (u *unitReader) Next() (*unit, error) {
	for {
		line, err := u.reader.ReadBytes('\n')
		if len(line) > 0 {
			if ev, ok := parseLine(line); ok {
				return ev, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseLine(line []byte) (*unit, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return nil, false
	}

	var ev unit
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, false
	}
	return &ev, true
}
