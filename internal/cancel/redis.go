package cancel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StopChannel 多实例间广播停止请求的频道
const StopChannel = "webchat:stop"

// stopMessage 广播内容
type stopMessage struct {
	ConversationID string `json:"conversation_id"`
	Origin         string `json:"origin"`
}

// RedisNotifier 通过 Redis Pub/Sub 将停止请求扩散到所有实例
// 每个实例订阅同一频道，收到后置位本地的取消标记
type RedisNotifier struct {
	client   *redis.Client
	registry *Registry
	origin   string
}

// NewRedisNotifier 创建广播器，origin 用于忽略本实例发出的消息
func NewRedisNotifier(client *redis.Client, registry *Registry, origin string) *RedisNotifier {
	return &RedisNotifier{
		client:   client,
		registry: registry,
		origin:   origin,
	}
}

// Publish 广播停止请求
func (n *RedisNotifier) Publish(ctx context.Context, conversationID string) error {
	data, err := encodeStop(conversationID, n.origin)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, StopChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish stop: %w", err)
	}
	return nil
}

// Run 订阅停止频道，直到 ctx 结束
func (n *RedisNotifier) Run(ctx context.Context) error {
	sub := n.client.Subscribe(ctx, StopChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", StopChannel, err)
	}
	log.Info().Str("channel", StopChannel).Msg("Stop notifier subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(msg.Payload)
		}
	}
}

func (n *RedisNotifier) handle(payload string) {
	convID, origin, err := decodeStop(payload)
	if err != nil {
		log.Warn().Err(err).Str("payload", payload).Msg("Ignoring malformed stop message")
		return
	}
	if origin == n.origin {
		return
	}
	if n.registry.Signal(convID) {
		log.Info().Str("conversation_id", convID).Str("origin", origin).Msg("Remote stop applied")
	}
}

func encodeStop(conversationID, origin string) (string, error) {
	data, err := json.Marshal(stopMessage{ConversationID: conversationID, Origin: origin})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStop(payload string) (conversationID, origin string, err error) {
	var msg stopMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", "", err
	}
	if msg.ConversationID == "" {
		return "", "", fmt.Errorf("missing conversation_id")
	}
	return msg.ConversationID, msg.Origin, nil
}
