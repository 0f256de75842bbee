package handler

import (
	"encoding/json"
	"log"

	"github.com/mcpchat/mcpchat/server/chat"
)

// EventBus 把回合事件从聊天流程解耦地送往 WebSocket Hub。
// Notify 在请求协程里只做入队，广播由独立的分发协程完成。
type EventBus struct {
	events chan chat.TurnEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		events: make(chan chat.TurnEvent, 100),
	}
}

// Notify 实现 chat.Notifier。缓冲满时丢弃事件，不阻塞回合处理。
func (b *EventBus) Notify(event chat.TurnEvent) {
	select {
	case b.events <- event:
	default:
		log.Println("[Events] event buffer full, dropping event")
	}
}

// StartDispatcher 启动分发协程，把事件编码后交给 Hub 广播
func (b *EventBus) StartDispatcher(hub *Hub) {
	go func() {
		for event := range b.events {
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("[Events] marshal event failed: %v", err)
				continue
			}
			hub.Broadcast(&WSMessage{
				Type:    event.Type,
				Payload: payload,
			})
		}
	}()
}

// Close 停止分发
func (b *EventBus) Close() {
	close(b.events)
}
