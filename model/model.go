package model

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex" json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemPrompt 可复用的系统提示词，每个用户最多一条默认
type SystemPrompt struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	UserID    uint      `gorm:"index" json:"user_id"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// McpTool 可调用的工具描述，Configuration 由执行器解释
type McpTool struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string         `json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	Icon          string         `json:"icon"`
	Configuration map[string]any `gorm:"serializer:json" json:"configuration"`
	UserID        uint           `gorm:"index" json:"user_id"`
	IsEnabled     bool           `json:"is_enabled"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Conversation struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title          string    `json:"title"`
	UserID         uint      `gorm:"index" json:"user_id"`
	SystemPromptID *uint     `json:"system_prompt_id"`
	EnabledTools   []uint    `gorm:"serializer:json" json:"enabled_tools"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolCallRecord 助手消息上记录的工具调用
type ToolCallRecord struct {
	ToolID     uint           `json:"tool_id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Message 追加式的对话记录，按 id 升序即为权威顺序，写入后不再修改
type Message struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint            `gorm:"index" json:"conversation_id"`
	UserID         uint            `json:"user_id"`
	Role           string          `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content        string          `gorm:"type:text" json:"content"`
	ToolCall       *ToolCallRecord `gorm:"serializer:json" json:"tool_call,omitempty"`
	ToolResult     map[string]any  `gorm:"serializer:json" json:"tool_result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&User{}, &SystemPrompt{}, &McpTool{}, &Conversation{}, &Message{}); err != nil {
		return nil, err
	}

	return db, nil
}
