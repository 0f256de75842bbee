package model

import (
	"gorm.io/gorm"
)

// --- SystemPrompt ---

func CreateSystemPrompt(db *gorm.DB, p *SystemPrompt) error {
	if p.IsDefault {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := unsetDefaultPrompt(tx, p.UserID); err != nil {
				return err
			}
			return tx.Create(p).Error
		})
	}
	return db.Create(p).Error
}

func GetSystemPrompt(db *gorm.DB, id uint) (*SystemPrompt, error) {
	var p SystemPrompt
	if err := db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func ListSystemPrompts(db *gorm.DB, userID uint) ([]SystemPrompt, error) {
	var out []SystemPrompt
	err := db.Where("user_id = ?", userID).Order("id ASC").Find(&out).Error
	return out, err
}

// GetDefaultSystemPrompt 没有默认时返回 nil, nil
func GetDefaultSystemPrompt(db *gorm.DB, userID uint) (*SystemPrompt, error) {
	var p SystemPrompt
	err := db.Where("user_id = ? AND is_default = ?", userID, true).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func UpdateSystemPrompt(db *gorm.DB, id uint, title, content string) (*SystemPrompt, error) {
	p, err := GetSystemPrompt(db, id)
	if err != nil {
		return nil, err
	}
	err = db.Model(p).Updates(map[string]interface{}{
		"title":   title,
		"content": content,
	}).Error
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetDefaultSystemPrompt 在同一事务内先取消旧默认再设置新默认，
// 保证每个用户最多一条默认提示词
func SetDefaultSystemPrompt(db *gorm.DB, userID, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var p SystemPrompt
		if err := tx.Where("user_id = ?", userID).First(&p, id).Error; err != nil {
			return err
		}
		if err := unsetDefaultPrompt(tx, userID); err != nil {
			return err
		}
		return tx.Model(&p).Update("is_default", true).Error
	})
}

func unsetDefaultPrompt(tx *gorm.DB, userID uint) error {
	return tx.Model(&SystemPrompt{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

func DeleteSystemPrompt(db *gorm.DB, id uint) error {
	res := db.Delete(&SystemPrompt{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- McpTool ---

func CreateMcpTool(db *gorm.DB, t *McpTool) error {
	return db.Create(t).Error
}

func GetMcpTool(db *gorm.DB, id uint) (*McpTool, error) {
	var t McpTool
	if err := db.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func ListMcpTools(db *gorm.DB, userID uint) ([]McpTool, error) {
	var out []McpTool
	err := db.Where("user_id = ?", userID).Order("id ASC").Find(&out).Error
	return out, err
}

func UpdateMcpTool(db *gorm.DB, id uint, fields map[string]interface{}) (*McpTool, error) {
	t, err := GetMcpTool(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Model(t).Updates(fields).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ToggleMcpTool 翻转启用状态，返回更新后的记录
func ToggleMcpTool(db *gorm.DB, id uint) (*McpTool, error) {
	t, err := GetMcpTool(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Model(t).Update("is_enabled", !t.IsEnabled).Error; err != nil {
		return nil, err
	}
	return t, nil
}

func DeleteMcpTool(db *gorm.DB, id uint) error {
	res := db.Delete(&McpTool{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --- Conversation ---

func CreateConversation(db *gorm.DB, c *Conversation) error {
	return db.Create(c).Error
}

func GetConversation(db *gorm.DB, id uint) (*Conversation, error) {
	var c Conversation
	if err := db.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func ListConversations(db *gorm.DB, userID uint) ([]Conversation, error) {
	var out []Conversation
	err := db.Where("user_id = ?", userID).Order("id DESC").Find(&out).Error
	return out, err
}

func UpdateConversation(db *gorm.DB, id uint, fields map[string]interface{}) (*Conversation, error) {
	c, err := GetConversation(db, id)
	if err != nil {
		return nil, err
	}
	if err := db.Model(c).Updates(fields).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteConversation 级联删除会话下的全部消息
func DeleteConversation(db *gorm.DB, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var c Conversation
		if err := tx.First(&c, id).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&c).Error
	})
}

// --- Message ---

func AppendMessage(db *gorm.DB, m *Message) error {
	return db.Create(m).Error
}

// ListMessages 按插入顺序（id 升序）返回，该顺序即补全请求看到的上下文顺序
func ListMessages(db *gorm.DB, conversationID uint) ([]Message, error) {
	var out []Message
	err := db.Where("conversation_id = ?", conversationID).Order("id ASC").Find(&out).Error
	return out, err
}
