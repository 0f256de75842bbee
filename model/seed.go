package model

import (
	"log"

	"gorm.io/gorm"
)

// Seed 初始化演示数据：单个演示用户、默认提示词和内置工具。
// 已有用户时跳过，重复启动不会产生重复数据。
func Seed(db *gorm.DB) (*User, error) {
	var count int64
	if err := db.Model(&User{}).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		var u User
		if err := db.Order("id ASC").First(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}

	user := &User{Username: "demo", Password: "demo"}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}

	prompts := []SystemPrompt{
		{
			Title:     "通用助手",
			Content:   "你是一个乐于助人的 AI 助手，回答要简洁准确。",
			UserID:    user.ID,
			IsDefault: true,
		},
		{
			Title:   "翻译助手",
			Content: "你是一个专业的翻译助手，将用户输入在中英文之间互译。",
			UserID:  user.ID,
		},
	}
	for i := range prompts {
		if err := db.Create(&prompts[i]).Error; err != nil {
			return nil, err
		}
	}

	tools := []McpTool{
		{
			Name:          "get_weather",
			Description:   "查询指定城市的当前天气",
			Icon:          "cloud",
			Configuration: map[string]any{"type": "builtin"},
			UserID:        user.ID,
			IsEnabled:     true,
		},
		{
			Name:          "get_city_info",
			Description:   "查询城市的基本信息（国家、人口、特色）",
			Icon:          "map",
			Configuration: map[string]any{"type": "builtin"},
			UserID:        user.ID,
			IsEnabled:     true,
		},
		{
			Name:          "web_search",
			Description:   "通过外部搜索引擎检索实时信息",
			Icon:          "search",
			Configuration: map[string]any{"type": "search", "provider": "tavily"},
			UserID:        user.ID,
			IsEnabled:     true,
		},
	}
	for i := range tools {
		if err := db.Create(&tools[i]).Error; err != nil {
			return nil, err
		}
	}

	log.Printf("[Seed] demo user created: id=%d, prompts=%d, tools=%d", user.ID, len(prompts), len(tools))
	return user, nil
}
