package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/mcpchat/mcpchat/server/chat"
	"github.com/mcpchat/mcpchat/server/config"
	"github.com/mcpchat/mcpchat/server/handler"
	"github.com/mcpchat/mcpchat/server/llm"
	"github.com/mcpchat/mcpchat/server/model"
	"github.com/mcpchat/mcpchat/server/tools"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Printf("config file not loaded (%v), using defaults", err)
		cfg = config.Default()
	}
	log.Printf("config loaded: port=%d, db=%s, model=%s", cfg.Server.Port, cfg.Database.Path, cfg.LLM.Model)

	// 初始化数据库并写入演示数据
	db, err := model.InitDB(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	user, err := model.Seed(db)
	if err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}
	log.Printf("database initialized, user=%s", user.Username)

	// 初始化工具注册表（搜索密钥缺失只降级，不阻止启动）
	registry := tools.NewRegistry(cfg.Search)
	if err := registry.Initialize(); err != nil {
		log.Printf("[Tools] initialize: %v", err)
	}
	executor := tools.NewExecutor(registry.SearchClient())

	// LLM 网关与编排器
	gateway := llm.NewClient(cfg.LLM)
	orch := chat.NewOrchestrator(gateway, registry, executor)

	// WebSocket Hub 和事件分发
	hub := handler.NewHub(&cfg.WebSocket)
	bus := handler.NewEventBus()
	bus.StartDispatcher(hub)

	assembler := chat.NewAssembler(db, gateway, orch, bus)

	chatHandler := &handler.ChatHandler{Assembler: assembler, UserID: user.ID}
	convHandler := &handler.ConversationHandler{DB: db, UserID: user.ID}
	promptHandler := &handler.PromptHandler{DB: db, UserID: user.ID}
	toolHandler := &handler.ToolHandler{DB: db, UserID: user.ID}

	// 设置路由
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.Default()
	r.GET("/ws", hub.HandleWS)

	api := r.Group("/api")
	{
		api.POST("/chat", chatHandler.Handle)

		api.GET("/conversations", convHandler.List)
		api.GET("/conversations/:id", convHandler.Get)
		api.PUT("/conversations/:id", convHandler.Update)
		api.DELETE("/conversations/:id", convHandler.Delete)
		api.GET("/conversations/:id/messages", convHandler.Messages)

		api.GET("/prompts", promptHandler.List)
		api.POST("/prompts", promptHandler.Create)
		api.PUT("/prompts/:id", promptHandler.Update)
		api.PUT("/prompts/:id/default", promptHandler.SetDefault)
		api.DELETE("/prompts/:id", promptHandler.Delete)

		api.GET("/tools", toolHandler.List)
		api.POST("/tools", toolHandler.Create)
		api.PUT("/tools/:id", toolHandler.Update)
		api.PUT("/tools/:id/toggle", toolHandler.Toggle)
		api.DELETE("/tools/:id", toolHandler.Delete)
	}

	// 启动服务
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
