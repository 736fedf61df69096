package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hirelink/chatclient/internal/chat"
	"github.com/hirelink/chatclient/internal/config"
	"github.com/hirelink/chatclient/internal/logger"
	"github.com/hirelink/chatclient/internal/storage"
	"github.com/hirelink/chatclient/internal/storage/memory"
	redisstore "github.com/hirelink/chatclient/internal/storage/redis"
)

func main() {
	logger.SetPrefix("chat")
	cfg := config.Load()

	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "CHAT_TOKEN is not set: obtain a token from the HireLink auth service first")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store storage.Store
	if cfg.RedisURL != "" {
		rs, err := redisstore.New(ctx, cfg.RedisURL, "chat")
		if err != nil {
			logger.Errorf("redis cache unavailable (%v), falling back to in-process cache", err)
			store = memory.New()
		} else {
			store = rs
		}
	} else {
		store = memory.New()
	}
	defer store.Close()

	session := chat.New(cfg, store)
	session.Start(ctx)
	defer session.Close()

	program := tea.NewProgram(newModel(session), tea.WithAltScreen())

	// Мост: уведомления сессии доставляются в цикл bubbletea.
	go func() {
		for e := range session.Events() {
			program.Send(sessionEventMsg{event: e})
		}
	}()

	if _, err := program.Run(); err != nil {
		logger.Errorf("ui: %v", err)
		os.Exit(1)
	}
}
