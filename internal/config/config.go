package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hirelink/chatclient/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		idx := strings.LastIndex(parent, "/")
		if idx <= 0 {
			return
		}
		dir = parent[:idx]
		if dir == "" {
			dir = "/"
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// ReconnectConfig — политика переподключения WebSocket.
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// PollConfig — интервалы fallback-опроса, когда живой канал недоступен.
type PollConfig struct {
	Conversations time.Duration
	Messages      time.Duration
	Unread        time.Duration
	Presence      time.Duration
}

// Config содержит настройки клиента.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// APIBaseURL — REST API сервиса диалогов (например https://hirelink.example).
	APIBaseURL string `yaml:"api_base_url"`
	// WSURL — адрес живого канала. Пустой — выводится из APIBaseURL
	// (http→ws, путь /ws/chat/).
	WSURL string `yaml:"ws_url"`

	// Token — bearer-токен от внешнего сервиса сессий. Без токена клиент
	// не подключается и не опрашивает API.
	Token string `yaml:"-"`

	// WebSocket
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSPongTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	Reconnect ReconnectConfig `yaml:"-"`
	Poll      PollConfig      `yaml:"-"`

	// TypingTimeout — авто-сброс индикатора печати.
	TypingTimeout time.Duration `yaml:"-"`

	// RedisURL — опциональный общий кеш для многопроцессных ботов.
	// Пустой — кеш в памяти процесса.
	RedisURL string `yaml:"redis_url"`

	LogLevel string `yaml:"log_level"`
}

// WebSocketURL возвращает адрес живого канала, выводя его из APIBaseURL
// при пустом WSURL.
func (c *Config) WebSocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	u := c.APIBaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/ws/chat/"
}

// yamlConfig — промежуточная структура для парсинга YAML (длительности в секундах/мс).
type yamlConfig struct {
	APIBaseURL           string `yaml:"api_base_url"`
	WSURL                string `yaml:"ws_url"`
	WSWriteTimeout       int    `yaml:"ws_write_timeout"`
	WSPongTimeout        int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize     int64  `yaml:"ws_max_message_size"`
	ReconnectBaseDelayMS int    `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMS  int    `yaml:"reconnect_max_delay_ms"`
	ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`
	PollConversations    int    `yaml:"poll_conversations"`
	PollMessages         int    `yaml:"poll_messages"`
	PollUnread           int    `yaml:"poll_unread"`
	PollPresence         int    `yaml:"poll_presence"`
	TypingTimeoutMS      int    `yaml:"typing_timeout_ms"`
	RedisURL             string `yaml:"redis_url"`
	LogLevel             string `yaml:"log_level"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию
	yc := yamlConfig{
		APIBaseURL:           "http://localhost:8080",
		WSWriteTimeout:       10,
		WSPongTimeout:        60,
		WSMaxMessageSize:     4096,
		ReconnectBaseDelayMS: 1000,
		ReconnectMaxDelayMS:  30000,
		ReconnectMaxAttempts: 5,
		PollConversations:    30,
		PollMessages:         5,
		PollUnread:           30,
		PollPresence:         60,
		TypingTimeoutMS:      3000,
		LogLevel:             "info",
	}

	// Загрузка YAML: CONFIG_PATH → config/chat.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/chat.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	token := envStr("CHAT_TOKEN", "")
	if token == "" {
		// Токен можно передать файлом (секреты в оркестраторах).
		if path := os.Getenv("CHAT_TOKEN_FILE"); path != "" {
			if data, err := os.ReadFile(path); err == nil {
				token = strings.TrimSpace(string(data))
			} else {
				logger.Errorf("config: чтение CHAT_TOKEN_FILE: %v", err)
			}
		}
	}

	cfg := &Config{
		APIBaseURL:       strings.TrimSuffix(envStr("API_BASE_URL", yc.APIBaseURL), "/"),
		WSURL:            envStr("WS_URL", yc.WSURL),
		Token:            token,
		WSWriteTimeout:   time.Duration(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout)) * time.Second,
		WSPongTimeout:    time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)) * time.Second,
		WSMaxMessageSize: int64(envInt("WS_MAX_MESSAGE_SIZE", int(yc.WSMaxMessageSize))),
		Reconnect: ReconnectConfig{
			BaseDelay:   time.Duration(envInt("RECONNECT_BASE_DELAY_MS", yc.ReconnectBaseDelayMS)) * time.Millisecond,
			MaxDelay:    time.Duration(envInt("RECONNECT_MAX_DELAY_MS", yc.ReconnectMaxDelayMS)) * time.Millisecond,
			MaxAttempts: envInt("RECONNECT_MAX_ATTEMPTS", yc.ReconnectMaxAttempts),
		},
		Poll: PollConfig{
			Conversations: time.Duration(envInt("POLL_CONVERSATIONS", yc.PollConversations)) * time.Second,
			Messages:      time.Duration(envInt("POLL_MESSAGES", yc.PollMessages)) * time.Second,
			Unread:        time.Duration(envInt("POLL_UNREAD", yc.PollUnread)) * time.Second,
			Presence:      time.Duration(envInt("POLL_PRESENCE", yc.PollPresence)) * time.Second,
		},
		TypingTimeout: time.Duration(envInt("TYPING_TIMEOUT_MS", yc.TypingTimeoutMS)) * time.Millisecond,
		RedisURL:      envStr("REDIS_URL", yc.RedisURL),
		LogLevel:      envStr("LOG_LEVEL", yc.LogLevel),
	}

	if cfg.LogLevel == "debug" || cfg.LogLevel == "trace" {
		logger.SetDebug(true)
	}

	return cfg
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
