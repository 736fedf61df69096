// Package chat собирает клиент диалогов воедино: живой канал, fallback-опрос,
// кеш и конвейер отправки. Одна Session — одна клиентская сессия локального
// пользователя.
//
// Правило консистентности: входящий кадр и завершившийся HTTP-вызов — это
// повод перечитать затронутые виды из API, а не данные сами по себе. Гонки
// инвалидаций разрешаются по принципу «последняя загрузка побеждает».
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/hirelink/chatclient/internal/api"
	"github.com/hirelink/chatclient/internal/config"
	"github.com/hirelink/chatclient/internal/logger"
	"github.com/hirelink/chatclient/internal/model"
	"github.com/hirelink/chatclient/internal/storage"
	"github.com/hirelink/chatclient/internal/ws"
)

// EventKind — вид уведомления для UI.
type EventKind int

const (
	// EventConversationsUpdated — список диалогов в кеше обновлён.
	EventConversationsUpdated EventKind = iota
	// EventMessagesUpdated — сообщения диалога ConversationID обновлены.
	EventMessagesUpdated
	// EventUnreadUpdated — суммарный счётчик непрочитанных обновлён.
	EventUnreadUpdated
	// EventPresenceUpdated — присутствие пользователя UserID обновлено.
	EventPresenceUpdated
	// EventModeChanged — переключение живой канал ⇄ опрос (поле Live).
	EventModeChanged
	// EventPartnerTyping — собеседник начал/перестал печатать.
	EventPartnerTyping
	// EventServerError — кадр error от сервера; кеш не изменён.
	EventServerError
)

// Event — уведомление UI. Данные живут в Store; событие лишь говорит,
// какой вид перечитать.
type Event struct {
	Kind           EventKind
	ConversationID string
	UserID         string
	Live           bool
	Typing         bool
	Message        string
}

const eventBufSize = 64

// Session — клиентская сессия обмена сообщениями.
type Session struct {
	cfg   *config.Config
	api   *api.Client
	store storage.Store
	conn  *ws.Conn

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	open          string // открытый диалог ("" — никакой)
	observed      string // пользователь, за присутствием которого следим
	pollCancel    context.CancelFunc
	typingConv    string // диалог с активным локальным индикатором печати
	typingTimer   *time.Timer
	partnerTimers map[string]*time.Timer // авто-сброс индикатора собеседника
	started       bool
}

// New создаёт сессию поверх готового кеша. Кешем владеет вызывающий.
func New(cfg *config.Config, store storage.Store) *Session {
	s := &Session{
		cfg:           cfg,
		api:           api.NewClient(cfg.APIBaseURL, cfg.Token),
		store:         store,
		events:        make(chan Event, eventBufSize),
		partnerTimers: make(map[string]*time.Timer),
	}
	// Рабочий контекст до Start: методы чтения кеша не должны падать на nil.
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = ws.New(ws.Config{
		URL:           cfg.WebSocketURL(),
		Token:         cfg.Token,
		OnFrame:       s.handleFrame,
		OnStateChange: s.handleStateChange,
		BaseDelay:     cfg.Reconnect.BaseDelay,
		MaxDelay:      cfg.Reconnect.MaxDelay,
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
		WriteTimeout:  cfg.WSWriteTimeout,
		PongTimeout:   cfg.WSPongTimeout,
		MaxFrameSize:  cfg.WSMaxMessageSize,
	})
	return s
}

// Events — канал уведомлений для UI. При переполнении буфера события
// теряются: это только сигналы перечитать кеш, не данные.
func (s *Session) Events() <-chan Event { return s.events }

// Live сообщает, работает ли сессия через живой канал (иначе — опрос).
func (s *Session) Live() bool { return s.conn.Connected() }

// Store возвращает кеш сессии для чтения представлений.
func (s *Session) Store() storage.Store { return s.store }

// Start запускает сессию: открывает живой канал, взводит fallback-опрос и
// делает первичную загрузку видов. Без токена сессия остаётся выключенной.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if !s.api.HasToken() {
		logger.Info("chat: no token, session disabled")
		return
	}

	s.refetchConversations()
	s.refetchUnread()

	// Пока канал не открыт — работаем опросом; handleStateChange выключит
	// его при переходе в Connected.
	s.startPolling()
	s.conn.Connect()
}

// Close завершает сессию: гасит канал, отменяет таймеры повтора, опроса и
// печати. Обязателен — иначе запланированная работа переживает сессию.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.stopPollingLocked()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	for conv, timer := range s.partnerTimers {
		timer.Stop()
		delete(s.partnerTimers, conv)
	}
	s.mu.Unlock()

	s.conn.Disconnect()
}

// OpenConversation делает диалог текущим: его сообщения опрашиваются чаще,
// присутствие собеседника отслеживается, индикатор печати прошлого диалога
// сбрасывается.
func (s *Session) OpenConversation(conversationID string) {
	s.mu.Lock()
	prev := s.open
	s.open = conversationID
	s.observed = ""
	if conv, ok, err := s.store.Conversation(s.ctx, conversationID); err == nil && ok {
		s.observed = conv.Partner.ID
	}
	observed := s.observed
	s.mu.Unlock()

	if prev != "" && prev != conversationID {
		s.ClearTyping(prev)
	}

	s.refetchMessages(conversationID)
	if observed != "" {
		s.refetchPresence(observed)
	}
}

// CloseConversation снимает выбор текущего диалога.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	prev := s.open
	s.open = ""
	s.observed = ""
	s.mu.Unlock()

	if prev != "" {
		s.ClearTyping(prev)
	}
}

// StartConversation возвращает диалог с пользователем userID, создавая его
// при первом обращении.
func (s *Session) StartConversation(ctx context.Context, userID string) (model.Conversation, error) {
	conv, err := s.api.GetOrCreateConversation(ctx, userID)
	if err != nil {
		return model.Conversation{}, err
	}
	s.refetchConversations()
	return conv, nil
}

func (s *Session) openConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) observedUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed
}

// emit кладёт событие в канал UI; при переполнении событие теряется.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		logger.Debugf("chat: event buffer full, dropping %d", e.Kind)
	}
}

// handleStateChange переключает режим live ⇄ polling вслед за состоянием
// соединения.
func (s *Session) handleStateChange(st ws.State) {
	switch st {
	case ws.StateConnected:
		s.stopPolling()
		// После (пере)подключения виды могли устареть — перечитываем всё.
		s.refetchConversations()
		s.refetchUnread()
		if conv := s.openConversation(); conv != "" {
			s.refetchMessages(conv)
		}
		s.emit(Event{Kind: EventModeChanged, Live: true})
		logger.Info("chat: live channel up")
	case ws.StateAbandoned, ws.StateReconnecting, ws.StateDisconnected:
		s.startPolling()
		s.emit(Event{Kind: EventModeChanged, Live: false})
		logger.Infof("chat: live channel %s, polling", st)
	}
}
