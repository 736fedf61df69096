// Package ws владеет жизненным циклом живого канала к сервису диалогов:
// подключение с токеном, чтение кадров, переподключение с экспоненциальной
// задержкой и окончательный отказ (переход на опрос). В каждый момент времени
// открыт не более чем один сокет и взведён не более чем один таймер повтора.
package ws

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hirelink/chatclient/internal/logger"
	"github.com/hirelink/chatclient/internal/protocol"
)

// State — состояние машины соединения.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateAbandoned — терминальное состояние: повторов больше не будет,
	// клиент навсегда (до нового Connect) переходит на опрос.
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ErrNotConnected возвращает Send вне состояния Connected: кадры не
// буферизуются, вызывающий обязан уйти на HTTP-путь.
var ErrNotConnected = errors.New("ws: not connected")

// Сервер, не говорящий на протоколе реального времени, закрывает соединение
// этим кодом. Повторять подключение бессмысленно.
const unsupportedCloseCode = websocket.CloseUnsupportedData

const (
	defaultBaseDelay    = 1000 * time.Millisecond
	defaultMaxDelay     = 30 * time.Second
	defaultMaxAttempts  = 5
	defaultWriteTimeout = 10 * time.Second
	defaultPongTimeout  = 60 * time.Second
	defaultMaxFrameSize = 4096
)

// Config — параметры соединения. OnFrame и OnStateChange вызываются из
// горутин соединения; обработчики должны быть быстрыми и не звать Connect
// или Disconnect синхронно.
type Config struct {
	// URL живого канала (ws:// или wss://), без query.
	URL string
	// Token прикрепляется query-параметром token. Пустой токен делает
	// Connect no-op: без учётных данных канал не открывается.
	Token string

	OnFrame       func(protocol.InboundFrame)
	OnStateChange func(State)

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxFrameSize int64

	// Dialer для тестов; nil — websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = defaultMaxFrameSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return cfg
}

// Conn — владелец единственного живого сокета. Сокет никогда не отдаётся
// наружу: только Connect/Send/Disconnect.
type Conn struct {
	cfg Config

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        int // поколение сокета; события устаревших поколений игнорируются
	attempts   int
	retryTimer *time.Timer
	closed     bool
}

func New(cfg Config) *Conn {
	return &Conn{cfg: cfg.withDefaults(), state: StateDisconnected}
}

// State возвращает текущее состояние машины.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected сообщает, можно ли слать кадры.
func (c *Conn) Connected() bool { return c.State() == StateConnected }

// Connect открывает канал. Без токена — no-op. Прежний сокет и таймер
// повтора сбрасываются: живое соединение всегда одно.
func (c *Conn) Connect() {
	if c.cfg.Token == "" {
		logger.Debugf("ws: connect skipped, no token")
		return
	}

	c.mu.Lock()
	c.closed = false
	c.attempts = 0
	c.stopRetryLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.dial(gen)
}

// Disconnect гасит соединение: отменяет таймер повтора и закрывает сокет.
// Идемпотентен; обязателен при завершении сессии, иначе утекают таймеры.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopRetryLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
}

// Send пишет кадр в канал. Вне Connected возвращает ErrNotConnected —
// очереди исходящих нет, кадр не буферизуется.
func (c *Conn) Send(f protocol.OutboundFrame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	gen := c.gen
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		c.mu.Unlock()
		c.failed(gen, err, -1)
		return err
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()

	if err != nil {
		c.failed(gen, err, -1)
		return err
	}
	logger.Debugf("ws: sent %s", f.Type)
	return nil
}

func (c *Conn) dial(gen int) {
	u := c.cfg.URL
	if c.cfg.Token != "" {
		sep := "?"
		if len(u) > 0 && u[len(u)-1] == '?' {
			sep = ""
		}
		u += sep + "token=" + url.QueryEscape(c.cfg.Token)
	}

	conn, resp, err := c.cfg.Dialer.Dial(u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		logger.Errorf("ws: dial: %v", err)
		c.failed(gen, err, -1)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.gen {
		// Пока набирались — соединение отменили или заменили.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	logger.Infof("ws: connected to %s", c.cfg.URL)
	go c.readLoop(conn, gen)
}

func (c *Conn) readLoop(conn *websocket.Conn, gen int) {
	conn.SetReadLimit(c.cfg.MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		// Понг пишется под тем же мьютексом, что и Send: у gorilla не может
		// быть двух одновременных писателей.
		c.mu.Lock()
		defer c.mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			code := -1
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			c.failed(gen, err, code)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))

		frame, err := protocol.Decode(raw)
		if err != nil {
			logger.Errorf("ws: bad frame: %v", err)
			continue
		}
		logger.Debugf("ws: received %s", frame.Type)
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(frame)
		}
	}
}

// failed обрабатывает любой обрыв соединения поколения gen: классифицирует
// код закрытия и либо взводит таймер повтора, либо сдаётся.
func (c *Conn) failed(gen int, err error, closeCode int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	// Поколение исчерпано: повторный failed того же сокета (читатель и
	// писатель могут споткнуться одновременно) будет проигнорирован.
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if closeCode == unsupportedCloseCode {
		// Сервер не говорит на протоколе реального времени. Повторы
		// бессмысленны — навсегда переходим на опрос.
		c.setStateLocked(StateAbandoned)
		c.mu.Unlock()
		logger.Infof("ws: server does not support the realtime protocol, falling back to polling")
		return
	}

	if c.attempts >= c.cfg.MaxAttempts {
		c.setStateLocked(StateAbandoned)
		c.mu.Unlock()
		logger.Errorf("ws: giving up after %d attempts: %v", c.cfg.MaxAttempts, err)
		return
	}

	delay := backoffDelay(c.cfg.BaseDelay, c.cfg.MaxDelay, c.attempts)
	c.attempts++
	nextGen := c.gen
	c.setStateLocked(StateReconnecting)
	c.stopRetryLocked()
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(nextGen) })
	c.mu.Unlock()

	logger.Infof("ws: connection lost (%v), retry in %s", err, delay)
}

func (c *Conn) retry(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.dial(gen)
}

func (c *Conn) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Conn) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.cfg.OnStateChange != nil {
		// Колбэк уведомляется из отдельной горутины, чтобы обработчик мог
		// безопасно читать State().
		go c.cfg.OnStateChange(s)
	}
}

// backoffDelay: min(base·2^attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}
