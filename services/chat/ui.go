package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hirelink/chatclient/internal/chat"
	"github.com/hirelink/chatclient/internal/model"
)

// sessionEventMsg wraps a chat.Event for delivery through the
// bubbletea message loop.
type sessionEventMsg struct {
	event chat.Event
}

// focusRegion identifies which pane has keyboard focus.
type focusRegion int

const (
	// focusList means navigation keys move the conversation cursor.
	focusList focusRegion = iota
	// focusInput means keystrokes go to the message input.
	focusInput
)

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Open        key.Binding
	FocusToggle key.Binding
	Reply       key.Binding
	Delete      key.Binding
	Back        key.Binding
	Quit        key.Binding
}

var defaultKeyMap = keyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Open: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	FocusToggle: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch pane"),
	),
	Reply: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "reply to last message"),
	),
	Delete: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "delete own last message"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

var (
	styleTitle    = lipgloss.NewStyle().Bold(true)
	styleLive     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stylePolling  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleSelected = lipgloss.NewStyle().Reverse(true)
	styleBadge    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleDeleted  = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	styleMine     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	styleNotice   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

const listWidth = 30

type appModel struct {
	session *chat.Session
	keys    keyMap

	conversations []model.Conversation
	cursor        int
	active        string // open conversation ID, empty on the list screen
	messages      []model.Message
	presence      model.Presence
	unread        int

	input    textinput.Model
	body     viewport.Model
	focus    focusRegion
	replyTo  string // message ID the next send replies to
	live     bool
	typing   bool // partner is typing in the open conversation
	notice   string
	width    int
	height   int
	sized    bool
}

func newModel(session *chat.Session) appModel {
	input := textinput.New()
	input.Placeholder = "Write a message"
	input.CharLimit = 4000
	return appModel{
		session: session,
		keys:    defaultKeyMap,
		input:   input,
		focus:   focusList,
	}
}

func (m appModel) Init() tea.Cmd {
	return nil
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.body.Width = max(1, m.width-listWidth-3)
		m.body.Height = max(1, m.height-4)
		m.sized = true
		m.refreshBody()
		return m, nil

	case sessionEventMsg:
		return m.handleSessionEvent(msg.event), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m appModel) handleSessionEvent(e chat.Event) appModel {
	ctx := context.Background()
	switch e.Kind {
	case chat.EventConversationsUpdated:
		m.conversations, _ = m.session.Store().Conversations(ctx)
		if m.cursor >= len(m.conversations) {
			m.cursor = max(0, len(m.conversations)-1)
		}
	case chat.EventMessagesUpdated:
		if e.ConversationID == m.active {
			m.messages, _ = m.session.Store().Messages(ctx, m.active)
			m.refreshBody()
		}
	case chat.EventUnreadUpdated:
		m.unread, _ = m.session.Store().UnreadTotal(ctx)
	case chat.EventPresenceUpdated:
		if conv := m.activeConversation(); conv != nil && e.UserID == conv.Partner.ID {
			m.presence, _, _ = m.session.Store().Presence(ctx, e.UserID)
		}
	case chat.EventModeChanged:
		m.live = e.Live
	case chat.EventPartnerTyping:
		if e.ConversationID == m.active {
			m.typing = e.Typing
		}
	case chat.EventServerError:
		m.notice = e.Message
	}
	return m
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.focus == focusInput {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Open):
		if m.cursor < len(m.conversations) {
			m.openConversation(m.conversations[m.cursor].ID)
			m.focus = focusInput
			m.input.Focus()
		}
	case key.Matches(msg, m.keys.FocusToggle):
		if m.active != "" {
			m.focus = focusInput
			m.input.Focus()
		}
	}
	return m, nil
}

func (m appModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch {
	case key.Matches(msg, m.keys.Back):
		m.session.ClearTyping(m.active)
		m.input.Blur()
		m.focus = focusList
		m.replyTo = ""
		return m, nil

	case key.Matches(msg, m.keys.FocusToggle):
		m.session.ClearTyping(m.active)
		m.input.Blur()
		m.focus = focusList
		return m, nil

	case key.Matches(msg, m.keys.Reply):
		if id := m.lastPartnerMessageID(); id != "" {
			if m.replyTo == id {
				m.replyTo = ""
			} else {
				m.replyTo = id
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if id := m.lastOwnMessageID(); id != "" {
			if err := m.session.DeleteMessage(ctx, m.active, id); err != nil {
				m.notice = fmt.Sprintf("delete failed: %v", err)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Open):
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		m.input.SetValue("")
		m.notice = ""
		replyTo := m.replyTo
		m.replyTo = ""
		if err := m.session.SendText(ctx, m.active, content, replyTo); err != nil {
			// The draft comes back so nothing typed is lost.
			m.input.SetValue(content)
			m.replyTo = replyTo
			m.notice = fmt.Sprintf("send failed: %v", err)
		}
		m.messages, _ = m.session.Store().Messages(ctx, m.active)
		m.refreshBody()
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.session.SetTyping(m.active)
	}
	return m, cmd
}

func (m *appModel) openConversation(id string) {
	ctx := context.Background()
	m.active = id
	m.typing = false
	m.replyTo = ""
	m.session.OpenConversation(id)
	m.messages, _ = m.session.Store().Messages(ctx, id)
	if conv := m.activeConversation(); conv != nil {
		m.presence, _, _ = m.session.Store().Presence(ctx, conv.Partner.ID)
		if conv.UnreadCount > 0 {
			if err := m.session.MarkRead(ctx, id); err != nil {
				m.notice = fmt.Sprintf("mark read failed: %v", err)
			}
		}
	}
	m.refreshBody()
}

func (m *appModel) activeConversation() *model.Conversation {
	for i := range m.conversations {
		if m.conversations[i].ID == m.active {
			return &m.conversations[i]
		}
	}
	return nil
}

// isMine reports whether a message was sent by the local user. In a
// two-party conversation everything not authored by the partner is
// ours, including pending echoes that carry no sender at all.
func (m *appModel) isMine(msg model.Message) bool {
	if msg.Pending {
		return true
	}
	conv := m.activeConversation()
	return conv != nil && msg.Sender.ID != conv.Partner.ID
}

func (m *appModel) lastPartnerMessageID() string {
	// Messages are stored newest-first.
	for _, msg := range m.messages {
		if !m.isMine(msg) && !msg.IsDeleted {
			return msg.ID
		}
	}
	return ""
}

func (m *appModel) lastOwnMessageID() string {
	for _, msg := range m.messages {
		if m.isMine(msg) && !msg.Pending && !msg.IsDeleted {
			return msg.ID
		}
	}
	return ""
}

func (m *appModel) refreshBody() {
	if !m.sized {
		return
	}
	m.body.SetContent(m.renderMessages())
	m.body.GotoBottom()
}

func (m *appModel) renderMessages() string {
	if m.active == "" {
		return styleDim.Render("Select a conversation and press enter.")
	}
	conv := m.activeConversation()
	var b strings.Builder
	// Oldest at the top, like every chat client.
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		name := "you"
		nameStyle := styleMine
		if !m.isMine(msg) {
			nameStyle = styleTitle
			if conv != nil {
				name = conv.Partner.Username
			} else {
				name = msg.Sender.Username
			}
		}
		if msg.ReplyTo != nil {
			fmt.Fprintf(&b, "  %s\n", styleDim.Render(
				fmt.Sprintf("↳ %s: %s", msg.ReplyTo.SenderName, msg.ReplyTo.Preview)))
		}
		stamp := styleDim.Render(msg.CreatedAt.Local().Format("15:04"))
		switch {
		case msg.IsDeleted:
			fmt.Fprintf(&b, "%s %s %s\n", stamp, nameStyle.Render(name),
				styleDeleted.Render("message deleted"))
		case msg.ContentType != model.ContentTypeText:
			label := msg.FileName
			if label == "" {
				label = string(msg.ContentType)
			}
			fmt.Fprintf(&b, "%s %s 📎 %s\n", stamp, nameStyle.Render(name), label)
			if msg.Content != "" {
				fmt.Fprintf(&b, "       %s\n", msg.Content)
			}
		default:
			suffix := ""
			if msg.Pending {
				suffix = styleDim.Render(" …")
			}
			fmt.Fprintf(&b, "%s %s %s%s\n", stamp, nameStyle.Render(name), msg.Content, suffix)
		}
	}
	return b.String()
}

func (m appModel) View() string {
	if !m.sized {
		return "loading..."
	}
	status := m.renderStatusBar()
	list := m.renderConversationList()
	right := m.renderChatPane()
	panes := lipgloss.JoinHorizontal(lipgloss.Top, list, " │ ", right)
	return lipgloss.JoinVertical(lipgloss.Left, status, panes)
}

func (m appModel) renderStatusBar() string {
	mode := stylePolling.Render("○ polling")
	if m.live {
		mode = styleLive.Render("● live")
	}
	parts := []string{styleTitle.Render("HireLink Chat"), mode}
	if m.unread > 0 {
		parts = append(parts, styleBadge.Render(fmt.Sprintf("%d unread", m.unread)))
	}
	if m.notice != "" {
		parts = append(parts, styleNotice.Render(m.notice))
	}
	return strings.Join(parts, "  ")
}

func (m appModel) renderConversationList() string {
	lines := make([]string, 0, len(m.conversations)+1)
	for i, conv := range m.conversations {
		name := conv.Partner.Username
		if name == "" {
			name = conv.Partner.ID
		}
		if len(name) > listWidth-6 {
			name = name[:listWidth-6]
		}
		line := name
		if conv.UnreadCount > 0 {
			line = fmt.Sprintf("%s %s", name, styleBadge.Render(fmt.Sprintf("(%d)", conv.UnreadCount)))
		}
		if i == m.cursor && m.focus == focusList {
			line = styleSelected.Render(line)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, styleDim.Render("no conversations"))
	}
	return lipgloss.NewStyle().Width(listWidth).Render(strings.Join(lines, "\n"))
}

func (m appModel) renderChatPane() string {
	header := ""
	if conv := m.activeConversation(); conv != nil {
		dot := styleDim.Render("○")
		if m.presence.IsOnline {
			dot = styleLive.Render("●")
		}
		header = fmt.Sprintf("%s %s", dot, styleTitle.Render(conv.Partner.Username))
	}
	typing := " "
	if m.typing {
		typing = styleDim.Render("typing…")
	}
	inputLine := m.input.View()
	if m.replyTo != "" {
		preview := ""
		for _, msg := range m.messages {
			if msg.ID == m.replyTo {
				preview = msg.Preview(40)
				break
			}
		}
		inputLine = styleDim.Render(fmt.Sprintf("↳ replying: %s", preview)) + "\n" + inputLine
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, m.body.View(), typing, inputLine)
}
