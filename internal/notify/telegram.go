package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram sends to one chat and answers /status and /help from it.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	mu       sync.Mutex
	status   StatusFunc
	pendings map[string]*pending
	cancel   context.CancelFunc
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

// NewTelegram talks to the public Bot API when endpoint is empty.
func NewTelegram(token, endpoint string, chatID int64, log *zap.Logger) (*Telegram, error) {
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	b, err := tgbot.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 40 * time.Second})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		bot:      b,
		chatID:   chatID,
		log:      log,
		pendings: make(map[string]*pending),
	}, nil
}

// SetStatus installs the /status renderer.
func (t *Telegram) SetStatus(fn StatusFunc) {
	t.mu.Lock()
	t.status = fn
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("[TG] send failed", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Confirm sends prompt with yes/no buttons and waits for the callback.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return true
	}

	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{ch: make(chan bool, 1), prompt: prompt}
	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pendings, token)
		t.mu.Unlock()
	}()

	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(
		tgbot.NewInlineKeyboardButtonData("✅ Start", "CONF::"+token),
		tgbot.NewInlineKeyboardButtonData("❌ Abort", "REJ::"+token),
	))
	sent, err := t.bot.Send(msg)
	if err != nil {
		t.log.Warn("[TG] confirm not sent", zap.Error(err))
		return false
	}
	t.mu.Lock()
	p.msgID = sent.MessageID
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		t.settle(p, "⏳ Timed out")
	case <-ctx.Done():
		t.settle(p, "⛔️ Cancelled")
	}
	return false
}

// HandleCallback resolves a pending Confirm from a button press.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) {
	if t == nil || t.bot == nil || cb == nil {
		return
	}
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	verb, token, ok := strings.Cut(cb.Data, "::")
	if !ok || token == "" {
		return
	}
	t.mu.Lock()
	p, found := t.pendings[token]
	delete(t.pendings, token)
	t.mu.Unlock()
	if !found {
		return
	}

	accepted := verb == "CONF"
	p.ch <- accepted
	if accepted {
		t.settle(p, "✅ Confirmed")
	} else {
		t.settle(p, "❌ Rejected")
	}
}

func (t *Telegram) settle(p *pending, outcome string) {
	t.mu.Lock()
	msgID := p.msgID
	t.mu.Unlock()
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, _ = t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, msgID, rm))
	_, _ = t.bot.Request(tgbot.NewEditMessageText(t.chatID, msgID, p.prompt+"\n\n"+outcome))
}

// reply renders the answer to a command from the operator chat.
func (t *Telegram) reply(cmd string) string {
	switch cmd {
	case "status":
		t.mu.Lock()
		fn := t.status
		t.mu.Unlock()
		if fn == nil {
			return "no run yet"
		}
		return fn()
	case "help", "start":
		return "/status - current mode, backend and balance"
	}
	return ""
}

// Start long-polls for commands and callbacks until Stop or ctx ends.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				if upd.CallbackQuery != nil {
					t.HandleCallback(upd.CallbackQuery)
				}
				m := upd.Message
				if m == nil || m.Chat == nil || m.Chat.ID != t.chatID || !m.IsCommand() {
					continue
				}
				if text := t.reply(m.Command()); text != "" {
					t.Send(text)
				}
			}
		}
	}()
	return nil
}

func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
