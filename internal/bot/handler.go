// Package bot implements the onboarding dialogues on top of the Telegram
// transport: client phone registration and the administrator phone change.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/message"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/phone"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/session"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/telegram"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/user"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

// Transport is the part of telegram.Client the handler talks to.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Directory is implemented by user.Service.
type Directory interface {
	Enroll(ctx context.Context, id int64) (entity.Role, bool, error)
	Role(ctx context.Context, id int64) entity.Role
	HasProfile(ctx context.Context, id int64) bool
	CreateProfile(ctx context.Context, id int64, number string) error
	FindClientByPhone(ctx context.Context, number string) (int64, error)
	ChangePhone(ctx context.Context, id int64, number string) error
	AdminIDs(ctx context.Context) []int64
}

// MessageTracker is implemented by message.Tracker.
type MessageTracker interface {
	Record(ctx context.Context, userID, messageID int64) error
	Retract(ctx context.Context, d message.Deleter, userID, chatID int64) int
}

type Handler struct {
	tg       Transport
	dir      Directory
	tracker  MessageTracker
	sessions *session.Store
	ids      *utilities.TraceIDs
	log      *zap.SugaredLogger
}

func NewHandler(tg Transport, dir Directory, tracker MessageTracker, sessions *session.Store, ids *utilities.TraceIDs, log *zap.SugaredLogger) *Handler {
	return &Handler{tg: tg, dir: dir, tracker: tracker, sessions: sessions, ids: ids, log: log}
}

// turn is the context of one update: who sent it, where to answer, and the
// held session.
type turn struct {
	userID int64
	chatID int64
	sess   *session.Handle
	log    *zap.SugaredLogger
}

// HandleUpdate processes one update. The user's session is held for the
// whole call so updates of one user never interleave.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) {
	kind := u.Kind()
	start := time.Now()
	metrics.UpdatesTotal.WithLabelValues(kind).Inc()
	defer func() {
		metrics.UpdateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	userID := u.UserID()
	if userID == 0 {
		return
	}
	log := h.log.With("trace_id", h.ids.Next(), "user_id", userID, "update_id", u.UpdateID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("update handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	sess := h.sessions.Acquire(userID)
	defer sess.Release()
	if sess.Expired() {
		log.Infow("stale session reset")
	}

	t := &turn{userID: userID, chatID: userID, sess: sess, log: log}
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.Message != nil && cq.Message.Chat != nil {
			t.chatID = cq.Message.Chat.ID
		}
		h.onCallback(ctx, t, cq)
	case u.Message != nil:
		if u.Message.Chat != nil {
			t.chatID = u.Message.Chat.ID
		}
		h.onMessage(ctx, t, u.Message.Text)
	}
}

func (h *Handler) onMessage(ctx context.Context, t *turn, text string) {
	if isCommand(text, commandStart) {
		h.onStart(ctx, t)
		return
	}

	st := t.sess.Session().State
	if st.AdminFlow() && phone.IsCancel(text) {
		h.cancelAdminFlow(ctx, t)
		return
	}
	switch st {
	case session.AwaitingPhone:
		h.onPhone(ctx, t, text)
	case session.AwaitingConfirmation:
		h.send(ctx, t, textUseButtons, nil)
	case session.AwaitingOldPhone:
		h.onOldPhone(ctx, t, text)
	case session.AwaitingNewPhone:
		h.onNewPhone(ctx, t, text)
	default:
		t.log.Debugw("ignore text outside a dialogue", "state", st.String())
	}
}

func (h *Handler) onStart(ctx context.Context, t *turn) {
	role, isNew, err := h.dir.Enroll(ctx, t.userID)
	if err != nil {
		t.log.Errorw("enroll user failed", "err", err)
		h.send(ctx, t, textTryLater, nil)
		return
	}
	h.transition(t, session.Idle, session.Payload{})

	if role == entity.RoleAdmin {
		if isNew {
			h.send(ctx, t, textWelcome, nil)
		}
		h.adminMenu(ctx, t)
		return
	}
	if h.dir.HasProfile(ctx, t.userID) {
		h.clientMenu(ctx, t)
		return
	}
	if isNew {
		h.send(ctx, t, textWelcome, nil)
	}
	h.send(ctx, t, textAskPhone, nil)
	h.transition(t, session.AwaitingPhone, session.Payload{})
}

func (h *Handler) onPhone(ctx context.Context, t *turn, text string) {
	number, err := phone.Parse(text)
	if err != nil {
		h.send(ctx, t, textBadPhone, nil)
		return
	}
	h.transition(t, session.AwaitingConfirmation, session.Payload{Phone: number})

	h.send(ctx, t, fmt.Sprintf(textPhoneEntered, number), nil)
	promptID := h.send(ctx, t, textConfirmPrompt, telegram.Keyboard(
		telegram.InlineKeyboardButton{Text: textConfirmYes, CallbackData: CallbackConfirmPhone},
		telegram.InlineKeyboardButton{Text: textConfirmEdit, CallbackData: CallbackChangePhone},
	))
	if promptID != 0 {
		if err := h.tracker.Record(ctx, t.userID, promptID); err != nil {
			t.log.Warnw("record confirmation prompt failed", "message_id", promptID, "err", err)
		}
	}
}

func (h *Handler) onCallback(ctx context.Context, t *turn, cq *telegram.CallbackQuery) {
	notice := ""
	defer func() {
		if err := h.tg.AnswerCallbackQuery(ctx, cq.ID, notice); err != nil {
			t.log.Debugw("answer callback failed", "err", err)
		}
	}()

	switch cq.Data {
	case CallbackConfirmPhone:
		notice = h.onConfirm(ctx, t)
	case CallbackChangePhone:
		notice = h.onEditPhone(ctx, t)
	case CallbackAdminChangePhone:
		if h.dir.Role(ctx, t.userID) != entity.RoleAdmin {
			t.log.Warnw("non-admin requested admin action", "callback", cq.Data)
			notice = textNotAllowed
			return
		}
		h.transition(t, session.AwaitingOldPhone, session.Payload{})
		h.send(ctx, t, textAskOldPhone, nil)
	case CallbackMainMenu:
		if h.dir.Role(ctx, t.userID) == entity.RoleAdmin {
			h.adminMenu(ctx, t)
		} else {
			h.clientMenu(ctx, t)
		}
	default:
		t.log.Debugw("unknown callback", "callback", cq.Data)
	}
}

func (h *Handler) onConfirm(ctx context.Context, t *turn) string {
	s := t.sess.Session()
	if s.State != session.AwaitingConfirmation || s.Payload.Phone == "" {
		return textStalePrompt
	}
	number := s.Payload.Phone

	err := h.dir.CreateProfile(ctx, t.userID, number)
	switch {
	case err == nil:
	case errors.Is(err, user.ErrPhoneTaken), errors.Is(err, phone.ErrInvalid):
		h.tracker.Retract(ctx, h.tg, t.userID, t.chatID)
		h.send(ctx, t, textPhoneTaken, nil)
		h.transition(t, session.AwaitingPhone, session.Payload{})
		return ""
	case errors.Is(err, user.ErrProfileExists):
		t.log.Infow("client already has a profile", "phone", number)
		h.tracker.Retract(ctx, h.tg, t.userID, t.chatID)
		h.send(ctx, t, textAlreadyRegistered, nil)
		h.transition(t, session.Idle, session.Payload{})
		h.clientMenu(ctx, t)
		return ""
	default:
		t.log.Errorw("create client profile failed", "err", err)
		h.send(ctx, t, textSaveFailed, nil)
		return ""
	}

	h.tracker.Retract(ctx, h.tg, t.userID, t.chatID)
	h.send(ctx, t, fmt.Sprintf(textPhoneSaved, number), nil)
	h.notifyAdmins(ctx, t, fmt.Sprintf(textAdminNewClient, number, t.userID))
	h.transition(t, session.Idle, session.Payload{})
	h.clientMenu(ctx, t)
	return ""
}

func (h *Handler) onEditPhone(ctx context.Context, t *turn) string {
	if t.sess.Session().State != session.AwaitingConfirmation {
		return textStalePrompt
	}
	h.tracker.Retract(ctx, h.tg, t.userID, t.chatID)
	h.transition(t, session.AwaitingPhone, session.Payload{})
	h.send(ctx, t, textAskPhone, nil)
	return ""
}

func (h *Handler) onOldPhone(ctx context.Context, t *turn, text string) {
	number, err := phone.Parse(text)
	if err != nil {
		h.send(ctx, t, textBadOldPhone, nil)
		return
	}

	target, err := h.dir.FindClientByPhone(ctx, number)
	switch {
	case errors.Is(err, user.ErrNotFound):
		h.send(ctx, t, textClientNotFound, nil)
		return
	case err != nil:
		t.log.Errorw("find client by phone failed", "err", err)
		h.send(ctx, t, textTryLater, nil)
		return
	}

	h.transition(t, session.AwaitingNewPhone, session.Payload{OldPhone: number, TargetUserID: target})
	h.send(ctx, t, fmt.Sprintf(textAskNewPhone, number), nil)
}

func (h *Handler) onNewPhone(ctx context.Context, t *turn, text string) {
	number, err := phone.Parse(text)
	if err != nil {
		h.send(ctx, t, textBadNewPhone, nil)
		return
	}

	p := t.sess.Session().Payload
	err = h.dir.ChangePhone(ctx, p.TargetUserID, number)
	switch {
	case err == nil:
	case errors.Is(err, user.ErrPhoneTaken):
		h.send(ctx, t, textNewPhoneTaken, nil)
		return
	case errors.Is(err, user.ErrNotFound):
		h.send(ctx, t, textClientGone, nil)
		h.cancelAdminFlow(ctx, t)
		return
	default:
		t.log.Errorw("change client phone failed", "target_user_id", p.TargetUserID, "err", err)
		h.send(ctx, t, textTryLater, nil)
		return
	}

	t.log.Infow("client phone changed", "target_user_id", p.TargetUserID)
	if _, err := h.tg.SendMessage(ctx, p.TargetUserID, fmt.Sprintf(textClientNotified, number), nil); err != nil {
		t.log.Warnw("notify client about phone change failed", "target_user_id", p.TargetUserID, "err", err)
		h.send(ctx, t, textNotifyFailed, nil)
	}
	h.send(ctx, t, fmt.Sprintf(textPhoneChanged, p.OldPhone, number), nil)
	h.transition(t, session.Idle, session.Payload{})
	h.adminMenu(ctx, t)
}

func (h *Handler) cancelAdminFlow(ctx context.Context, t *turn) {
	h.transition(t, session.Idle, session.Payload{})
	h.adminMenu(ctx, t)
}

func (h *Handler) notifyAdmins(ctx context.Context, t *turn, text string) {
	for _, id := range h.dir.AdminIDs(ctx) {
		if _, err := h.tg.SendMessage(ctx, id, text, nil); err != nil {
			t.log.Warnw("notify admin failed", "admin_id", id, "err", err)
		}
	}
}

func (h *Handler) adminMenu(ctx context.Context, t *turn) {
	h.send(ctx, t, textAdminMenu, nil)
	h.send(ctx, t, textChooseAction, telegram.Keyboard(
		telegram.InlineKeyboardButton{Text: textAdminChangeBtn, CallbackData: CallbackAdminChangePhone},
	))
}

func (h *Handler) clientMenu(ctx context.Context, t *turn) {
	h.send(ctx, t, textClientMenu, nil)
	h.send(ctx, t, textChooseAction, telegram.Keyboard())
}

// send delivers text to the turn's chat and returns the message id, 0 when
// sending failed. Failures are logged only.
func (h *Handler) send(ctx context.Context, t *turn, text string, markup *telegram.InlineKeyboardMarkup) int64 {
	id, err := h.tg.SendMessage(ctx, t.chatID, text, markup)
	if err != nil {
		t.log.Warnw("send message failed", "err", err)
		return 0
	}
	return id
}

func (h *Handler) transition(t *turn, to session.State, p session.Payload) {
	from := t.sess.Session().State
	t.sess.Set(to, p)
	if from != to {
		metrics.TransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		t.log.Debugw("session transition", "from", from.String(), "to", to.String())
	}
}

// isCommand matches "/start", "/start payload" and "/start@botname".
func isCommand(text, cmd string) bool {
	f := strings.Fields(text)
	if len(f) == 0 {
		return false
	}
	name, _, _ := strings.Cut(f[0], "@")
	return name == cmd
}
