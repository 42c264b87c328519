package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/history-sweeper/internal/errors"
	"github.com/p-blackswan/history-sweeper/internal/peers"
)

// TelegramConfig configures the MTProto-backed transport.
type TelegramConfig struct {
	APIID     int
	APIHash   string
	Phone     string
	Password  string // 2FA password, optional
	LoginCode string // pre-supplied confirmation code, optional

	// CallTimeout bounds every protocol call so a dead connection can
	// never hang the run.
	CallTimeout time.Duration
}

// Telegram implements Transport over the MTProto client. One value
// manages exactly one account session, loaded from and stored to the
// provided session storage.
type Telegram struct {
	cfg    TelegramConfig
	client *telegram.Client
	api    *tg.Client
	peers  *peers.Cache
	logger zerolog.Logger
}

// NewTelegram builds the transport. The storage argument owns the
// opaque session blob; this type never touches the files itself.
func NewTelegram(cfg TelegramConfig, storage session.Storage, logger zerolog.Logger) *Telegram {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
	})
	return &Telegram{
		cfg:    cfg,
		client: client,
		api:    client.API(),
		peers:  peers.NewCache(4096),
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Run connects the client and executes fn while connected. All other
// methods must be called from inside fn.
func (t *Telegram) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := t.client.Run(ctx, fn)
	if err != nil && !isAppError(err) {
		return fmt.Errorf("telegram: connect: %v: %w", err, serrors.ErrTransportDown)
	}
	return err
}

// isAppError reports whether err already carries our taxonomy, so Run
// does not re-wrap failures that bubbled up from fn.
func isAppError(err error) bool {
	return errors.Is(err, serrors.ErrTransportDown) ||
		errors.Is(err, serrors.ErrAuthFailed) ||
		errors.Is(err, serrors.ErrAuthChallenge) ||
		errors.Is(err, serrors.ErrSessionCorrupt) ||
		errors.Is(err, context.Canceled)
}

// Authenticate restores the stored session or, when none is valid,
// performs the code/password flow with pre-supplied answers. A needed
// answer that was not supplied fails with ErrAuthChallenge: unattended
// runs never prompt.
func (t *Telegram) Authenticate(ctx context.Context) (Session, error) {
	status, err := t.client.Auth().Status(ctx)
	if err != nil {
		return Session{}, t.classify("auth.status", err)
	}

	if !status.Authorized {
		if t.cfg.Phone == "" {
			return Session{}, fmt.Errorf("no stored session and no phone configured: %w", serrors.ErrAuthChallenge)
		}
		code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
			if t.cfg.LoginCode == "" {
				return "", serrors.ErrAuthChallenge
			}
			return t.cfg.LoginCode, nil
		})
		flow := auth.NewFlow(auth.Constant(t.cfg.Phone, t.cfg.Password, code), auth.SendCodeOptions{})
		if err := flow.Run(ctx, t.client.Auth()); err != nil {
			if errors.Is(err, serrors.ErrAuthChallenge) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
				return Session{}, fmt.Errorf("login flow: %w", serrors.ErrAuthChallenge)
			}
			return Session{}, fmt.Errorf("login flow: %v: %w", err, serrors.ErrAuthFailed)
		}
		status, err = t.client.Auth().Status(ctx)
		if err != nil {
			return Session{}, t.classify("auth.status", err)
		}
		if !status.Authorized {
			return Session{}, serrors.ErrAuthFailed
		}
	}

	sess := Session{}
	if status.User != nil {
		sess.AccountID = status.User.ID
		sess.Username = status.User.Username
	}
	t.logger.Info().Int64("account_id", sess.AccountID).Msg("session authorized")
	return sess, nil
}

// ListChats fetches one page of the dialog list. Flood waits on the
// read path are short and handled in place; only delete calls surface
// them to the scheduler.
func (t *Telegram) ListChats(ctx context.Context, offset ChatOffset, limit int) ([]Chat, ChatOffset, bool, error) {
	var res tg.MessagesDialogsClass
	err := t.invoke(ctx, "messages.getDialogs", func(callCtx context.Context) error {
		var callErr error
		res, callErr = t.api.MessagesGetDialogs(callCtx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offset.Date,
			OffsetID:   offset.ID,
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      limit,
		})
		return callErr
	})
	if err != nil {
		return nil, offset, false, err
	}

	var (
		dialogs  []tg.DialogClass
		messages []tg.MessageClass
		users    []tg.UserClass
		chats    []tg.ChatClass
	)
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, messages, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		dialogs, messages, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	case *tg.MessagesDialogsNotModified:
		return nil, offset, false, nil
	default:
		return nil, offset, false, fmt.Errorf("messages.getDialogs: unexpected %T: %w", res, serrors.ErrTransportDown)
	}

	out := t.mapDialogs(dialogs, users, chats)

	next := nextDialogOffset(messages, offset)
	more := len(dialogs) == limit
	return out, next, more, nil
}

// mapDialogs joins dialog entries with their user/chat records and
// records every resolved peer in the cache.
func (t *Telegram) mapDialogs(dialogs []tg.DialogClass, users []tg.UserClass, chats []tg.ChatClass) []Chat {
	userByID := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if usr, ok := u.(*tg.User); ok {
			userByID[usr.ID] = usr
		}
	}
	chatByID := make(map[int64]tg.ChatClass, len(chats))
	for _, c := range chats {
		switch ch := c.(type) {
		case *tg.Chat:
			chatByID[ch.ID] = ch
		case *tg.Channel:
			chatByID[ch.ID] = ch
		}
	}

	out := make([]Chat, 0, len(dialogs))
	for _, d := range dialogs {
		dlg, ok := d.(*tg.Dialog)
		if !ok {
			continue // folders have no messages of their own
		}
		var chat Chat
		switch peer := dlg.Peer.(type) {
		case *tg.PeerUser:
			usr, ok := userByID[peer.UserID]
			if !ok {
				continue
			}
			chat = Chat{ID: usr.ID, Kind: ChatDirect, Title: usr.Username, AccessHash: usr.AccessHash}
			if usr.Self {
				chat.Kind = ChatSelf
			}
		case *tg.PeerChat:
			c, ok := chatByID[peer.ChatID].(*tg.Chat)
			if !ok {
				continue
			}
			chat = Chat{ID: c.ID, Kind: ChatGroup, Title: c.Title}
		case *tg.PeerChannel:
			c, ok := chatByID[peer.ChannelID].(*tg.Channel)
			if !ok {
				continue
			}
			kind := ChatGroup
			if c.Broadcast {
				kind = ChatChannel
			}
			chat = Chat{ID: c.ID, Kind: kind, Title: c.Title, AccessHash: c.AccessHash, Channel: true}
		default:
			continue
		}
		t.peers.Put(chat.ID, peers.Ref{AccessHash: chat.AccessHash, Channel: chat.Channel})
		out = append(out, chat)
	}
	return out
}

// nextDialogOffset derives the next page offset from the oldest top
// message in the page; dialogs are ordered by top message date.
func nextDialogOffset(messages []tg.MessageClass, prev ChatOffset) ChatOffset {
	next := prev
	oldest := 0
	for _, m := range messages {
		var id, date int
		switch msg := m.(type) {
		case *tg.Message:
			id, date = msg.ID, msg.Date
		case *tg.MessageService:
			id, date = msg.ID, msg.Date
		default:
			continue
		}
		if oldest == 0 || date < oldest {
			oldest = date
			next = ChatOffset{Date: date, ID: id}
		}
	}
	return next
}

// ListMessages fetches up to limit messages strictly older than
// beforeID, newest first. The newest, highest-value messages are
// evaluated first so a resume point is meaningful even when the tail
// of history is very long.
func (t *Telegram) ListMessages(ctx context.Context, chat Chat, beforeID int, limit int) ([]Message, error) {
	peer, err := t.inputPeer(chat)
	if err != nil {
		return nil, err
	}

	var res tg.MessagesMessagesClass
	err = t.invoke(ctx, "messages.getHistory", func(callCtx context.Context) error {
		var callErr error
		res, callErr = t.api.MessagesGetHistory(callCtx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: beforeID,
			Limit:    limit,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	var raw []tg.MessageClass
	switch h := res.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	case *tg.MessagesMessagesNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("messages.getHistory: unexpected %T: %w", res, serrors.ErrTransportDown)
	}

	out := make([]Message, 0, len(raw))
	for _, m := range raw {
		switch msg := m.(type) {
		case *tg.Message:
			out = append(out, Message{
				ID:     msg.ID,
				ChatID: chat.ID,
				Date:   time.Unix(int64(msg.Date), 0).UTC(),
				Out:    msg.Out,
				Pinned: msg.Pinned,
				Media:  mediaKind(msg.Media),
			})
		case *tg.MessageService:
			out = append(out, Message{
				ID:     msg.ID,
				ChatID: chat.ID,
				Date:   time.Unix(int64(msg.Date), 0).UTC(),
				Out:    msg.Out,
				Media:  "service",
			})
		}
	}
	return out, nil
}

// DeleteMessages revokes the batch for all participants. Flood waits
// and permanent denials come back as explicit result variants; only
// connectivity problems are errors.
func (t *Telegram) DeleteMessages(ctx context.Context, chat Chat, ids []int) (DeleteResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()

	var err error
	if chat.Channel {
		channel, peerErr := t.inputChannel(chat)
		if peerErr != nil {
			return DeleteResult{}, peerErr
		}
		_, err = t.api.ChannelsDeleteMessages(callCtx, &tg.ChannelsDeleteMessagesRequest{
			Channel: channel,
			ID:      ids,
		})
	} else {
		_, err = t.api.MessagesDeleteMessages(callCtx, &tg.MessagesDeleteMessagesRequest{
			Revoke: true,
			ID:     ids,
		})
	}
	if err == nil {
		return DeleteResult{Status: DeleteAck}, nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return DeleteResult{Status: DeleteRateLimited, RetryAfter: wait}, nil
	}
	if tgerr.Is(err, "MESSAGE_DELETE_FORBIDDEN", "CHAT_ADMIN_REQUIRED", "MESSAGE_ID_INVALID") {
		return DeleteResult{Status: DeleteDenied}, nil
	}
	return DeleteResult{}, t.classify("messages.deleteMessages", err)
}

// invoke runs one read-path call with the per-call timeout, sleeping
// through flood waits in place and classifying everything else.
func (t *Telegram) invoke(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	for {
		callCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if wait, ok := tgerr.AsFloodWait(err); ok {
			t.logger.Warn().Str("method", method).Dur("wait", wait).Msg("flood wait on read path")
			timer := time.NewTimer(wait + time.Second)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}
		return t.classify(method, err)
	}
}

// classify maps a raw client error into the engine's taxonomy.
func (t *Telegram) classify(method string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if rpcErr.Code == 401 {
			return fmt.Errorf("%s: %s: %w", method, rpcErr.Type, serrors.ErrAuthFailed)
		}
		return serrors.NewRPCError(method, rpcErr.Code, rpcErr.Type, err)
	}
	// Deadline hits and everything non-RPC (dial failures, resets) are
	// connectivity loss.
	return fmt.Errorf("%s: %v: %w", method, err, serrors.ErrTransportDown)
}

func (t *Telegram) inputPeer(chat Chat) (tg.InputPeerClass, error) {
	switch chat.Kind {
	case ChatSelf:
		return &tg.InputPeerSelf{}, nil
	case ChatDirect:
		hash := chat.AccessHash
		if hash == 0 {
			if ref, ok := t.peers.Get(chat.ID); ok {
				hash = ref.AccessHash
			}
		}
		return &tg.InputPeerUser{UserID: chat.ID, AccessHash: hash}, nil
	default:
		if chat.Channel {
			channel, err := t.inputChannel(chat)
			if err != nil {
				return nil, err
			}
			return &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: channel.AccessHash}, nil
		}
		return &tg.InputPeerChat{ChatID: chat.ID}, nil
	}
}

func (t *Telegram) inputChannel(chat Chat) (*tg.InputChannel, error) {
	hash := chat.AccessHash
	if hash == 0 {
		ref, ok := t.peers.Get(chat.ID)
		if !ok {
			return nil, fmt.Errorf("no access hash for channel %d: %w", chat.ID, serrors.ErrTransportDown)
		}
		hash = ref.AccessHash
	}
	return &tg.InputChannel{ChannelID: chat.ID, AccessHash: hash}, nil
}

// mediaKind maps protocol media to the retention vocabulary. Videos
// and voice notes arrive as documents; their attributes tell them
// apart from plain files.
func mediaKind(media tg.MessageMediaClass) string {
	switch m := media.(type) {
	case nil:
		return ""
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaDocument:
		return documentKind(m.Document)
	case *tg.MessageMediaWebPage:
		return ""
	default:
		return "other"
	}
}

func documentKind(doc tg.DocumentClass) string {
	d, ok := doc.(*tg.Document)
	if !ok {
		return "document"
	}
	for _, attr := range d.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			return "video"
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return "voice"
			}
		}
	}
	return "document"
}
