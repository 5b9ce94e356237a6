package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"thirdcoast.systems/relay/internal/faults"
)

const (
	schemeTelegram = "tg"

	// TelegramMaxObjectSize is the Bot API document limit on a local Bot API server.
	TelegramMaxObjectSize = 2_000_000_000

	defaultTelegramAPI = "https://api.telegram.org"
	fileInfoTTL        = 50 * time.Minute
)

// Telegram stores objects as documents posted to a chat. Handles are
// "tg:<message_id>:<file_id>".
type Telegram struct {
	APIURL string
	Token  string
	// ChatID is a numeric chat id or an @channel username.
	ChatID string
	Client *http.Client

	mu    sync.RWMutex
	files map[string]fileInfo
	now   func() time.Time
}

type fileInfo struct {
	path    string
	size    int64
	expires time.Time
}

var _ Channel = (*Telegram)(nil)

func NewTelegram(apiURL, token, chatID string) *Telegram {
	if apiURL == "" {
		apiURL = defaultTelegramAPI
	}
	return &Telegram{
		APIURL: strings.TrimRight(apiURL, "/"),
		Token:  token,
		ChatID: chatID,
		Client: &http.Client{},
		files:  map[string]fileInfo{},
		now:    time.Now,
	}
}

func (t *Telegram) Name() string         { return "telegram" }
func (t *Telegram) MaxObjectSize() int64 { return TelegramMaxObjectSize }

// ctxClient binds the bot library's requests to a context.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// bot returns a Bot API client for one call. It is built without the getMe
// round trip NewBotAPI makes.
func (t *Telegram) bot(ctx context.Context) *tgbotapi.BotAPI {
	b := &tgbotapi.BotAPI{Token: t.Token, Client: ctxClient{ctx: ctx, client: t.Client}, Buffer: 100}
	b.SetAPIEndpoint(t.APIURL + "/bot%s/%s")
	return b
}

// chat splits ChatID into the numeric id or channel username the library wants.
func (t *Telegram) chat() (int64, string) {
	if id, err := strconv.ParseInt(t.ChatID, 10, 64); err == nil {
		return id, ""
	}
	return 0, t.ChatID
}

func (t *Telegram) Upload(ctx context.Context, name, path string) (Handle, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "stat chunk", err)
	}
	if fi.Size() > TelegramMaxObjectSize {
		return "", faults.Newf(faults.StorageWriteFailed, "chunk %s is %s, over the telegram limit", name, humanize.Bytes(uint64(fi.Size())))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "open chunk", err)
	}
	defer f.Close()

	doc := tgbotapi.NewDocument(0, tgbotapi.FileReader{Name: filepath.Base(name), Reader: f})
	doc.ChatID, doc.ChannelUsername = t.chat()
	doc.DisableNotification = true

	msg, err := t.bot(ctx).Send(doc)
	if err != nil {
		return "", faults.Wrap(faults.StorageWriteFailed, "send document", err)
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return "", faults.New(faults.StorageWriteFailed, "telegram response has no document")
	}

	t.mu.Lock()
	delete(t.files, msg.Document.FileID)
	t.mu.Unlock()

	slog.Info("stored blob", "name", name, "channel", "telegram", "message_id", msg.MessageID, "size", humanize.Bytes(uint64(fi.Size())))
	return Handle(fmt.Sprintf("%s:%d:%s", schemeTelegram, msg.MessageID, msg.Document.FileID)), nil
}

func parseTelegramHandle(h Handle) (messageID int64, fileID string, err error) {
	if h.Scheme() != schemeTelegram {
		return 0, "", wrongScheme(schemeTelegram, h)
	}
	idStr, fileID, ok := strings.Cut(h.key(), ":")
	if !ok || fileID == "" {
		return 0, "", fmt.Errorf("blobstore: invalid handle %q", h)
	}
	messageID, err = strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("blobstore: invalid handle %q: %w", h, err)
	}
	return messageID, fileID, nil
}

// lookup resolves a file id through getFile. File paths stay valid for at
// least an hour, so lookups are cached for a little less.
func (t *Telegram) lookup(ctx context.Context, fileID string) (fileInfo, error) {
	now := t.now()
	t.mu.RLock()
	info, ok := t.files[fileID]
	t.mu.RUnlock()
	if ok && now.Before(info.expires) {
		return info, nil
	}

	f, err := t.bot(ctx).GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fileInfo{}, fmt.Errorf("telegram: getFile %s: %w", fileID, err)
	}
	if f.FilePath == "" {
		return fileInfo{}, fmt.Errorf("telegram: getFile returned no path for %s", fileID)
	}

	info = fileInfo{path: f.FilePath, size: int64(f.FileSize), expires: now.Add(fileInfoTTL)}
	t.mu.Lock()
	t.files[fileID] = info
	t.mu.Unlock()
	return info, nil
}

// fileURL is File.Link against APIURL instead of the public endpoint.
func (t *Telegram) fileURL(path string) string {
	if t.APIURL == defaultTelegramAPI {
		return (&tgbotapi.File{FilePath: path}).Link(t.Token)
	}
	return t.APIURL + "/file/bot" + t.Token + "/" + path
}

func (t *Telegram) Open(ctx context.Context, h Handle, offset, length int64) (io.ReadCloser, error) {
	_, fileID, err := parseTelegramHandle(h)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	info, err := t.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}

	// Local Bot API servers in --local mode return absolute paths.
	if filepath.IsAbs(info.path) {
		if _, err := os.Stat(info.path); err == nil {
			return openFile(info.path, offset, length)
		}
	}

	// the library has no ranged download, so reads go straight to the file endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.fileURL(info.path), nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 || length >= 0 {
		rng := fmt.Sprintf("bytes=%d-", offset)
		if length >= 0 {
			rng += strconv.FormatInt(offset+length-1, 10)
		}
		req.Header.Set("Range", rng)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.NetworkError, "telegram download", err)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		// Server ignored Range; skip and trim locally.
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, err
			}
		}
		if length < 0 {
			return resp.Body, nil
		}
		return readCloser{Reader: io.LimitReader(resp.Body, length), Closer: resp.Body}, nil
	default:
		resp.Body.Close()
		return nil, faults.Newf(faults.NetworkError, "telegram download: %s", resp.Status)
	}
}

func (t *Telegram) Stat(ctx context.Context, h Handle) (int64, error) {
	_, fileID, err := parseTelegramHandle(h)
	if err != nil {
		return 0, err
	}
	info, err := t.lookup(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return info.size, nil
}

func (t *Telegram) Delete(ctx context.Context, h Handle) error {
	messageID, fileID, err := parseTelegramHandle(h)
	if err != nil {
		return err
	}
	chatID, username := t.chat()
	del := tgbotapi.DeleteMessageConfig{ChatID: chatID, ChannelUsername: username, MessageID: int(messageID)}
	if _, err := t.bot(ctx).Request(del); err != nil {
		return fmt.Errorf("telegram: deleteMessage %d: %w", messageID, err)
	}

	t.mu.Lock()
	delete(t.files, fileID)
	t.mu.Unlock()
	return nil
}

func (t *Telegram) LocalPath(Handle) (string, bool) { return "", false }
