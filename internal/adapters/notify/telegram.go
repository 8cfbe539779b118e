package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTelegramBase = "https://api.telegram.org"

// Telegram envía mensajes HTML a un chat vía Bot API.
type Telegram struct {
	http   *http.Client
	base   string
	token  string
	chatID string
}

// NewTelegram crea un notificador de Telegram. base vacío usa la API pública.
func NewTelegram(base, token, chatID string) *Telegram {
	if base == "" {
		base = defaultTelegramBase
	}
	return &Telegram{
		http:   &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimRight(base, "/"),
		token:  token,
		chatID: chatID,
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify hace un único intento; el caller solo loguea el error.
func (t *Telegram) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  msg,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// El error de http incluye la URL con el token.
		return fmt.Errorf("telegram: send: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out sendMessageResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
