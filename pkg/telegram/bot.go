package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

type Bot struct {
	baseURL string
	chatID  string
	client  *http.Client
}

// NewBot creates a bot that posts to chatID. baseURL may be empty for the public API.
func NewBot(token, chatID, baseURL string) *Bot {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Bot{
		baseURL: strings.TrimRight(baseURL, "/") + "/bot" + token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends text to the configured shop chat.
func (b *Bot) Notify(ctx context.Context, text string) error {
	return b.SendMessage(ctx, b.chatID, text)
}

func (b *Bot) SendMessage(ctx context.Context, chatID, text string) error {
	params := url.Values{}
	params.Add("chat_id", chatID)
	params.Add("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/sendMessage", strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %s", resp.Status)
	}
	return nil
}
