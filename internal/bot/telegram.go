package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot sends plain text messages to one fixed chat.
type Bot struct {
	API    *tgbotapi.BotAPI
	chatID string
}

// New prepares a Bot API client without contacting Telegram, so an outage
// surfaces on the first Send instead of at startup. endpoint is a format
// string taking the token and the method name; an empty one means the public
// Telegram server.
func New(token, chatID, endpoint string, client *http.Client) (*Bot, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	if _, err := destination(chatID, ""); err != nil {
		return nil, err
	}

	api := &tgbotapi.BotAPI{
		Token:  token,
		Client: client,
		Buffer: 100,
	}
	api.SetAPIEndpoint(endpoint)

	return &Bot{
		API:    api,
		chatID: chatID,
	}, nil
}

// Send delivers text to the configured chat. The Bot API call itself cannot
// be cancelled, ctx is only checked before sending.
func (b *Bot) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := destination(b.chatID, text)
	if err != nil {
		return err
	}

	if _, err := b.API.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// destination addresses a message either to a numeric chat id or to a
// public channel given as @username.
func destination(chatID, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(chatID, "@") {
		return tgbotapi.NewMessageToChannel(chatID, text), nil
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return tgbotapi.NewMessage(id, text), nil
}
