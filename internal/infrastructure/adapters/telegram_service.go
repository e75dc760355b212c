package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const telegramAPIBaseURL = "https://api.telegram.org"

// TelegramService sends settlement notifications through the Bot API
type TelegramService struct {
	logger     *zap.Logger
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewTelegramService creates a Telegram sender
func NewTelegramService(botToken string, logger *zap.Logger) (*TelegramService, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	return &TelegramService{
		logger:     logger,
		token:      botToken,
		baseURL:    telegramAPIBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SendMessage delivers a plain-text message to a chat
func (t *TelegramService) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("Telegram API request failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		t.logger.Error("Telegram API error",
			zap.Int64("chat_id", chatID),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response_body", string(respBody)))
		return fmt.Errorf("telegram api error: status %d", resp.StatusCode)
	}

	t.logger.Info("Telegram message sent", zap.Int64("chat_id", chatID))
	return nil
}
