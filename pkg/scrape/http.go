package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/model"
)

// HTTPSource fetches channel posts from a JSON endpoint exposing
// GET /channels/<name>/messages?limit=N.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPSource creates an HTTP message source
func NewHTTPSource(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sourceMessage struct {
	MessageID   int64   `json:"message_id"`
	ChannelName string  `json:"channel_name"`
	MessageDate *string `json:"message_date"`
	MessageText *string `json:"message_text"`
	Views       *int64  `json:"views"`
	Forwards    *int64  `json:"forwards"`
	HasMedia    *bool   `json:"has_media"`
	ImagePath   *string `json:"image_path"`
}

// FetchMessages implements Source.
func (s *HTTPSource) FetchMessages(ctx context.Context, channel string, limit int) ([]model.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages?limit=%s",
		s.baseURL, url.PathEscape(channel), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source returned %d for %s: %s",
			resp.StatusCode, channel, string(body))
	}

	var records []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	messages := make([]model.RawMessage, 0, len(records))
	for i, record := range records {
		var sm sourceMessage
		if err := json.Unmarshal(record, &sm); err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", i, err)
		}

		out := model.RawMessage{
			MessageID:   sm.MessageID,
			ChannelName: channel,
			MessageText: sm.MessageText,
			Views:       sm.Views,
			Forwards:    sm.Forwards,
			HasMedia:    sm.HasMedia,
			ImagePath:   sm.ImagePath,
			RawData:     record,
		}
		if sm.ChannelName != "" {
			out.ChannelName = sm.ChannelName
		}
		if sm.MessageDate != nil {
			t, err := time.Parse(time.RFC3339, *sm.MessageDate)
			if err != nil {
				return nil, fmt.Errorf("record %d has bad message_date %q: %w", i, *sm.MessageDate, err)
			}
			utc := t.UTC()
			out.MessageDate = &utc
		}
		messages = append(messages, out)
	}

	s.logger.Debug("Fetched channel messages",
		zap.String("channel", channel),
		zap.Int("messages", len(messages)))
	return messages, nil
}
