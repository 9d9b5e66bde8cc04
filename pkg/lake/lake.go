// Package lake reads and writes the on-disk raw data lake. Messages live in
// one JSON array per (scrape day, channel) partition under
// <messagesDir>/YYYY-MM-DD/<channel>.json; detections are a single CSV.
package lake

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/model"
)

const partitionLayout = "2006-01-02"

// Lake provides access to the raw lake directories.
type Lake struct {
	messagesDir string
	logger      *zap.Logger
}

// New creates a lake rooted at the configured messages directory.
func New(messagesDir string, logger *zap.Logger) *Lake {
	return &Lake{
		messagesDir: messagesDir,
		logger:      logger,
	}
}

// PartitionPath returns the file holding one channel's messages for one
// scrape day.
func (l *Lake) PartitionPath(day time.Time, channel string) string {
	return filepath.Join(l.messagesDir, day.UTC().Format(partitionLayout), channel+".json")
}

// ListPartitions returns every partition file under the lake, ordered by
// day then channel. Files that are not *.json inside a date directory are
// ignored.
func (l *Lake) ListPartitions() ([]string, error) {
	entries, err := os.ReadDir(l.messagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lake directory %s: %w", l.messagesDir, err)
	}

	files := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(partitionLayout, entry.Name()); err != nil {
			l.logger.Debug("Skipping non-partition directory",
				zap.String("dir", entry.Name()))
			continue
		}

		dayDir := filepath.Join(l.messagesDir, entry.Name())
		dayEntries, err := os.ReadDir(dayDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read partition %s: %w", dayDir, err)
		}
		for _, f := range dayEntries {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(dayDir, f.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// ReadPartition decodes one partition file into raw messages. The channel
// name is taken from the file name; a channel_name present in the JSON wins
// when non-empty. Each record keeps its original JSON for the raw_data
// column.
//
// Record failures never abort the partition: a record that does not decode
// is dropped and counted in the returned skip count, and an unrecognised
// timestamp nulls that record's message_date while the rest of the record
// survives.
func (l *Lake) ReadPartition(path string) ([]model.RawMessage, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read partition %s: %w", path, err)
	}

	var rawRecords []json.RawMessage
	if err := json.Unmarshal(data, &rawRecords); err != nil {
		return nil, 0, fmt.Errorf("failed to parse partition %s: %w", path, err)
	}

	channel := strings.TrimSuffix(filepath.Base(path), ".json")

	skipped := 0
	messages := make([]model.RawMessage, 0, len(rawRecords))
	for i, record := range rawRecords {
		var msg partitionMessage
		if err := json.Unmarshal(record, &msg); err != nil {
			skipped++
			l.logger.Warn("Skipping malformed record",
				zap.String("path", path),
				zap.Int("record", i),
				zap.Error(err))
			continue
		}

		out := model.RawMessage{
			MessageID:   msg.MessageID,
			ChannelName: channel,
			MessageText: msg.MessageText,
			Views:       msg.Views,
			Forwards:    msg.Forwards,
			HasMedia:    msg.HasMedia,
			ImagePath:   msg.ImagePath,
			RawData:     record,
		}
		if msg.ChannelName != "" {
			out.ChannelName = msg.ChannelName
		}
		if msg.MessageDate != nil {
			t, err := parseTimestamp(*msg.MessageDate)
			if err != nil {
				l.logger.Warn("Nulling unparseable message_date",
					zap.String("path", path),
					zap.Int64("messageID", msg.MessageID),
					zap.Error(err))
			} else {
				out.MessageDate = &t
			}
		}
		messages = append(messages, out)
	}

	return messages, skipped, nil
}

// WritePartition writes one channel's messages for one day, merging with
// any existing partition by message id so that re-scrapes refresh counters
// instead of duplicating records. The write goes through a temp file and
// rename.
func (l *Lake) WritePartition(day time.Time, channel string, messages []model.RawMessage) error {
	path := l.PartitionPath(day, channel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	merged := messages
	existing, _, err := l.ReadPartition(path)
	switch {
	case err == nil:
		merged = mergeByMessageID(existing, messages)
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	records := make([]partitionMessage, 0, len(merged))
	for _, m := range merged {
		rec := partitionMessage{
			MessageID:   m.MessageID,
			ChannelName: m.ChannelName,
			MessageText: m.MessageText,
			Views:       m.Views,
			Forwards:    m.Forwards,
			HasMedia:    m.HasMedia,
			ImagePath:   m.ImagePath,
		}
		if m.MessageDate != nil {
			s := m.MessageDate.UTC().Format(time.RFC3339)
			rec.MessageDate = &s
		}
		records = append(records, rec)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode partition: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write partition: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish partition: %w", err)
	}

	l.logger.Info("Wrote lake partition",
		zap.String("path", path),
		zap.Int("messages", len(records)))
	return nil
}

// partitionMessage is the on-disk record shape. Timestamps stay strings so
// both RFC 3339 and the bare "2006-01-02T15:04:05" form round-trip.
type partitionMessage struct {
	MessageID   int64   `json:"message_id"`
	ChannelName string  `json:"channel_name,omitempty"`
	MessageDate *string `json:"message_date"`
	MessageText *string `json:"message_text"`
	Views       *int64  `json:"views"`
	Forwards    *int64  `json:"forwards"`
	HasMedia    *bool   `json:"has_media"`
	ImagePath   *string `json:"image_path"`
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	partitionLayout,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func mergeByMessageID(existing, incoming []model.RawMessage) []model.RawMessage {
	byID := make(map[int64]model.RawMessage, len(existing)+len(incoming))
	for _, m := range existing {
		byID[m.MessageID] = m
	}
	for _, m := range incoming {
		byID[m.MessageID] = m
	}

	merged := make([]model.RawMessage, 0, len(byID))
	for _, m := range byID {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].MessageID < merged[j].MessageID
	})
	return merged
}
