package transform

import (
	"strings"
	"unicode/utf8"

	"github.com/chanpulse/warehouse/pkg/model"
)

// Stage turns raw records into staged rows. It is a pure function over its
// input: no stored state accumulates between runs, so recomputing it is
// always safe.
//
// Rows missing the business key (message id, channel name, or timestamp) are
// dropped and counted, never errored. Counters default to 0 when absent;
// negative input values pass through unchanged and are caught by the quality
// gate, not here.
func Stage(raw []model.RawMessage) ([]model.StagedMessage, int) {
	staged := make([]model.StagedMessage, 0, len(raw))
	dropped := 0

	for _, r := range raw {
		if !r.HasBusinessKey() {
			dropped++
			continue
		}

		text := ""
		if r.MessageText != nil {
			text = *r.MessageText
		}

		imagePath := ""
		if r.ImagePath != nil {
			imagePath = *r.ImagePath
		}

		staged = append(staged, model.StagedMessage{
			MessageID:     r.MessageID,
			ChannelName:   r.ChannelName,
			MessageDate:   *r.MessageDate,
			MessageText:   text,
			MessageLength: utf8.RuneCountInString(text),
			Views:         int64Value(r.Views),
			Forwards:      int64Value(r.Forwards),
			HasMedia:      boolValue(r.HasMedia),
			HasImage:      strings.TrimSpace(imagePath) != "",
			ImagePath:     imagePath,
		})
	}

	return staged, dropped
}

func int64Value(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func boolValue(p *bool) bool {
	if p == nil {
		return false
	}
	return *p
}
