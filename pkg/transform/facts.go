package transform

import (
	"sort"

	"github.com/chanpulse/warehouse/pkg/model"
)

// BuildMessageFacts joins staged rows against both dimensions, replacing
// business keys with surrogate keys. The join is inner on
// channel name and on the message's calendar date: a staged row whose
// channel or date has no dimension row is excluded, not errored. That is
// intended behaviour (a date outside the generated range simply vanishes),
// so the excluded count is returned for observability.
func BuildMessageFacts(
	staged []model.StagedMessage,
	channels []model.ChannelDim,
	dates []model.DateDim,
) ([]model.MessageFact, int) {
	channelKeys := make(map[string]string, len(channels))
	for _, c := range channels {
		channelKeys[c.ChannelName] = c.ChannelKey
	}

	dateKeys := make(map[int]struct{}, len(dates))
	for _, d := range dates {
		dateKeys[d.DateKey] = struct{}{}
	}

	facts := make([]model.MessageFact, 0, len(staged))
	excluded := 0

	for _, s := range staged {
		channelKey, ok := channelKeys[s.ChannelName]
		if !ok {
			excluded++
			continue
		}

		dateKey := DateKey(s.MessageDate)
		if _, ok := dateKeys[dateKey]; !ok {
			excluded++
			continue
		}

		facts = append(facts, model.MessageFact{
			MessageID:        s.MessageID,
			ChannelKey:       channelKey,
			DateKey:          dateKey,
			MessageTimestamp: s.MessageDate,
			MessageText:      s.MessageText,
			MessageLength:    s.MessageLength,
			Views:            s.Views,
			Forwards:         s.Forwards,
			HasMedia:         s.HasMedia,
			HasImage:         s.HasImage,
			ImagePath:        s.ImagePath,
		})
	}

	sort.Slice(facts, func(i, j int) bool {
		return facts[i].MessageID < facts[j].MessageID
	})

	return facts, excluded
}

// BuildDetectionFacts extends image-bearing message facts with detection
// rows. A detection joins on message id, and additionally the channel key
// re-derived from the detection's channel name must agree with the fact's
// channel key; a casing or whitespace difference in the source channel name
// fails that check and the row is excluded. Detections for messages whose
// fact has no image are excluded as well.
func BuildDetectionFacts(
	detections []model.Detection,
	facts []model.MessageFact,
	channels []model.ChannelDim,
) ([]model.DetectionFact, int) {
	factsByID := make(map[int64]model.MessageFact, len(facts))
	for _, f := range facts {
		factsByID[f.MessageID] = f
	}

	channelKeys := make(map[string]string, len(channels))
	for _, c := range channels {
		channelKeys[c.ChannelName] = c.ChannelKey
	}

	out := make([]model.DetectionFact, 0, len(detections))
	excluded := 0

	for _, d := range detections {
		fact, ok := factsByID[d.MessageID]
		if !ok || !fact.HasImage {
			excluded++
			continue
		}

		if channelKeys[d.ChannelName] != fact.ChannelKey {
			excluded++
			continue
		}

		out = append(out, model.DetectionFact{
			MessageID:       d.MessageID,
			ChannelKey:      fact.ChannelKey,
			DateKey:         fact.DateKey,
			DetectedClass:   d.DetectedClass,
			ConfidenceScore: d.ConfidenceScore,
			ImageCategory:   d.ImageCategory,
			NumDetections:   d.NumDetections,
			Views:           fact.Views,
			Forwards:        fact.Forwards,
			ImagePath:       fact.ImagePath,
			HasImage:        fact.HasImage,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageID != out[j].MessageID {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].DetectedClass < out[j].DetectedClass
	})

	return out, excluded
}
