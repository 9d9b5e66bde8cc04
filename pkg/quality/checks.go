package quality

import (
	"fmt"
	"time"

	"github.com/chanpulse/warehouse/pkg/model"
)

// Severity classifies a check outcome. Errors block publication, warnings
// are logged and let the run proceed.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is one failed check with enough context to locate the rows.
type Violation struct {
	Check        string
	Table        string
	Severity     Severity
	AffectedRows int64
	Description  string
}

// Report aggregates the violations of a full gate pass.
type Report struct {
	CheckedAt  time.Time
	Violations []Violation
}

// Passed reports whether the gate allows publication. Warnings alone pass.
func (r *Report) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the blocking violations.
func (r *Report) Errors() []Violation {
	out := make([]Violation, 0)
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) add(check, table string, sev Severity, rows int64, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Check:        check,
		Table:        table,
		Severity:     sev,
		AffectedRows: rows,
		Description:  fmt.Sprintf(format, args...),
	})
}

// Tables is the full set of built warehouse tables a gate pass inspects.
type Tables struct {
	Channels   []model.ChannelDim
	Dates      []model.DateDim
	Messages   []model.MessageFact
	Detections []model.DetectionFact
}

// Check runs every gate check against the in-memory tables before they are
// written. now anchors the future-date check.
func Check(t Tables, now time.Time) *Report {
	report := &Report{CheckedAt: now}

	checkChannelDim(report, t.Channels)
	checkDateDim(report, t.Dates)
	checkMessageFacts(report, t, now)
	checkDetectionFacts(report, t)

	return report
}

func checkChannelDim(r *Report, channels []model.ChannelDim) {
	seenKeys := make(map[string]struct{}, len(channels))
	seenNames := make(map[string]struct{}, len(channels))

	var emptyKeys, dupKeys, dupNames int64
	for _, c := range channels {
		if c.ChannelKey == "" {
			emptyKeys++
		}
		if _, dup := seenKeys[c.ChannelKey]; dup {
			dupKeys++
		}
		seenKeys[c.ChannelKey] = struct{}{}

		if _, dup := seenNames[c.ChannelName]; dup {
			dupNames++
		}
		seenNames[c.ChannelName] = struct{}{}
	}

	if emptyKeys > 0 {
		r.add("not_null_channel_key", "dim_channels", SeverityError, emptyKeys,
			"%d rows with empty channel_key", emptyKeys)
	}
	if dupKeys > 0 {
		r.add("unique_channel_key", "dim_channels", SeverityError, dupKeys,
			"%d duplicate channel_key rows", dupKeys)
	}
	if dupNames > 0 {
		r.add("unique_channel_name", "dim_channels", SeverityError, dupNames,
			"%d duplicate channel_name rows", dupNames)
	}
}

func checkDateDim(r *Report, dates []model.DateDim) {
	seen := make(map[int]struct{}, len(dates))
	var dups, badWeekday int64
	for _, d := range dates {
		if _, dup := seen[d.DateKey]; dup {
			dups++
		}
		seen[d.DateKey] = struct{}{}

		if d.DayOfWeek < 1 || d.DayOfWeek > 7 {
			badWeekday++
		}
	}

	if dups > 0 {
		r.add("unique_date_key", "dim_dates", SeverityError, dups,
			"%d duplicate date_key rows", dups)
	}
	if badWeekday > 0 {
		r.add("iso_day_of_week", "dim_dates", SeverityError, badWeekday,
			"%d rows with day_of_week outside 1..7", badWeekday)
	}
}

func checkMessageFacts(r *Report, t Tables, now time.Time) {
	channelKeys := make(map[string]struct{}, len(t.Channels))
	for _, c := range t.Channels {
		channelKeys[c.ChannelKey] = struct{}{}
	}
	dateKeys := make(map[int]struct{}, len(t.Dates))
	for _, d := range t.Dates {
		dateKeys[d.DateKey] = struct{}{}
	}

	seen := make(map[int64]struct{}, len(t.Messages))
	var dups, orphanChannels, orphanDates, future, negative int64

	todayKey := now.UTC().Year()*10000 + int(now.UTC().Month())*100 + now.UTC().Day()

	for _, m := range t.Messages {
		if _, dup := seen[m.MessageID]; dup {
			dups++
		}
		seen[m.MessageID] = struct{}{}

		if _, ok := channelKeys[m.ChannelKey]; !ok {
			orphanChannels++
		}
		if _, ok := dateKeys[m.DateKey]; !ok {
			orphanDates++
		}
		if m.DateKey > todayKey {
			future++
		}
		if m.Views < 0 || m.Forwards < 0 {
			negative++
		}
	}

	if dups > 0 {
		r.add("unique_message_id", "fct_messages", SeverityError, dups,
			"%d duplicate message_id rows", dups)
	}
	if orphanChannels > 0 {
		r.add("fk_channel_key", "fct_messages", SeverityError, orphanChannels,
			"%d rows whose channel_key is absent from dim_channels", orphanChannels)
	}
	if orphanDates > 0 {
		r.add("fk_date_key", "fct_messages", SeverityError, orphanDates,
			"%d rows whose date_key is absent from dim_dates", orphanDates)
	}
	if future > 0 {
		r.add("no_future_dates", "fct_messages", SeverityError, future,
			"%d rows dated after %d", future, todayKey)
	}
	if negative > 0 {
		r.add("non_negative_counters", "fct_messages", SeverityError, negative,
			"%d rows with negative views or forwards", negative)
	}
}

func checkDetectionFacts(r *Report, t Tables) {
	messageIDs := make(map[int64]struct{}, len(t.Messages))
	for _, m := range t.Messages {
		messageIDs[m.MessageID] = struct{}{}
	}
	channelKeys := make(map[string]struct{}, len(t.Channels))
	for _, c := range t.Channels {
		channelKeys[c.ChannelKey] = struct{}{}
	}

	type detKey struct {
		id    int64
		class string
	}
	seen := make(map[detKey]struct{}, len(t.Detections))

	var dups, orphanMessages, orphanChannels, badConfidence, badCategory int64
	for _, d := range t.Detections {
		k := detKey{d.MessageID, d.DetectedClass}
		if _, dup := seen[k]; dup {
			dups++
		}
		seen[k] = struct{}{}

		if _, ok := messageIDs[d.MessageID]; !ok {
			orphanMessages++
		}
		if _, ok := channelKeys[d.ChannelKey]; !ok {
			orphanChannels++
		}
		if d.ConfidenceScore < 0 || d.ConfidenceScore > 1 {
			badConfidence++
		}
		switch d.ImageCategory {
		case model.CategoryPromotional, model.CategoryProductDisplay,
			model.CategoryLifestyle, model.CategoryOther:
		default:
			badCategory++
		}
	}

	if dups > 0 {
		r.add("unique_message_class", "fct_image_detections", SeverityError, dups,
			"%d duplicate (message_id, detected_class) rows", dups)
	}
	if orphanMessages > 0 {
		r.add("fk_message_id", "fct_image_detections", SeverityError, orphanMessages,
			"%d rows whose message_id is absent from fct_messages", orphanMessages)
	}
	if orphanChannels > 0 {
		r.add("fk_channel_key", "fct_image_detections", SeverityError, orphanChannels,
			"%d rows whose channel_key is absent from dim_channels", orphanChannels)
	}
	if badConfidence > 0 {
		r.add("confidence_range", "fct_image_detections", SeverityError, badConfidence,
			"%d rows with confidence_score outside [0,1]", badConfidence)
	}
	if badCategory > 0 {
		r.add("accepted_image_category", "fct_image_detections", SeverityWarning, badCategory,
			"%d rows with unrecognised image_category", badCategory)
	}
}
