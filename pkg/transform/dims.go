package transform

import (
	"sort"
	"time"

	"github.com/chanpulse/warehouse/pkg/model"
)

// BuildChannelDim aggregates staged rows into one dimension row per distinct
// channel name. The surrogate key is a pure function of the channel name, so
// it stays stable as first/last timestamps and counts drift between runs.
// The result fully replaces the prior dimension contents on each run.
func BuildChannelDim(staged []model.StagedMessage) []model.ChannelDim {
	byChannel := make(map[string]*model.ChannelDim)

	for _, s := range staged {
		dim, ok := byChannel[s.ChannelName]
		if !ok {
			byChannel[s.ChannelName] = &model.ChannelDim{
				ChannelKey:       SurrogateKey(s.ChannelName),
				ChannelName:      s.ChannelName,
				FirstMessageDate: s.MessageDate,
				LastMessageDate:  s.MessageDate,
				TotalMessages:    1,
			}
			continue
		}

		if s.MessageDate.Before(dim.FirstMessageDate) {
			dim.FirstMessageDate = s.MessageDate
		}
		if s.MessageDate.After(dim.LastMessageDate) {
			dim.LastMessageDate = s.MessageDate
		}
		dim.TotalMessages++
	}

	dims := make([]model.ChannelDim, 0, len(byChannel))
	for _, dim := range byChannel {
		dims = append(dims, *dim)
	}

	// Sorted output keeps rebuilds byte-identical on unchanged input.
	sort.Slice(dims, func(i, j int) bool {
		return dims[i].ChannelName < dims[j].ChannelName
	})

	return dims
}

// BuildDateDim generates one row per calendar day in the inclusive range
// [start, end]. Every field is a pure function of the date, so the table is
// identical on every invocation given the same range.
//
// Go's time.Weekday numbers days Sunday=0..Saturday=6; the warehouse exposes
// ISO numbering, Monday=1..Sunday=7.
func BuildDateDim(start, end time.Time) []model.DateDim {
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	var dims []model.DateDim
	for d := startDay; !d.After(endDay); d = d.AddDate(0, 0, 1) {
		isoDay := isoWeekday(d.Weekday())
		_, week := d.ISOWeek()

		dims = append(dims, model.DateDim{
			DateKey:    DateKey(d),
			FullDate:   d,
			Year:       d.Year(),
			Quarter:    (int(d.Month())-1)/3 + 1,
			Month:      int(d.Month()),
			Week:       week,
			DayOfMonth: d.Day(),
			DayOfWeek:  isoDay,
			DayName:    d.Weekday().String(),
			IsWeekend:  isoDay >= 6,
		})
	}

	return dims
}

func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
