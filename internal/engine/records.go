package engine

import (
	"context"
	"time"

	"worklog/internal/core"
	"worklog/internal/log"
)

// ClassifiedRecord is one interval after classification, flattened out of
// its entry and appointment.
type ClassifiedRecord struct {
	Member         string
	App            string
	AppTitle       string
	TaskID         string
	StartTime      time.Time
	EndTime        time.Time
	Duration       core.RawDuration
	Classification core.Classification
}

// Flatten walks entry -> appointment -> interval and classifies each interval.
// Appointments without an app name are kept under "unknown"; they and
// malformed durations are reported once per call.
func Flatten(ctx context.Context, c *Classifier, entries []core.TimeEntry) []ClassifiedRecord {
	var (
		records   []ClassifiedRecord
		missing   int
		malformed int
	)
	for _, e := range entries {
		for _, appt := range e.Appointments {
			if appt.AppName == "" {
				missing++
			}
			app := core.NormalizeAppName(appt.AppName)
			for _, iv := range appt.Intervals {
				if _, ok := iv.Duration.Coerce(); !ok {
					malformed++
				}
				records = append(records, ClassifiedRecord{
					Member:         e.Username,
					App:            app,
					AppTitle:       appt.AppTitle,
					TaskID:         e.TaskID,
					StartTime:      iv.StartTime,
					EndTime:        iv.EndTime,
					Duration:       iv.Duration,
					Classification: c.Classify(ctx, iv, appt),
				})
			}
		}
	}
	events := log.NewStructuredLogger(c.logger)
	if missing > 0 {
		events.LogMalformedInput(ctx, "Appointments without app name grouped as unknown",
			log.NewFields().With(log.FieldCount, missing))
	}
	if malformed > 0 {
		events.LogMalformedInput(ctx, "Malformed interval durations counted as zero",
			log.NewFields().With(log.FieldCount, malformed))
	}
	return records
}
