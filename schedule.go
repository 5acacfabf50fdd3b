package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arlberg/triage/internal/model"
)

// ScheduledBatch submits the cases produced by a Planner at certain
// intervals.
type ScheduledBatch struct {
	// Name identifies the schedule in logs and in the batch's TriggeredBy.
	Name string
	// Schedule defines how often a batch is submitted. For the format see
	// https://pkg.go.dev/github.com/robfig/cron#hdr-CRON_Expression_Format
	Schedule string
	// Planner yields the batch's test cases on every tick.
	Planner Planner
	Params  model.RunParams
	// EntryID identifies the cronjob.
	EntryID cron.EntryID
}

func (s *Server) startSchedules() error {
	s.cron = cron.New(cron.WithSeconds())

	for i := range s.schedules {
		sb := s.schedules[i]

		if sb.Planner == nil {
			return fmt.Errorf("scheduled batch %q has no planner", sb.Name)
		}

		entryID, err := s.cron.AddFunc(sb.Schedule, func() {
			ctx, cancel := context.WithTimeout(s.baseCtx, time.Minute)
			defer cancel()

			cases, err := sb.Planner.Plan(ctx)
			if err != nil {
				s.log.Error("planning scheduled batch failed", "schedule", sb.Name, "error", err)
				return
			}

			params := sb.Params
			params.TriggeredBy = "scheduled:" + sb.Name

			if _, err := s.schedule(ctx, cases, params); err != nil {
				s.log.Error("submitting scheduled batch failed", "schedule", sb.Name, "error", err)
			}
		})

		if err != nil {
			return fmt.Errorf("adding scheduled batch %q: %w", sb.Name, err)
		}

		s.schedules[i].EntryID = entryID
	}

	s.cron.Start()

	return nil
}
