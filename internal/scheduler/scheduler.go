// Package scheduler runs the two independent periodic tasks: the
// reminder-fire loop and the scan-rotation loop, plus the debouncer
// primitive the dispatch engine uses to coalesce bursty input.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"claudima/internal/archive"
)

// Sender delivers a reminder's text to a chat. Satisfied by the telegram
// transport; kept as a narrow interface so the scheduler has no import
// dependency on transport internals.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// SystemMessageSink is how the scan loop injects its synthetic message
// into the normal dispatch intake path, as if it arrived from user 0 in
// chat 0.
type SystemMessageSink interface {
	EnqueueSystemMessage(text string)
}

// ScanModes is the fixed rotation ring the scan loop cycles through.
var ScanModes = []string{"discover", "deep_dive", "validate", "plan", "follow_up"}

// Scheduler owns the reminder and scan loops.
type Scheduler struct {
	store  *archive.Store
	sender Sender

	pollInterval time.Duration
	scanInterval time.Duration
	focusTopics  []string
	signals      func() string // snapshot of tracked signals, injected as prompt context

	modeIdx  int
	topicIdx int
}

// New builds a Scheduler. scanInterval of zero disables the scan loop
// entirely, per spec.
func New(store *archive.Store, sender Sender, pollInterval, scanInterval time.Duration, focusTopics []string, signals func() string) *Scheduler {
	return &Scheduler{
		store:        store,
		sender:       sender,
		pollInterval: pollInterval,
		scanInterval: scanInterval,
		focusTopics:  focusTopics,
		signals:      signals,
	}
}

// Run starts both loops in their own goroutines and returns at once; the
// loops exit when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, sink SystemMessageSink) {
	go s.reminderLoop(ctx)
	if s.scanInterval > 0 {
		go s.scanLoop(ctx, sink)
	}
}

func (s *Scheduler) reminderLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDueReminders(ctx)
		}
	}
}

func (s *Scheduler) fireDueReminders(ctx context.Context) {
	due, err := s.store.DueReminders(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("scheduler: failed to load due reminders", "error", err)
		return
	}
	for _, r := range due {
		if err := s.sender.SendText(ctx, r.ChatID, r.Message); err != nil {
			slog.Warn("scheduler: failed to deliver reminder", "id", r.ID, "chat_id", r.ChatID, "error", err)
			// transport failure for one reminder does not abort the loop
		}

		now := time.Now().UTC()
		if r.RepeatCron != "" {
			sched, err := ParseSchedule(r.RepeatCron)
			if err != nil {
				slog.Warn("scheduler: invalid cron, retiring reminder", "id", r.ID, "cron", r.RepeatCron, "error", err)
				s.retire(ctx, r.ID, now)
				continue
			}
			next, err := sched.Next(now)
			if err != nil {
				slog.Warn("scheduler: cron evaluation failed, retiring reminder", "id", r.ID, "error", err)
				s.retire(ctx, r.ID, now)
				continue
			}
			if err := s.store.AdvanceReminder(ctx, r.ID, next, now); err != nil {
				slog.Error("scheduler: failed to advance recurring reminder", "id", r.ID, "error", err)
			}
		} else {
			s.retire(ctx, r.ID, now)
		}
	}
}

func (s *Scheduler) retire(ctx context.Context, id int64, firedAt time.Time) {
	if err := s.store.RetireReminder(ctx, id, firedAt); err != nil {
		slog.Error("scheduler: failed to retire reminder", "id", id, "error", err)
	}
}

func (s *Scheduler) scanLoop(ctx context.Context, sink SystemMessageSink) {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emitScan(sink)
		}
	}
}

func (s *Scheduler) emitScan(sink SystemMessageSink) {
	mode := ScanModes[s.modeIdx%len(ScanModes)]
	s.modeIdx++

	var topic string
	if len(s.focusTopics) > 0 {
		topic = s.focusTopics[s.topicIdx%len(s.focusTopics)]
		s.topicIdx++
	}

	var signalSnapshot string
	if s.signals != nil {
		signalSnapshot = s.signals()
	}

	text := "scan:" + mode
	if topic != "" {
		text += " topic=" + topic
	}
	if signalSnapshot != "" {
		text += "\n" + signalSnapshot
	}
	sink.EnqueueSystemMessage(text)
}
