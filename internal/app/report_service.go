package app

import (
	"context"
	"iter"
	"time"

	"github.com/tho-bre/event-flow/internal/aggregate"
	"github.com/tho-bre/event-flow/internal/domain"
)

type ReportRepository interface {
	GetEvent(ctx context.Context, ownerID, eventID string) (domain.Event, error)
	ListTaps(ctx context.Context, ownerID, eventID string) ([]domain.Tap, error)
}

type ReportService struct {
	repo     ReportRepository
	location *time.Location
}

func NewReportService(repo ReportRepository, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{repo: repo, location: loc}
}

// Report is the attendance chart of one event. Buckets is recomputed from
// Log on every iteration.
type Report struct {
	Event   domain.Event
	Width   aggregate.Width
	Log     []domain.Tap
	Buckets iter.Seq[aggregate.Bucket]
}

func (s *ReportService) Report(ctx context.Context, ownerID, eventID string, width aggregate.Width) (Report, error) {
	if !width.Valid() {
		return Report{}, domain.ErrInvalidInterval
	}
	event, err := s.repo.GetEvent(ctx, ownerID, eventID)
	if err != nil {
		return Report{}, err
	}
	log, err := s.repo.ListTaps(ctx, ownerID, eventID)
	if err != nil {
		return Report{}, err
	}
	// Taps may land between the two reads; the log is authoritative.
	event.Total = domain.NetTotal(log)
	event.Version = int64(len(log))
	return Report{
		Event:   event,
		Width:   width,
		Log:     log,
		Buckets: aggregate.Buckets(log, event.StartsAt.In(s.location), event.EndsAt.In(s.location), width),
	}, nil
}

func (s *ReportService) Location() *time.Location {
	return s.location
}
