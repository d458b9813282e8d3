package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sender delivers one message to one chat. The production implementation is
// the Telegram bot; tests substitute a fake.
type Sender interface {
	SendText(chatID int64, text string) error
}

type Recipients interface {
	ListIDs(ctx context.Context) ([]int64, error)
}

// BroadcastService fans a message out to every registered user through a
// fixed-size worker pool so one slow delivery cannot stall the rest.
type BroadcastService struct {
	log     *slog.Logger
	users   Recipients
	workers int
}

func NewBroadcastService(log *slog.Logger, users Recipients, workers int) *BroadcastService {
	if workers <= 0 {
		workers = 1
	}
	return &BroadcastService{log: log, users: users, workers: workers}
}

type BroadcastReport struct {
	Total  int
	Sent   int
	Failed int
}

func (s *BroadcastService) Broadcast(ctx context.Context, sender Sender, text string) (BroadcastReport, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return BroadcastReport{}, err
	}

	jobs := make(chan int64)
	var sent, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := sender.SendText(id, text); err != nil {
					failed.Add(1)
					s.log.Warn("broadcast delivery failed", "user", id, "err", err)
					continue
				}
				sent.Add(1)
			}
		}()
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return BroadcastReport{Total: len(ids), Sent: int(sent.Load()), Failed: int(failed.Load())}, ctx.Err()
		case jobs <- id:
		}
	}
	close(jobs)
	wg.Wait()

	report := BroadcastReport{Total: len(ids), Sent: int(sent.Load()), Failed: int(failed.Load())}
	s.log.Info("broadcast finished", "total", report.Total, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}
