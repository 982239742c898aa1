package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

// RetentionWorker periodically expires idle sessions and runs the content
// store retention scan.
type RetentionWorker struct {
	Sessions   repositories.SessionRepository
	Store      *storage.ContentStore
	Events     events.Publisher
	Locks      *utils.KeyedMutex // the turn coordinators' per-session lock
	Inactivity time.Duration
	Every      time.Duration
	Logger     *logrus.Logger

	now func() time.Time
}

// RetentionReport is what one sweep did.
type RetentionReport struct {
	SessionsExpired int                  `json:"sessions_expired"`
	Store           storage.ExpireReport `json:"store"`
}

func (w *RetentionWorker) Start(ctx context.Context) {
	if w.Every <= 0 {
		w.Every = 10 * time.Minute
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}
	go func() {
		t := time.NewTicker(w.Every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
					w.Logger.WithError(err).Warn("retention sweep failed")
				}
			}
		}
	}()
}

// Sweep runs one retention pass.
func (w *RetentionWorker) Sweep(ctx context.Context) (RetentionReport, error) {
	var rep RetentionReport
	now := time.Now().UTC()
	if w.now != nil {
		now = w.now()
	}
	pub := w.Events
	if pub == nil {
		pub = events.Nop{}
	}

	if w.Locks == nil {
		w.Locks = utils.NewKeyedMutex()
	}
	if w.Sessions != nil && w.Inactivity > 0 {
		cutoff := now.Add(-w.Inactivity)
		idle, err := w.Sessions.ListIdle(ctx, cutoff)
		if err != nil {
			return rep, err
		}
		for _, s := range idle {
			expired, err := w.expire(ctx, s.SessionID, cutoff, now)
			if err != nil {
				return rep, err
			}
			if expired == nil {
				continue
			}
			rep.SessionsExpired++
			_ = pub.Publish(ctx, events.New(events.TypeSessionClosed, expired.Kind, expired.SessionID, expired.Phase, map[string]string{"reason": "inactivity"}))
		}
	}

	if w.Store != nil {
		r, err := w.Store.Expire(now)
		if err != nil {
			return rep, err
		}
		rep.Store = r
	}

	if rep.SessionsExpired > 0 || rep.Store.CacheRemoved > 0 || rep.Store.SessionsRemoved > 0 {
		w.Logger.WithFields(logrus.Fields{
			"sessions_expired": rep.SessionsExpired,
			"cache_removed":    rep.Store.CacheRemoved,
			"dirs_removed":     rep.Store.SessionsRemoved,
		}).Info("retention sweep")
	}
	return rep, nil
}

// expire re-reads the session under its lock and marks it expired only if it
// is still active and idle; a turn that landed after ListIdle wins.
func (w *RetentionWorker) expire(ctx context.Context, id string, cutoff, now time.Time) (*models.Session, error) {
	unlock := w.Locks.Lock(id)
	defer unlock()

	s, err := w.Sessions.Get(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Closed() || !s.UpdatedAt.Before(cutoff) {
		return nil, nil
	}
	s.Status = models.StatusExpired
	s.UpdatedAt = now
	if err := w.Sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
