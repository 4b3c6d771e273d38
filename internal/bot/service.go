package bot

import (
	"context"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/infra"
)

type (
	// UpdatesSource long-polls the platform for updates.
	UpdatesSource interface {
		GetUpdates(config api.UpdateConfig) ([]api.Update, error)
	}

	updateProcessor interface {
		Process(ctx context.Context, u *api.Update) error
	}

	// Service polls updates and processes each one in its own goroutine.
	// Polling failures are reported on Errors.
	Service struct {
		source    UpdatesSource
		processor updateProcessor
		config    api.UpdateConfig
		buffer    int
		errs      chan error

		runMutex  sync.Mutex
		started   bool
		runCancel context.CancelFunc
		loopDone  chan struct{}
		workersWg sync.WaitGroup
	}
)

func NewService(source UpdatesSource, processor updateProcessor, config api.UpdateConfig, buffer int) *Service {
	return &Service{
		source:    source,
		processor: processor,
		config:    config,
		buffer:    buffer,
		errs:      make(chan error, 1),
	}
}

func (s *Service) getLogEntry() *log.Entry {
	return log.WithField("object", "Service")
}

func (s *Service) Errors() <-chan error {
	return s.errs
}

func (s *Service) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel
	s.loopDone = make(chan struct{})
	updates, errs := GetUpdatesChans(runCtx, s.source, s.config, s.buffer)
	go s.loop(runCtx, updates, errs)
	s.started = true
	s.getLogEntry().Info("polling started")
	return nil
}

func (s *Service) loop(ctx context.Context, updates api.UpdatesChannel, errs <-chan error) {
	defer close(s.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			if ctx.Err() == nil {
				select {
				case s.errs <- errors.WithMessage(err, "get updates"):
				default:
				}
			}
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.dispatch(ctx, u)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, u api.Update) {
	s.workersWg.Add(1)
	go func() {
		defer s.workersWg.Done()
		err := infra.Recover("update", func() error {
			return s.processor.Process(ctx, &u)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.getLogEntry().WithField("update_id", u.UpdateID).WithError(err).Error("cant process update")
		}
	}()
}

// Stop ends polling and waits for in-flight updates.
func (s *Service) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	cancel, loopDone := s.runCancel, s.loopDone
	s.runMutex.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-loopDone
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.getLogEntry().Info("polling stopped")
		return nil
	}
}

// GetUpdatesChans long-polls in a goroutine until ctx is done or polling fails.
func GetUpdatesChans(ctx context.Context, source UpdatesSource, config api.UpdateConfig, buffer int) (api.UpdatesChannel, <-chan error) {
	ch := make(chan api.Update, buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			if err := ctx.Err(); err != nil {
				chErr <- err
				return
			}
			updates, err := source.GetUpdates(config)
			if err != nil {
				chErr <- err
				return
			}
			for _, update := range updates {
				if update.UpdateID < config.Offset {
					continue
				}
				config.Offset = update.UpdateID + 1
				select {
				case ch <- update:
				case <-ctx.Done():
					chErr <- ctx.Err()
					return
				}
			}
		}
	}()

	return ch, chErr
}
