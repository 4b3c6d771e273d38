package infra

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultWatchInterval = 5 * time.Second

// WatchExecutable signals once the running binary is replaced on disk, so a
// supervisor can restart the process with the new build.
func WatchExecutable(ctx context.Context, interval time.Duration) (<-chan struct{}, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.WithMessage(err, "cant resolve executable path")
	}
	return WatchFile(ctx, exe, interval)
}

// WatchFile signals once the modification time of path changes. The channel
// is closed without a value when ctx ends.
func WatchFile(ctx context.Context, path string, interval time.Duration) (<-chan struct{}, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, errors.WithMessagef(err, "cant stat %s", path)
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	original := stat.ModTime()

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(path)
				if err != nil {
					log.WithError(err).WithField("path", path).Warn("cant stat watched file")
					continue
				}
				if !original.Equal(stat.ModTime()) {
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch, nil
}
