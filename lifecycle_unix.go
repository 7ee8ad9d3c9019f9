//go:build unix

// ABOUTME: Maps job-control signals onto the coordinator lifecycle
// ABOUTME: Ctrl+Z backgrounds the session and fg resyncs it at once
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sendspin/hubremote/internal/app"
	"github.com/sirupsen/logrus"
)

func watchLifecycle(ctx context.Context, model *app.Model, logger logrus.FieldLogger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTSTP, syscall.SIGCONT)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				switch sig {
				case syscall.SIGTSTP:
					model.EnterBackground()
					logger.Debug("Entering background")

					// Stop for real with the default handler, then catch it again
					signal.Reset(syscall.SIGTSTP)
					_ = syscall.Kill(os.Getpid(), syscall.SIGTSTP)
					signal.Notify(sigs, syscall.SIGTSTP)
				case syscall.SIGCONT:
					logger.Debug("Entering foreground")
					if err := model.EnterForeground(ctx); err != nil {
						logger.WithError(err).Debug("Resync on foreground failed")
					}
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		cancel()
		<-done
	}
}
