package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/pipeline"
)

// errStatusServer marks a harvest stopped because the status server failed.
var errStatusServer = errors.New("status server failed")

// RunUntilInterrupt runs the harvest until it finishes or SIGINT/SIGTERM
// arrives. The first signal asks the driver to stop after the current page;
// a second one terminates the process with the default signal behavior.
func RunUntilInterrupt(ctx context.Context, log logger.Interface, h *Harvest) (*pipeline.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stop()
			log.Info("Stop requested, finishing the current page")
		case <-done:
		}
	}()

	if h.Server != nil {
		errCh, err := h.Server.StartAsync()
		if err != nil {
			return nil, fmt.Errorf("start status server: %w", err)
		}
		go func() {
			if serveErr, ok := <-errCh; ok {
				log.Error("Status server failed, stopping harvest", "error", serveErr)
				cancel(fmt.Errorf("%w: %w", errStatusServer, serveErr))
			}
		}()
	}

	result, runErr := h.Driver.Run(runCtx)

	if h.Server != nil {
		if err := Shutdown(log, h); err != nil && runErr == nil {
			runErr = err
		}
	}

	if cause := context.Cause(runCtx); runErr == nil && errors.Is(cause, errStatusServer) {
		runErr = cause
	}
	return result, runErr
}

// Shutdown stops the status server.
func Shutdown(log logger.Interface, h *Harvest) error {
	log.Info("Stopping status server")
	if err := h.Server.Shutdown(context.Background()); err != nil {
		log.Error("Failed to stop status server", "error", err)
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}
