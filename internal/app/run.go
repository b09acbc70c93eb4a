package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"incidentrelay/pkg/logging"
)

// runServer runs the HTTP server alongside a shutdown watcher. When ctx ends,
// or the server fails, background services are stopped before returning.
func runServer(ctx context.Context, services *Services) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return services.Server.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Bootstrap", "Stopping poll loops and closing connections")
		services.Poller.Stop()
		services.Hub.CloseAll()
		return nil
	})

	err := g.Wait()
	services.Sessions.Stop()
	if err != nil {
		logging.Error("Bootstrap", err, "Relay stopped with error")
		return err
	}
	logging.Info("Bootstrap", "Relay stopped")
	return nil
}
