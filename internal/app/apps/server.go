package apps

import (
	"context"
	"time"

	"minirc/internal"
	"minirc/internal/pkg/gateway"
	"minirc/internal/pkg/metrics"
	"minirc/internal/pkg/server"
	"minirc/internal/pkg/validate"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp is the chat server application.
type ServerApp struct {
	Port       uint16 `validate:"required"`
	ServerName string `validate:"required"`
	HealthPort uint16
	WSPort     uint16
	Timeout    time.Duration `validate:"required"`
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if app.Port == 0 {
		app.Port = internal.Port
	}
	if app.ServerName == "" {
		app.ServerName = internal.ServerName
	}
	if app.HealthPort == 0 {
		app.HealthPort = internal.HealthPort
	}
	if app.WSPort == 0 {
		app.WSPort = internal.WSPort
	}
	if app.Timeout == 0 {
		app.Timeout = time.Duration(internal.BroadcastTimeoutMS) * time.Millisecond
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run starts the chat server, plus the health endpoint and the WebSocket
// gateway when their ports are configured, until ctx is cancelled.
func (app *ServerApp) Run(ctx context.Context, _ []string) error {
	collector := metrics.New()

	srv, err := server.NewServer(
		server.WithPort(app.Port),
		server.WithServerName(app.ServerName),
		server.WithBroadcastTimeout(app.Timeout),
		server.WithMetrics(collector),
	)
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return errors.Wrap(srv.ListenAndServe(ctx), "run server failed")
	})
	if app.HealthPort != 0 {
		group.Go(func() error {
			return errors.Wrap(collector.Serve(ctx, app.HealthPort), "run health endpoint failed")
		})
	}
	if app.WSPort != 0 {
		gw, err := gateway.NewGateway(srv.ServeConn, gateway.WithPort(app.WSPort))
		if err != nil {
			return errors.Wrap(err, "create gateway failed")
		}
		group.Go(func() error {
			return errors.Wrap(gw.ListenAndServe(ctx), "run gateway failed")
		})
	}
	return group.Wait()
}
