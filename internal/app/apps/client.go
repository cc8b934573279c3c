package apps

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"minirc/internal"
	"minirc/internal/pkg/client"
	"minirc/internal/pkg/validate"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is the terminal chat client application. The line-based
// terminal is the external UI collaborator: it hands completed input
// lines to the adapter and prints the display strings it raises.
type ClientApp struct {
	Port     uint16 `validate:"required"`
	Channel  string `validate:"required"`
	Nick     string
	Username string
	Realname string
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if app.Port == 0 {
		app.Port = internal.Port
	}
	if app.Channel == "" {
		app.Channel = internal.Channel
	}
	if app.Nick == "" {
		app.Nick = internal.Nick
	}
	if app.Username == "" {
		app.Username = internal.Username
	}
	if app.Realname == "" {
		app.Realname = internal.Realname
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run connects the adapter and pumps stdin lines into it until ctx is
// cancelled or the connection drops. When no nick was configured, the
// first input line chooses it.
func (app *ClientApp) Run(ctx context.Context, _ []string) error {
	c, err := client.NewClient(
		client.WithServerPort(app.Port),
		client.WithChannel(app.Channel),
		client.WithUser(app.Username, app.Realname),
		client.WithDisplay(func(line string) {
			fmt.Println(line)
		}),
	)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect client failed")
	}

	if app.Nick != "" {
		c.ChooseNick(app.Nick)
	} else {
		fmt.Println("choose a nick:")
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if app.Nick == "" {
				app.Nick = line
				c.ChooseNick(line)
				continue
			}
			if err := c.Send(line); err != nil {
				logger.WithError(err).Warn("queue input line failed")
			}
		}
	}()

	return errors.Wrap(c.Run(ctx), "run client failed")
}
