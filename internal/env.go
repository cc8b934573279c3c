// Package internal holds process-wide configuration resolved from CLI
// flags and MINIRC_-prefixed environment variables.
package internal

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Flag describes one configuration knob bound to a CLI flag. An
// environment variable named MINIRC_<NAME> (dashes as underscores)
// supplies the value when the flag is left at its default.
type Flag struct {
	Name    string
	Default string
	Usage   string

	value *string
}

// Flag definitions. Typed values live in the package globals below and
// are populated by ValidateEnv.
var (
	EnvFlag      = Flag{Name: "env", Default: "dev", Usage: "deployment environment (dev or prod)"}
	LogLevelFlag = Flag{Name: "log-level", Default: "info", Usage: "log level (trace, debug, info, warn, error)"}

	PortFlag       = Flag{Name: "port", Default: "6665", Usage: "chat server TCP port"}
	HealthPortFlag = Flag{Name: "health-port", Default: "8090", Usage: "health and metrics HTTP port, 0 to disable"}

	ServerNameFlag         = Flag{Name: "server-name", Default: "minirc.local", Usage: "server identity used in reply prefixes"}
	WSPortFlag             = Flag{Name: "ws-port", Default: "0", Usage: "websocket gateway HTTP port, 0 to disable"}
	BroadcastTimeoutMSFlag = Flag{Name: "broadcast-timeout-ms", Default: "1000", Usage: "channel fan-out deadline in milliseconds"}

	NickFlag     = Flag{Name: "nick", Default: "", Usage: "nick to log in with; empty reads it from the first input line"}
	UsernameFlag = Flag{Name: "username", Default: "", Usage: "username for registration, defaults to the nick"}
	RealnameFlag = Flag{Name: "realname", Default: "", Usage: "realname for registration, defaults to the nick"}
	ChannelFlag  = Flag{Name: "channel", Default: "#general", Usage: "channel joined after login"}
)

// Typed configuration populated by ValidateEnv.
var (
	Env      string
	LogLevel string

	Port               uint16
	HealthPort         uint16
	WSPort             uint16
	ServerName         string
	BroadcastTimeoutMS uint

	Nick     string
	Username string
	Realname string
	Channel  string
)

// RegisterCommandFlags binds the given flags to the command.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	for _, f := range flags {
		if f.Name == "" {
			return errors.New("flag must have a name")
		}
		if cmd.PersistentFlags().Lookup(f.Name) != nil {
			return errors.Errorf("flag %s registered twice", f.Name)
		}
		f.value = cmd.PersistentFlags().String(f.Name, f.Default, f.Usage)
	}
	return nil
}

// resolve returns the flag value, the environment override when the flag
// was left at its default, or the default.
func (f *Flag) resolve() string {
	if f.value != nil && *f.value != f.Default {
		return *f.value
	}
	envVar := "MINIRC_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
	if v, ok := os.LookupEnv(envVar); ok && v != "" {
		return v
	}
	return f.Default
}

func (f *Flag) resolvePort() (uint16, error) {
	raw := f.resolve()
	p, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s %q failed", f.Name, raw)
	}
	return uint16(p), nil
}

// ValidateEnv resolves and validates every configuration value.
func ValidateEnv() error {
	Env = EnvFlag.resolve()
	switch Env {
	case "dev", "prod":
	default:
		return errors.Errorf("unknown env %q", Env)
	}
	LogLevel = LogLevelFlag.resolve()

	var err error
	if Port, err = PortFlag.resolvePort(); err != nil {
		return err
	}
	if Port == 0 {
		return errors.New("port must not be 0")
	}
	if HealthPort, err = HealthPortFlag.resolvePort(); err != nil {
		return err
	}
	if WSPort, err = WSPortFlag.resolvePort(); err != nil {
		return err
	}

	ServerName = ServerNameFlag.resolve()
	if ServerName == "" {
		return errors.New("server name must not be empty")
	}

	timeoutRaw := BroadcastTimeoutMSFlag.resolve()
	timeout, err := strconv.ParseUint(timeoutRaw, 10, 32)
	if err != nil {
		return errors.Wrapf(err, "parse broadcast-timeout-ms %q failed", timeoutRaw)
	}
	if timeout == 0 {
		return errors.New("broadcast-timeout-ms must be positive")
	}
	BroadcastTimeoutMS = uint(timeout)

	Nick = NickFlag.resolve()
	Username = UsernameFlag.resolve()
	Realname = RealnameFlag.resolve()
	Channel = ChannelFlag.resolve()
	if !strings.HasPrefix(Channel, "#") && !strings.HasPrefix(Channel, "&") && !strings.HasPrefix(Channel, "+") {
		return errors.Errorf("channel %q must start with #, & or +", Channel)
	}
	return nil
}
