package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	rerr "chatrelay/internal/errors"
)

var validate = newValidator() //nolint:gochecknoglobals

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their CLI flag name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// flagName maps a Config field name to its CLI flag.
func flagName(field string) string {
	if f, ok := reflect.TypeOf(Config{}).FieldByName(field); ok {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
	}
	return strings.ToLower(field)
}

// Validate checks every field rule and then the cross-field rules.
// The first problem is returned as a *errors.ConfigError with a hint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	switch {
	case c.Execute != "" && c.Command != "":
		return &rerr.ConfigError{
			Field:   "exec",
			Message: "-e and -c are mutually exclusive",
			Hint:    "use -e for a program path or -c for a shell command, not both",
		}
	case c.Listen && c.TunnelEnabled:
		return &rerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "-T dials through a gateway and cannot be used with -l",
			Hint:    "use -R user@gateway --remote-port N to publish a listening relay",
		}
	case c.Listen && (c.Execute != "" || c.Command != ""):
		return &rerr.ConfigError{
			Field:   "exec",
			Message: "-e and -c only apply when connecting to a relay",
		}
	case !c.Listen && c.PublishEnabled:
		return &rerr.ConfigError{
			Field:   "publish",
			Value:   c.PublishSpec,
			Message: "-R requires listen mode",
			Hint:    "add -l",
		}
	case !c.Listen && c.HTTPAddr != "":
		return &rerr.ConfigError{
			Field:   "http",
			Value:   c.HTTPAddr,
			Message: "the HTTP gateway is served by a listening relay",
			Hint:    "add -l",
		}
	case c.PublishEnabled && c.RemotePort == 0:
		return &rerr.ConfigError{
			Field:   "remote-port",
			Message: "is required with -R",
			Hint:    "choose the port the gateway should expose, e.g. --remote-port 5000",
		}
	case c.PublishEnabled && c.PublishHost == "":
		return &rerr.ConfigError{Field: "publish", Message: "gateway host is required"}
	case c.TunnelEnabled && c.TunnelHost == "":
		return &rerr.ConfigError{Field: "tunnel", Message: "gateway host is required"}
	case c.AutoReconnect && !c.PublishEnabled:
		return &rerr.ConfigError{
			Field:   "auto-reconnect",
			Message: "only applies to a relay published with -R",
		}
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	ce := &rerr.ConfigError{Field: fe.Field(), Value: fe.Value()}
	switch fe.Tag() {
	case "min", "max":
		ce.Message = "must be between 1 and 65535"
		if fe.Field() == "remote-port" {
			ce.Message = "must be at most 65535"
		}
		ce.Hint = "the relay's default port is 5000"
	case "gte":
		ce.Message = "must not be negative"
		ce.Hint = "0 disables the limit"
	case "hostname_port":
		ce.Message = "is not a host:port address"
		ce.Hint = "e.g. --http :8080 or --http 127.0.0.1:8080"
	case "file":
		ce.Message = "file does not exist"
		ce.Hint = "check the path and its permissions"
	case "ip":
		ce.Message = "is not an IP address"
		ce.Hint = "use 0.0.0.0 for all interfaces or 127.0.0.1 for loopback"
	default:
		ce.Message = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return ce
}
