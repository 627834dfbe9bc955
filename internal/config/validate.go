// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"audiobridge/internal/analysis"
	"audiobridge/internal/audio"
	applog "audiobridge/internal/log"
	"audiobridge/pkg/bitint"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for configuration checks.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report YAML key paths instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// hostname_port rejects port 0, which is a valid listen address.
	if err := validate.RegisterValidation("listen_addr", isListenAddr); err != nil {
		panic(err)
	}
}

// isListenAddr accepts host:port and :port with any port in [0, 65535].
func isListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// Validate checks field ranges and the relations between fields. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			errs = append(errs, fmt.Errorf("%s %s", fieldPath(e), formatValidationMessage(e)))
		}
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	if !slices.Contains(audio.Backends(), c.Backend) {
		errs = append(errs, fmt.Errorf("backend %q is not one of %v", c.Backend, audio.Backends()))
	}

	b := c.Bridge
	if !bitint.IsPowerOfTwo(b.BufferSize) {
		errs = append(errs, fmt.Errorf("bridge.buffer_size %d must be a power of two", b.BufferSize))
	}
	if b.HopSize > b.BufferSize {
		errs = append(errs, fmt.Errorf("bridge.hop_size %d must not exceed bridge.buffer_size %d", b.HopSize, b.BufferSize))
	}
	if _, err := analysis.ParseWindowFunc(b.Window); err != nil {
		errs = append(errs, fmt.Errorf("bridge.window: %w", err))
	}

	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		errs = append(errs, errors.New("recording.output_dir must be set when recording is enabled"))
	}
	if ws := c.Transport.WebSocket; ws.Enabled && ws.Addr == "" {
		errs = append(errs, errors.New("transport.websocket.addr must be set when the WebSocket server is enabled"))
	}
	if udp := c.Transport.UDP; udp.Enabled {
		if _, _, err := net.SplitHostPort(udp.TargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp.target_address %q appears invalid: %w", udp.TargetAddress, err))
		}
		if udp.SendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp.send_interval must be positive when UDP is enabled"))
		}
	}
	if c.Backend == "file" {
		if c.Files.Dir == "" {
			errs = append(errs, errors.New("files.dir must be set for the file backend"))
		}
		if b.Loopback {
			errs = append(errs, errors.New("bridge.loopback must be false for the file backend, which has no render devices"))
		}
	}

	return errors.Join(errs...)
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "gtefield":
		return fmt.Sprintf("must not be less than %s", e.Param())
	case "hostname_port", "listen_addr":
		return "must be host:port"
	case "startswith":
		return fmt.Sprintf("must start with %q", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
