package etlerr

import (
	"errors"
	"fmt"
	"strings"
)

// DriverError reports driver lookup and capability failures.
type DriverError struct {
	Driver    string
	Operation string
	// Available lists registered drivers when Driver was not found.
	Available []string
}

func (e *DriverError) Error() string {
	switch {
	case e.Available != nil:
		return fmt.Sprintf("driver '%s' not found. Available drivers: %s", e.Driver, strings.Join(e.Available, ", "))
	case e.Operation != "":
		return fmt.Sprintf("driver '%s' does not support %s", e.Driver, e.Operation)
	default:
		return fmt.Sprintf("driver '%s' is not registered in the registry", e.Driver)
	}
}

// ConfigError reports invalid or missing options.
type ConfigError struct {
	Option  string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Message == "" {
		return "missing required option: " + e.Option
	}

	return fmt.Sprintf("invalid %s option: %s", e.Option, e.Message)
}

// FormatError reports geometry and typing problems independent of a position.
type FormatError struct {
	Format  string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Format, e.Message)
}

// UserMessage renders err for terminal output.
func UserMessage(err error) string {
	var (
		de *DriverError
		ce *ConfigError
		re *ReadError
	)
	switch {
	case errors.As(err, &de):
		return "Driver error: " + de.Error()
	case errors.As(err, &ce):
		return "Configuration error: " + ce.Error()
	case errors.As(err, &re):
		return re.Error()
	default:
		return "Error: " + err.Error()
	}
}

// Suggestion returns a recovery hint for err, or "".
func Suggestion(err error) string {
	var (
		de *DriverError
		ce *ConfigError
	)
	switch {
	case errors.As(err, &de) && de.Available != nil:
		return "Run 'geoetl drivers' to list supported drivers."
	case errors.As(err, &de):
		return "Choose a driver with the required capability, see 'geoetl drivers'."
	case errors.As(err, &ce):
		return "Check the command flags and the configuration file."
	case errors.Is(err, ErrHeaderNotFound):
		return "The input does not look like a GeoJSON FeatureCollection."
	case errors.Is(err, ErrInvalidUTF8):
		return "Make sure the input is UTF-8 encoded."
	default:
		return ""
	}
}
