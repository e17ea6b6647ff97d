package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/sample.return/internal/rover/l5decision"
)

// FormatCommand renders a command as a link line:
// T=<throttle>,B=<brake>,S=<steer>,P=<0|1>,M=<mode>
func FormatCommand(cmd l5decision.Command) string {
	pickup := 0
	if cmd.Pickup {
		pickup = 1
	}
	return fmt.Sprintf("T=%s,B=%s,S=%s,P=%d,M=%s",
		formatFloat(cmd.Throttle), formatFloat(cmd.Brake), formatFloat(cmd.Steer), pickup, cmd.Mode)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseCommand parses a line produced by FormatCommand.
func ParseCommand(line string) (l5decision.Command, error) {
	var cmd l5decision.Command
	seen := make(map[string]bool, 5)
	for _, field := range strings.Split(strings.TrimSpace(line), ",") {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return cmd, fmt.Errorf("malformed field %q", field)
		}
		var err error
		switch key {
		case "T":
			cmd.Throttle, err = strconv.ParseFloat(val, 64)
		case "B":
			cmd.Brake, err = strconv.ParseFloat(val, 64)
		case "S":
			cmd.Steer, err = strconv.ParseFloat(val, 64)
		case "P":
			switch val {
			case "0":
			case "1":
				cmd.Pickup = true
			default:
				err = fmt.Errorf("pickup must be 0 or 1")
			}
		case "M":
			cmd.Mode, err = l5decision.ParseMode(val)
		default:
			return cmd, fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			return cmd, fmt.Errorf("field %s: %w", key, err)
		}
		seen[key] = true
	}
	for _, key := range []string{"T", "B", "S", "P", "M"} {
		if !seen[key] {
			return cmd, fmt.Errorf("missing field %s", key)
		}
	}
	return cmd, nil
}
