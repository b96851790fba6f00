package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/owotrack/owotrackd/internal/introspect"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// deviceView is the CLI's view of one device, identical to the wire shape
// served by the introspection API.
type deviceView = introspect.DeviceView

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatDevices renders a slice of devices in the requested format.
func formatDevices(devices []deviceView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatDevicesJSON(devices)
	case formatTable:
		return formatDevicesTable(devices), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatDevicesTable(devices []deviceView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tHARDWARE-ID\tADDRESS\tNAME\tPROTOCOL\tTRACKERS\tSTATUS\tLAST-PACKET")

	for _, d := range devices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%dms\n",
			d.ConnectionIndex,
			d.HardwareID,
			d.Address,
			deviceLabel(d),
			d.Protocol,
			d.TrackerCount,
			statusLabel(d.TimedOut),
			d.LastPacketAgeMs,
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatDevicesJSON(devices []deviceView) (string, error) {
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal devices to JSON: %w", err)
	}
	return string(data), nil
}

func deviceLabel(d deviceView) string {
	if d.DescriptiveName != "" {
		return d.DescriptiveName
	}
	return d.Name
}

func statusLabel(timedOut bool) string {
	if timedOut {
		return "DISCONNECTED"
	}
	return "OK"
}
