// Package introspect implements a read-only HTTP API: a JSON window onto
// Registry.Snapshot() for operators and the owotrackctl CLI, served with
// plain net/http and encoding/json (see DESIGN.md for why no RPC
// framework is used here).
package introspect

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/owotrack/owotrackd/internal/registry"
)

// DeviceView is the wire shape of one device snapshot, shared with
// cmd/owotrackctl's JSON and table views.
type DeviceView struct {
	ConnectionIndex int    `json:"connection_index"`
	HardwareID      string `json:"hardware_id"`
	Address         string `json:"address"`
	Name            string `json:"name"`
	DescriptiveName string `json:"descriptive_name"`
	Protocol        string `json:"protocol"`
	FirmwareBuild   int32  `json:"firmware_build"`
	BoardType       int32  `json:"board_type"`
	McuType         int32  `json:"mcu_type"`
	TrackerCount    int    `json:"tracker_count"`
	TimedOut        bool   `json:"timed_out"`
	LastPacketAgeMs int64  `json:"last_packet_age_ms"`
}

// Registry is the narrow slice of *registry.Registry this package needs,
// scoped to an interface so tests can substitute a fake registry without a
// running event loop.
type Registry interface {
	Snapshot(nowMs int64) []registry.DeviceSnapshot
}

// Ready reports whether the event loop has bound its UDP socket
// (SPEC_FULL.md §6: "200 OK once the event loop has bound its socket").
type Ready func() bool

// Handler serves the introspection HTTP API.
type Handler struct {
	reg    Registry
	ready  Ready
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler builds a Handler wired to reg. ready reports socket-bound
// status for /healthz.
func NewHandler(reg Registry, ready Ready, logger *slog.Logger) *Handler {
	h := &Handler{
		reg:    reg,
		ready:  ready,
		logger: logger.With(slog.String("component", "introspect")),
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /api/v1/devices", h.handleDevices)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snap := h.reg.Snapshot(registry.NowMs())

	views := make([]DeviceView, 0, len(snap))
	for _, d := range snap {
		views = append(views, DeviceView{
			ConnectionIndex: d.ConnectionIndex,
			HardwareID:      d.HardwareID,
			Address:         d.Address,
			Name:            d.Name,
			DescriptiveName: d.DescriptiveName,
			Protocol:        d.Protocol,
			FirmwareBuild:   d.FirmwareBuild,
			BoardType:       d.BoardType,
			McuType:         d.McuType,
			TrackerCount:    d.TrackerCount,
			TimedOut:        d.TimedOut,
			LastPacketAgeMs: d.LastPacketAgeMs,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		h.logger.Warn("encode devices response", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil && !h.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
