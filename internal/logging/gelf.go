package logging

import (
	"fmt"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// GraylogHandler is a JSON slog handler whose records are shipped to a
// Graylog input as GELF messages over UDP.
type GraylogHandler struct {
	slog.Handler
	writer *gelf.Writer
}

// NewGraylogHandler dials address (host:port) and returns a handler for it.
func NewGraylogHandler(address, level string) (*GraylogHandler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting to graylog at %s: %w", address, err)
	}
	w.Facility = "pitbridge"

	return &GraylogHandler{
		Handler: slog.NewJSONHandler(w, HandlerOptions(level)),
		writer:  w,
	}, nil
}

// Close releases the UDP socket.
func (h *GraylogHandler) Close() error {
	return h.writer.Close()
}
