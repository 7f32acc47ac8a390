package diag

import (
	"os"
	"runtime/trace"
	"time"
)

const flightMaxBytes = 16 << 20

// flightRecorder keeps a rolling window of the runtime execution trace so
// a stall can be inspected with `go tool trace` afterwards.
type flightRecorder struct {
	fr *trace.FlightRecorder
}

func startFlightRecorder(minAge time.Duration) (*flightRecorder, error) {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MaxBytes: flightMaxBytes,
		MinAge:   minAge,
	})
	if err := fr.Start(); err != nil {
		return nil, err
	}
	return &flightRecorder{fr: fr}, nil
}

func (f *flightRecorder) writeTo(path string) error {
	if f == nil || !f.fr.Enabled() {
		return nil
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = f.fr.WriteTo(out)
	return err
}

func (f *flightRecorder) stop() {
	if f == nil {
		return
	}
	f.fr.Stop()
}
