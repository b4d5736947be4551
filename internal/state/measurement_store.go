package state

import (
	"time"

	"DroughtLedger/internal/domain"
)

// MeasurementStore holds the latest published reading per location.
// Updates overwrite; no history is kept here (the event log has it).
// Not thread-safe — only accessed from the single-threaded engine.
type MeasurementStore struct {
	readings map[string]*domain.Measurement
}

func NewMeasurementStore() *MeasurementStore {
	return &MeasurementStore{
		readings: make(map[string]*domain.Measurement),
	}
}

// Publish records the latest reading for a location, replacing any prior value.
func (ms *MeasurementStore) Publish(location string, value int64, at time.Time) {
	ms.readings[location] = &domain.Measurement{
		Location:    location,
		Value:       value,
		PublishedAt: at,
	}
}

// Read returns the last published value for a location. A location with no
// published reading returns ok=false: unknown is not zero, so an unmonitored
// location never looks like a drought already in progress.
func (ms *MeasurementStore) Read(location string) (int64, bool) {
	m, ok := ms.readings[location]
	if !ok {
		return 0, false
	}
	return m.Value, true
}

// Snapshot returns copies of all readings for persistence.
func (ms *MeasurementStore) Snapshot() []domain.Measurement {
	out := make([]domain.Measurement, 0, len(ms.readings))
	for _, m := range ms.readings {
		out = append(out, *m)
	}
	return out
}

// Restore installs a reading directly during snapshot restore.
func (ms *MeasurementStore) Restore(m domain.Measurement) {
	cp := m
	ms.readings[m.Location] = &cp
}
