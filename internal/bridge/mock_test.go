package bridge

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
)

var errControllerDown = errors.New("controller down")

var (
	lampContext = device.Context{Name: "Lamp", Room: "Den", ProxyID: "20", DriverFileName: device.LightDriverFileName}
	statContext = device.Context{Name: "Stat", Room: "Hall", ProxyID: "31", DriverFileName: device.ThermostatDriverFileName}
)

type setCall struct {
	ProxyID    string
	VariableID string
	Value      string
}

// mockController serves variables from memory and records every call.
type mockController struct {
	mu        sync.Mutex
	devices   []device.RawDevice
	variables map[string]device.RawValues
	fetchErr  map[string]error
	setErr    error
	gets      []string
	sets      []setCall

	// gate, when set, blocks GetVariables until it is closed.
	gate chan struct{}
}

func newMockController() *mockController {
	return &mockController{
		variables: make(map[string]device.RawValues),
		fetchErr:  make(map[string]error),
	}
}

func (m *mockController) GetDevices(context.Context) ([]device.RawDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devices, nil
}

func (m *mockController) GetVariables(ctx context.Context, proxyID string, _ []string) (device.RawValues, error) {
	m.mu.Lock()
	gate := m.gate
	m.gets = append(m.gets, proxyID)
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fetchErr[proxyID]; err != nil {
		return nil, err
	}
	return maps.Clone(m.variables[proxyID]), nil
}

func (m *mockController) SetVariable(_ context.Context, proxyID, variableID, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, setCall{proxyID, variableID, value})
	if m.setErr != nil {
		return m.setErr
	}
	if m.variables[proxyID] == nil {
		m.variables[proxyID] = device.RawValues{}
	}
	m.variables[proxyID][variableID] = value
	return nil
}

func (m *mockController) setVariables(proxyID string, vars device.RawValues) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variables[proxyID] = vars
}

func (m *mockController) setFetchError(proxyID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr[proxyID] = err
}

func (m *mockController) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.gets)
}

func (m *mockController) setCalls() []setCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]setCall, len(m.sets))
	copy(out, m.sets)
	return out
}

// eventRecorder collects accessory change events.
type eventRecorder struct {
	mu     sync.Mutex
	events []accessory.Event
}

func (r *eventRecorder) listen(_ context.Context, ev accessory.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []accessory.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accessory.Event, len(r.events))
	copy(out, r.events)
	return out
}

// memRepository is an in-memory accessory.Repository.
type memRepository struct {
	mu   sync.Mutex
	recs []accessory.Record
}

func (r *memRepository) List(context.Context) ([]accessory.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accessory.Record, len(r.recs))
	copy(out, r.recs)
	return out, nil
}

func (r *memRepository) Get(_ context.Context, uuid string) (*accessory.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recs {
		if rec.UUID == uuid {
			return &rec, nil
		}
	}
	return nil, accessory.ErrNotFound
}

func (r *memRepository) Save(_ context.Context, rec *accessory.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].UUID == rec.UUID {
			r.recs[i] = *rec
			return nil
		}
	}
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *memRepository) Delete(_ context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.recs {
		if r.recs[i].UUID == uuid {
			r.recs = append(r.recs[:i], r.recs[i+1:]...)
			return nil
		}
	}
	return accessory.ErrNotFound
}
