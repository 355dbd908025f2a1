package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/state"
)

func newTestOrchestrator(t *testing.T, ctrl Controller) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(ctrl, state.NewCache(), OrchestratorOptions{RefreshTimeout: time.Second})
	t.Cleanup(o.Close)
	return o
}

func newLamp() *accessory.Accessory {
	return accessory.New(lampContext, device.NewLight())
}

func newStat() *accessory.Accessory {
	return accessory.New(statContext, device.NewThermostat(device.ThermostatOptions{}))
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFetchStateCaching(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "40"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	snap, err := o.FetchState(ctx, lamp, true)
	if err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}
	if snap[device.PropState] != true || snap[device.PropLevel] != 40 {
		t.Errorf("snapshot = %v", snap)
	}
	if ctrl.getCount() != 1 {
		t.Fatalf("gets = %d, want 1 (empty cache must fetch)", ctrl.getCount())
	}

	if _, err := o.FetchState(ctx, lamp, true); err != nil {
		t.Fatalf("cached FetchState() error = %v", err)
	}
	if ctrl.getCount() != 1 {
		t.Errorf("gets = %d, cached read should not fetch", ctrl.getCount())
	}

	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "0"})
	snap, err = o.FetchState(ctx, lamp, false)
	if err != nil {
		t.Fatalf("FetchState(useCached=false) error = %v", err)
	}
	if ctrl.getCount() != 2 {
		t.Errorf("gets = %d, want 2", ctrl.getCount())
	}
	if snap[device.PropState] != false || snap[device.PropLevel] != 0 {
		t.Errorf("refetched snapshot = %v", snap)
	}
	if cached, _ := o.Cache().Get(lamp.UUID); cached[device.PropLevel] != 0 {
		t.Errorf("cache not replaced: %v", cached)
	}
}

func TestFetchStateCachedDuringInflightFetch(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "40"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	if _, err := o.FetchState(ctx, lamp, false); err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}

	gate := make(chan struct{})
	ctrl.mu.Lock()
	ctrl.gate = gate
	ctrl.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := o.FetchState(ctx, lamp, false)
		done <- err
	}()
	waitFor(t, "in-flight fetch", func() bool { return ctrl.getCount() == 2 })

	v, err := o.Read(ctx, lamp, device.PropLevel, true)
	if err != nil || v != 40 {
		t.Errorf("cached Read() = %v, %v during in-flight fetch", v, err)
	}
	if ctrl.getCount() != 2 {
		t.Errorf("gets = %d, cached read issued a fetch", ctrl.getCount())
	}

	close(gate)
	if err := <-done; err != nil {
		t.Errorf("in-flight FetchState() error = %v", err)
	}
}

func TestFetchStateError(t *testing.T) {
	ctrl := newMockController()
	ctrl.setFetchError("20", errControllerDown)
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()

	_, err := o.FetchState(context.Background(), lamp, true)
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, errControllerDown) {
		t.Errorf("FetchState() error = %v, want ErrFetchFailed wrapping controller error", err)
	}
	if _, ok := o.Cache().Get(lamp.UUID); ok {
		t.Error("failed fetch should not create a snapshot")
	}
	if m := o.Metrics(); m.Fetches != 1 || m.FetchErrors != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRead(t *testing.T) {
	ctrl := newMockController()
	// Auto mode with no current temperature leaves target_temperature underivable.
	ctrl.setVariables("31", device.RawValues{
		device.VarTargetState: "Auto",
		device.VarHeatpoint:   "68",
		device.VarCoolpoint:   "77",
	})
	o := newTestOrchestrator(t, ctrl)
	stat := newStat()
	ctx := context.Background()

	v, err := o.Read(ctx, stat, device.PropHeatpoint, true)
	if err != nil || v != 20.0 {
		t.Errorf("Read(heatpoint) = %v, %v, want 20", v, err)
	}
	if _, err := o.Read(ctx, stat, device.PropTargetTemperature, true); !errors.Is(err, accessory.ErrNoValue) {
		t.Errorf("Read(target_temperature) error = %v, want ErrNoValue", err)
	}
	if _, err := o.Read(ctx, stat, "humidity", true); !errors.Is(err, accessory.ErrUnknownProperty) {
		t.Errorf("Read(humidity) error = %v, want ErrUnknownProperty", err)
	}
}

func TestWriteSkipsUnchangedValues(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "40"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	if _, err := o.FetchState(ctx, lamp, false); err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}

	// Turning on a light that is already at 40% must not reset its level.
	if err := o.Write(ctx, lamp, device.PropState, true); err != nil {
		t.Fatalf("Write(state) error = %v", err)
	}
	if err := o.Write(ctx, lamp, device.PropLevel, 40.0); err != nil {
		t.Fatalf("Write(level) error = %v", err)
	}
	if sets := ctrl.setCalls(); len(sets) != 0 {
		t.Fatalf("sets = %+v, want none", sets)
	}

	if err := o.Write(ctx, lamp, device.PropLevel, 70); err != nil {
		t.Fatalf("Write(level=70) error = %v", err)
	}
	sets := ctrl.setCalls()
	if len(sets) != 1 || sets[0] != (setCall{"20", device.LightLevelVariable, "70"}) {
		t.Errorf("sets = %+v, want one write of 70", sets)
	}
	if m := o.Metrics(); m.WritesDeduped != 2 || m.Writes != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestWriteUpdatesCacheAndRefreshes(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "0"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	if _, err := o.FetchState(ctx, lamp, false); err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}
	if err := o.Write(ctx, lamp, device.PropState, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	sets := ctrl.setCalls()
	if len(sets) != 1 || sets[0].Value != "100" {
		t.Fatalf("sets = %+v, want on written as 100", sets)
	}
	if v, _ := o.Cache().Field(lamp.UUID, device.PropState); v != true {
		t.Errorf("cached state = %v, want optimistic true", v)
	}

	o.Wait()
	if ctrl.getCount() != 2 {
		t.Errorf("gets = %d, want a background refresh", ctrl.getCount())
	}
	if v, _ := o.Cache().Field(lamp.UUID, device.PropLevel); v != 100 {
		t.Errorf("refreshed level = %v, want 100", v)
	}
}

func TestWriteFailureRevertsOnRefresh(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "0"})
	ctrl.setErr = errControllerDown
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	if _, err := o.FetchState(ctx, lamp, false); err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}
	err := o.Write(ctx, lamp, device.PropLevel, 55)
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, errControllerDown) {
		t.Fatalf("Write() error = %v, want ErrWriteFailed", err)
	}

	o.Wait()
	if v, _ := o.Cache().Field(lamp.UUID, device.PropLevel); v != 0 {
		t.Errorf("level after refresh = %v, want controller value 0", v)
	}
	if m := o.Metrics(); m.WriteErrors != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestWriteSuppressed(t *testing.T) {
	ctrl := newMockController()
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()

	ctx, release := accessory.SuppressWrites(context.Background())
	defer release()
	if err := o.Write(ctx, lamp, device.PropLevel, 10); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	o.Wait()
	if len(ctrl.setCalls()) != 0 || ctrl.getCount() != 0 {
		t.Errorf("suppressed write reached the controller: sets=%v gets=%d", ctrl.setCalls(), ctrl.getCount())
	}
	if o.Metrics().WritesSuppressed != 1 {
		t.Errorf("metrics = %+v", o.Metrics())
	}
}

func TestWriteWithoutSnapshot(t *testing.T) {
	t.Run("fetches context first", func(t *testing.T) {
		ctrl := newMockController()
		ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "30"})
		o := newTestOrchestrator(t, ctrl)

		if err := o.Write(context.Background(), newLamp(), device.PropLevel, 30); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if ctrl.getCount() != 1 || len(ctrl.setCalls()) != 0 {
			t.Errorf("gets=%d sets=%v, want fetch then dedupe", ctrl.getCount(), ctrl.setCalls())
		}
	})

	t.Run("writes even if the fetch fails", func(t *testing.T) {
		ctrl := newMockController()
		ctrl.setFetchError("31", errControllerDown)
		o := newTestOrchestrator(t, ctrl)

		if err := o.Write(context.Background(), newStat(), device.PropTargetTemperature, 21.0); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		sets := ctrl.setCalls()
		if len(sets) != 1 || sets[0].VariableID != device.VarHeatpoint || sets[0].Value != "70" {
			t.Errorf("sets = %+v, want heatpoint fallback with 70F", sets)
		}
	})
}

func TestWriteDerivedResolvesVariable(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		current string
		wantVar string
	}{
		{"heat mode", "Heat", "75", device.VarHeatpoint},
		{"cool mode", "Cool", "60", device.VarCoolpoint},
		{"auto nearer coolpoint", "Auto", "75", device.VarCoolpoint},
		{"auto nearer heatpoint", "Auto", "70", device.VarHeatpoint},
		{"off below range", "Off", "50", device.VarHeatpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.setVariables("31", device.RawValues{
				device.VarTargetState:        tt.mode,
				device.VarHeatpoint:          "68",
				device.VarCoolpoint:          "77",
				device.VarCurrentTemperature: tt.current,
			})
			o := newTestOrchestrator(t, ctrl)
			stat := newStat()
			ctx := context.Background()

			if _, err := o.FetchState(ctx, stat, false); err != nil {
				t.Fatalf("FetchState() error = %v", err)
			}
			if err := o.Write(ctx, stat, device.PropTargetTemperature, 24.0); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			sets := ctrl.setCalls()
			if len(sets) != 1 {
				t.Fatalf("sets = %+v, want one", sets)
			}
			if sets[0].VariableID != tt.wantVar || sets[0].Value != "75" {
				t.Errorf("set = %+v, want %s=75", sets[0], tt.wantVar)
			}
		})
	}
}

func TestWriteRejects(t *testing.T) {
	o := newTestOrchestrator(t, newMockController())
	stat := newStat()
	ctx := context.Background()

	if err := o.Write(ctx, stat, device.PropCurrentTemperature, 20.0); !errors.Is(err, device.ErrReadOnly) {
		t.Errorf("Write(current_temperature) error = %v, want ErrReadOnly", err)
	}
	if err := o.Write(ctx, stat, "humidity", 40); !errors.Is(err, accessory.ErrUnknownProperty) {
		t.Errorf("Write(humidity) error = %v, want ErrUnknownProperty", err)
	}
	if err := o.Write(ctx, stat, device.PropTargetState, 7); !errors.Is(err, device.ErrInvalidValue) {
		t.Errorf("Write(target_state=7) error = %v, want ErrInvalidValue", err)
	}
	if err := o.Write(ctx, stat, device.PropHeatpoint, 95.0); !errors.Is(err, device.ErrInvalidValue) {
		t.Errorf("Write(heatpoint=95) error = %v, want ErrInvalidValue", err)
	}
	if err := o.Write(ctx, newLamp(), device.PropLevel, 250); !errors.Is(err, device.ErrInvalidValue) {
		t.Errorf("Write(level=250) error = %v, want ErrInvalidValue", err)
	}
}

func TestWriteRestoresCacheWhenNothingSent(t *testing.T) {
	lamp := newLamp()
	level, _ := lamp.Archetype.Mapping(device.PropLevel)

	unresolvable := level
	unresolvable.Derived = true
	unresolvable.ResolveID = nil

	unencodable := level
	unencodable.Rule = device.Rule{Kind: device.RuleKind(99)}

	tests := []struct {
		name string
		m    device.Mapping
		want error
	}{
		{"target cannot be resolved", unresolvable, device.ErrNotWritable},
		{"value cannot be encoded", unencodable, device.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "40"})
			o := newTestOrchestrator(t, ctrl)
			ctx := context.Background()

			if _, err := o.FetchState(ctx, lamp, false); err != nil {
				t.Fatalf("FetchState() error = %v", err)
			}

			unlock := o.lock(lamp.UUID)
			attempted, err := o.writeLocked(ctx, lamp, tt.m, 70)
			unlock()

			if !errors.Is(err, tt.want) {
				t.Errorf("writeLocked() error = %v, want %v", err, tt.want)
			}
			if attempted {
				t.Error("writeLocked() reported a remote attempt")
			}
			if sets := ctrl.setCalls(); len(sets) != 0 {
				t.Errorf("sets = %+v, want none", sets)
			}
			if v, _ := o.Cache().Field(lamp.UUID, device.PropLevel); v != 40 {
				t.Errorf("cached level = %v, want 40 restored", v)
			}
		})
	}
}

func TestConcurrentWritesAreSerialised(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "0"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	ctx := context.Background()

	if _, err := o.FetchState(ctx, lamp, false); err != nil {
		t.Fatalf("FetchState() error = %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- o.Write(ctx, lamp, device.PropLevel, 55)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}
	o.Wait()

	sets := ctrl.setCalls()
	if len(sets) != 1 || sets[0].Value != "55" {
		t.Fatalf("sets = %+v, want exactly one write of 55", sets)
	}
	if m := o.Metrics(); m.WritesDeduped != writers-1 {
		t.Errorf("deduped = %d, want %d", m.WritesDeduped, writers-1)
	}
	if v, _ := o.Cache().Field(lamp.UUID, device.PropLevel); v != 55 {
		t.Errorf("cached level = %v, want 55", v)
	}
}

func TestWritesInterleavedWithPollCycles(t *testing.T) {
	ctrl := newMockController()
	ctrl.setVariables("20", device.RawValues{device.LightLevelVariable: "0"})
	o := newTestOrchestrator(t, ctrl)
	lamp := newLamp()
	bindForTest(o, lamp)
	ctx := context.Background()

	p := NewPoller(o, func() []*accessory.Accessory { return []*accessory.Accessory{lamp} }, PollerOptions{})
	p.RunCycle(ctx)

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
				p.RunCycle(ctx)
			}
		}
	}()

	levels := []int{10, 20, 30, 40, 50}
	for _, lvl := range levels {
		if err := o.Write(ctx, lamp, device.PropLevel, lvl); err != nil {
			t.Errorf("Write(%d) error = %v", lvl, err)
		}
	}
	close(stop)
	<-polled
	o.Wait()

	sets := ctrl.setCalls()
	if len(sets) != len(levels) {
		t.Fatalf("sets = %+v, want one per distinct level", sets)
	}
	for i, lvl := range levels {
		if sets[i].Value != strconv.Itoa(lvl) {
			t.Errorf("set %d = %s, want %d", i, sets[i].Value, lvl)
		}
	}

	p.RunCycle(ctx)
	o.Wait()
	if v, _ := o.Cache().Field(lamp.UUID, device.PropLevel); v != 50 {
		t.Errorf("cached level = %v, want 50", v)
	}
	if v := lamp.Values()[device.PropLevel]; v != 50 {
		t.Errorf("pushed level = %v, want 50", v)
	}
	if m := o.Metrics(); m.WritesSuppressed == 0 {
		t.Error("poll pushes should reach the write path suppressed")
	}
}
