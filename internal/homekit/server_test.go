package homekit

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/config"
)

var (
	lampContext = device.Context{Name: "Lamp", Room: "Den", ProxyID: "20", DriverFileName: device.LightDriverFileName}
	statContext = device.Context{Name: "Stat", Room: "Hall", ProxyID: "31", DriverFileName: device.ThermostatDriverFileName}
)

func enabledConfig() config.HomeKitConfig {
	return config.HomeKitConfig{
		Enabled:     true,
		Pin:         "00102003",
		StoragePath: "unused",
		BridgeName:  "Test Bridge",
	}
}

func newTestServer(t *testing.T) (*Server, *accessory.Accessory, *accessory.Accessory) {
	t.Helper()
	lamp := accessory.New(lampContext, device.NewLight())
	stat := accessory.New(statContext, device.NewThermostat(device.ThermostatOptions{}))
	s, err := New(enabledConfig(), []*accessory.Accessory{lamp, stat}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, lamp, stat
}

func TestNewRejects(t *testing.T) {
	if _, err := New(config.HomeKitConfig{}, nil, nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled error = %v", err)
	}
	if _, err := New(enabledConfig(), nil, nil); !errors.Is(err, ErrNoAccessories) {
		t.Errorf("empty error = %v", err)
	}
}

func TestNewBuildsAccessories(t *testing.T) {
	s, lamp, stat := newTestServer(t)

	accs := s.Accessories()
	if len(accs) != 2 {
		t.Fatalf("accessories = %d, want 2", len(accs))
	}
	if accs[0].Id != AccessoryID(lamp.UUID) || accs[1].Id != AccessoryID(stat.UUID) {
		t.Errorf("ids = %d, %d", accs[0].Id, accs[1].Id)
	}
	if got := len(s.bindings[stat.UUID]); got != 7 {
		t.Errorf("thermostat bindings = %d, want 7", got)
	}
	if got := len(s.bindings[lamp.UUID]); got != 2 {
		t.Errorf("light bindings = %d, want 2", got)
	}
}

func TestAccessoryIDStable(t *testing.T) {
	a := AccessoryID("abc")
	if a != AccessoryID("abc") {
		t.Error("AccessoryID is not deterministic")
	}
	if a <= bridgeAccessoryID {
		t.Errorf("AccessoryID = %d collides with the bridge", a)
	}
	if a == AccessoryID("abd") {
		t.Error("different UUIDs produced the same id")
	}
}

func TestHAPValue(t *testing.T) {
	light := device.NewLight()
	stat := device.NewThermostat(device.ThermostatOptions{})
	level, _ := light.Mapping(device.PropLevel)
	heat, _ := stat.Mapping(device.PropHeatpoint)
	state, _ := light.Mapping(device.PropState)

	tests := []struct {
		name string
		m    device.Mapping
		in   any
		want interface{}
	}{
		{"int stays int", level, 40, 40},
		{"float to int", level, 40.0, 40},
		{"int to float", heat, 20, 20.0},
		{"float stays", heat, 21.5, 21.5},
		{"bool", state, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HAPValue(tt.m, tt.in); got != tt.want {
				t.Errorf("HAPValue(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemoteReadAndWrite(t *testing.T) {
	s, lamp, stat := newTestServer(t)
	req := httptest.NewRequest("PUT", "/characteristics", nil)

	level := s.bindings[lamp.UUID][device.PropLevel]
	if _, code := level.ValueRequestFunc(req); code != statusCommunicationFailure {
		t.Errorf("read without a value code = %d, want failure", code)
	}

	if _, code := level.SetValueRequestFunc(float64(65), req); code != statusSuccess {
		t.Fatalf("write code = %d", code)
	}
	if v := lamp.Values()[device.PropLevel]; v != 65 {
		t.Errorf("level = %v, want 65", v)
	}
	if v, code := level.ValueRequestFunc(req); code != statusSuccess || v != 65 {
		t.Errorf("read = %v, %d", v, code)
	}

	current := s.bindings[stat.UUID][device.PropCurrentTemperature]
	if current.SetValueRequestFunc != nil {
		t.Error("read-only property accepts HomeKit writes")
	}

	if _, code := level.SetValueRequestFunc("bright", req); code != statusCommunicationFailure {
		t.Errorf("invalid write code = %d, want failure", code)
	}
}

func TestHandleEventSkipsHomeKitWrites(t *testing.T) {
	s, lamp, _ := newTestServer(t)
	level := s.bindings[lamp.UUID][device.PropLevel]
	before := fmt.Sprint(level.Val)

	s.HandleEvent(fromHAP(context.Background()), accessory.Event{
		Accessory: lamp,
		Property:  device.PropLevel,
		Value:     10,
	})
	if fmt.Sprint(level.Val) != before {
		t.Errorf("echoed a HomeKit write: %v", level.Val)
	}

	s.HandleEvent(context.Background(), accessory.Event{
		Accessory: lamp,
		Property:  device.PropLevel,
		Value:     10,
	})
	if fmt.Sprint(level.Val) != "10" {
		t.Errorf("level = %v, want 10", level.Val)
	}
}
