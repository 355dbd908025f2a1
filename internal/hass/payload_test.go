package hass

import (
	"errors"
	"testing"

	"github.com/nerrad567/c4-bridge/internal/device"
)

func mapping(t *testing.T, a device.Archetype, name string) device.Mapping {
	t.Helper()
	m, ok := a.Mapping(name)
	if !ok {
		t.Fatalf("no mapping %q", name)
	}
	return m
}

func TestEncodeValue(t *testing.T) {
	light := device.NewLight()
	stat := device.NewThermostat(device.ThermostatOptions{})

	tests := []struct {
		name  string
		m     device.Mapping
		value any
		want  string
	}{
		{"on", mapping(t, light, device.PropState), true, "ON"},
		{"off", mapping(t, light, device.PropState), false, "OFF"},
		{"level", mapping(t, light, device.PropLevel), 40, "40"},
		{"mode heat", mapping(t, stat, device.PropTargetState), device.ModeHeat, "heat"},
		{"mode auto", mapping(t, stat, device.PropTargetState), device.ModeAuto, "auto"},
		{"action cooling", mapping(t, stat, device.PropCurrentState), device.ModeCool, "cooling"},
		{"action off", mapping(t, stat, device.PropCurrentState), device.ModeOff, "off"},
		{"temperature", mapping(t, stat, device.PropCurrentTemperature), 21.5, "21.5"},
		{"whole temperature", mapping(t, stat, device.PropHeatpoint), 20.0, "20"},
		{"unit", mapping(t, stat, device.PropUnit), device.UnitFahrenheit, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeValue(tt.m, tt.value); got != tt.want {
				t.Errorf("EncodeValue(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	light := device.NewLight()
	stat := device.NewThermostat(device.ThermostatOptions{})

	tests := []struct {
		name    string
		m       device.Mapping
		payload string
		want    any
		wantErr error
	}{
		{"on", mapping(t, light, device.PropState), "ON", true, nil},
		{"off lowercase", mapping(t, light, device.PropState), "off", false, nil},
		{"bool text passes through", mapping(t, light, device.PropState), "true", "true", nil},
		{"level", mapping(t, light, device.PropLevel), " 55 ", "55", nil},
		{"mode name", mapping(t, stat, device.PropTargetState), "Cool", device.ModeCool, nil},
		{"mode number", mapping(t, stat, device.PropTargetState), "3", "3", nil},
		{"temperature", mapping(t, stat, device.PropTargetTemperature), "22.5", "22.5", nil},
		{"empty", mapping(t, light, device.PropLevel), "  ", nil, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.m, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodePayload(%q) = %#v, want %#v", tt.payload, got, tt.want)
			}
		})
	}
}
