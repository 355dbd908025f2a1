package homekit

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/brutella/hap"
	hapacc "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
	"github.com/nerrad567/c4-bridge/internal/infrastructure/config"
)

// HAP status codes returned to paired controllers.
const (
	statusSuccess              = 0
	statusCommunicationFailure = -70402
)

// bridgeAccessoryID is reserved for the bridge itself.
const bridgeAccessoryID = 1

// requestTimeout bounds a HAP read or write reaching the controller.
const requestTimeout = 10 * time.Second

// Logger is the structured logger used by the HomeKit server.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// binding links one accessory characteristic to its HAP counterpart.
type binding struct {
	char *accessory.Characteristic
}

type originKey struct{}

// fromHAP marks a context as carrying a write made by a paired controller.
func fromHAP(ctx context.Context) context.Context {
	return context.WithValue(ctx, originKey{}, true)
}

func isFromHAP(ctx context.Context) bool {
	v, _ := ctx.Value(originKey{}).(bool)
	return v
}

// Server exposes accessories over HAP.
type Server struct {
	cfg    config.HomeKitConfig
	logger Logger

	bridge      *hapacc.Bridge
	accessories []*hapacc.A

	mu       sync.RWMutex
	bindings map[string]map[string]*characteristic.C // uuid -> property -> hap characteristic
}

// New builds the HAP accessory tree for accs. Accessories whose service has
// no HomeKit equivalent are skipped.
func New(cfg config.HomeKitConfig, accs []*accessory.Accessory, logger Logger) (*Server, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		bindings: make(map[string]map[string]*characteristic.C),
	}

	s.bridge = hapacc.NewBridge(hapacc.Info{
		Name:         cfg.BridgeName,
		Manufacturer: "Control4",
		Model:        "c4bridge",
		SerialNumber: "c4bridge",
	})
	s.bridge.A.Id = bridgeAccessoryID

	for _, acc := range accs {
		a, ok := s.build(acc)
		if !ok {
			logger.Debug("no HomeKit service for accessory", "uuid", acc.UUID, "service", acc.Archetype.Service())
			continue
		}
		s.accessories = append(s.accessories, a)
	}
	if len(s.accessories) == 0 {
		return nil, ErrNoAccessories
	}
	return s, nil
}

func info(acc *accessory.Accessory) hapacc.Info {
	return hapacc.Info{
		Name:         acc.DisplayName(),
		Manufacturer: "Control4",
		Model:        acc.Context.DriverFileName,
		SerialNumber: acc.Context.ProxyID,
	}
}

// AccessoryID derives a stable HAP accessory ID from an accessory UUID so
// pairings survive restarts and reordering.
func AccessoryID(uuid string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(uuid))
	id := h.Sum64()
	if id <= bridgeAccessoryID {
		id += bridgeAccessoryID + 1
	}
	return id
}

func (s *Server) build(acc *accessory.Accessory) (*hapacc.A, bool) {
	switch acc.Archetype.Service() {
	case device.ServiceLightbulb:
		a := hapacc.NewLightbulb(info(acc))
		brightness := characteristic.NewBrightness()
		a.Lightbulb.AddC(brightness.C)

		s.link(acc, device.PropState, a.Lightbulb.On.C)
		s.link(acc, device.PropLevel, brightness.C)
		a.A.Id = AccessoryID(acc.UUID)
		return a.A, true

	case device.ServiceThermostat:
		a := hapacc.NewThermostat(info(acc))
		heating := characteristic.NewHeatingThresholdTemperature()
		cooling := characteristic.NewCoolingThresholdTemperature()
		a.Thermostat.AddC(heating.C)
		a.Thermostat.AddC(cooling.C)

		t := a.Thermostat
		s.link(acc, device.PropUnit, t.TemperatureDisplayUnits.C)
		s.link(acc, device.PropCurrentState, t.CurrentHeatingCoolingState.C)
		s.link(acc, device.PropTargetState, t.TargetHeatingCoolingState.C)
		s.link(acc, device.PropCurrentTemperature, t.CurrentTemperature.C)
		s.link(acc, device.PropHeatpoint, heating.C)
		s.link(acc, device.PropCoolpoint, cooling.C)
		s.link(acc, device.PropTargetTemperature, t.TargetTemperature.C)
		a.A.Id = AccessoryID(acc.UUID)
		return a.A, true
	}
	return nil, false
}

// link routes HAP reads and writes for hc through the named characteristic.
func (s *Server) link(acc *accessory.Accessory, property string, hc *characteristic.C) {
	char, ok := acc.Characteristic(property)
	if !ok {
		return
	}
	applyProps(hc, char.Props())

	b := binding{char: char}
	hc.ValueRequestFunc = func(r *http.Request) (interface{}, int) {
		return s.read(requestContext(r), b)
	}
	if !char.ReadOnly() {
		hc.SetValueRequestFunc = func(v interface{}, r *http.Request) (interface{}, int) {
			if r == nil {
				return nil, statusSuccess
			}
			return s.write(requestContext(r), b, v)
		}
	}

	s.mu.Lock()
	if s.bindings[acc.UUID] == nil {
		s.bindings[acc.UUID] = make(map[string]*characteristic.C)
	}
	s.bindings[acc.UUID][property] = hc
	s.mu.Unlock()
}

func requestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}

// applyProps copies numeric constraints onto the HAP characteristic.
func applyProps(hc *characteristic.C, p device.Props) {
	if !p.HasRange() {
		return
	}
	hc.MinVal = p.MinValue
	hc.MaxVal = p.MaxValue
	if p.MinStep > 0 {
		hc.StepVal = p.MinStep
	}
}

func (s *Server) read(ctx context.Context, b binding) (interface{}, int) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	v, err := b.char.Get(ctx)
	if err != nil {
		s.logger.Warn("HomeKit read failed", "property", b.char.Name(), "error", err)
		return nil, statusCommunicationFailure
	}
	return HAPValue(b.char.Mapping(), v), statusSuccess
}

func (s *Server) write(ctx context.Context, b binding, v interface{}) (interface{}, int) {
	ctx, cancel := context.WithTimeout(fromHAP(ctx), requestTimeout)
	defer cancel()

	if err := b.char.Set(ctx, v); err != nil {
		s.logger.Warn("HomeKit write failed", "property", b.char.Name(), "value", v, "error", err)
		return nil, statusCommunicationFailure
	}
	return nil, statusSuccess
}

// HAPValue converts a logical value to the type its HAP characteristic
// format expects. Mode and unit enumerations already use HomeKit's numbering.
func HAPValue(m device.Mapping, v any) interface{} {
	switch m.Format {
	case device.FormatFloat:
		switch n := v.(type) {
		case int:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	case device.FormatInt:
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return v
}

// HandleEvent pushes a property change to paired controllers. It is an
// accessory.Listener. Changes written by HomeKit itself are not echoed; HAP
// stores those values once the write handler returns.
func (s *Server) HandleEvent(ctx context.Context, ev accessory.Event) {
	if isFromHAP(ctx) {
		return
	}
	s.mu.RLock()
	hc := s.bindings[ev.Accessory.UUID][ev.Property]
	s.mu.RUnlock()
	if hc == nil {
		return
	}
	m, ok := ev.Accessory.Archetype.Mapping(ev.Property)
	if !ok {
		return
	}
	hc.SetValueRequest(HAPValue(m, ev.Value), nil)
}

// Accessories returns the published HAP accessories, bridge excluded.
func (s *Server) Accessories() []*hapacc.A {
	return s.accessories
}

// ListenAndServe runs the HAP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	store := hap.NewFsStore(s.cfg.StoragePath)
	server, err := hap.NewServer(store, s.bridge.A, s.accessories...)
	if err != nil {
		return fmt.Errorf("creating HAP server: %w", err)
	}
	server.Pin = s.cfg.Pin
	if s.cfg.Port > 0 {
		server.Addr = fmt.Sprintf(":%d", s.cfg.Port)
	}

	s.logger.Info("HomeKit bridge starting",
		"name", s.cfg.BridgeName,
		"accessories", len(s.accessories),
		"addr", server.Addr)

	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("HAP server: %w", err)
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
