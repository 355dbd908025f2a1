package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/c4-bridge/internal/accessory"
	"github.com/nerrad567/c4-bridge/internal/device"
)

// AccessoryView is the JSON representation of an accessory.
type AccessoryView struct {
	UUID           string         `json:"uuid"`
	Name           string         `json:"name"`
	Room           string         `json:"room"`
	ProxyID        string         `json:"proxy_id"`
	DriverFileName string         `json:"driver_file_name"`
	Type           string         `json:"type"`
	Service        device.Service `json:"service"`
	Properties     []PropertyView `json:"properties"`
}

// PropertyView is the JSON representation of one accessory property.
type PropertyView struct {
	Name           string                `json:"name"`
	Characteristic device.Characteristic `json:"characteristic"`
	Format         device.Format         `json:"format"`
	ReadOnly       bool                  `json:"read_only"`
	Props          *device.Props         `json:"props,omitempty"`
	Value          any                   `json:"value,omitempty"`
	UpdatedAt      *time.Time            `json:"updated_at,omitempty"`
}

func accessoryView(acc *accessory.Accessory) AccessoryView {
	v := AccessoryView{
		UUID:           acc.UUID,
		Name:           acc.Context.Name,
		Room:           acc.Context.Room,
		ProxyID:        acc.Context.ProxyID,
		DriverFileName: acc.Context.DriverFileName,
		Type:           acc.Archetype.TypeKey(),
		Service:        acc.Archetype.Service(),
	}
	for _, c := range acc.Characteristics() {
		p := PropertyView{
			Name:           c.Name(),
			Characteristic: c.Mapping().Characteristic,
			Format:         c.Mapping().Format,
			ReadOnly:       c.ReadOnly(),
		}
		if props := c.Props(); props.HasRange() || len(props.ValidValues) > 0 || props.Unit != "" {
			p.Props = &props
		}
		if value, ok := c.Value(); ok {
			p.Value = value
			at := c.UpdatedAt()
			p.UpdatedAt = &at
		}
		v.Properties = append(v.Properties, p)
	}
	return v
}

func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	accs := s.bridge.Accessories()
	views := make([]AccessoryView, 0, len(accs))
	for _, acc := range accs {
		views = append(views, accessoryView(acc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": views,
		"count":       len(views),
	})
}

func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	acc, err := s.bridge.Accessory(chi.URLParam(r, "uuid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accessoryView(acc))
}

func (s *Server) handleRemoveAccessory(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.Remove(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshAccessory(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	snap, err := s.bridge.Refresh(r.Context(), uuid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":   uuid,
		"values": snap,
	})
}

// handleGetProperty reads one property, from the cache unless cached=false.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	acc, c, ok := s.lookupProperty(w, r)
	if !ok {
		return
	}

	cached := r.URL.Query().Get("cached") != "false"
	var (
		value any
		err   error
	)
	if cached {
		value, err = c.Get(r.Context())
	} else {
		value, err = s.bridge.Orchestrator().Read(r.Context(), acc, c.Name(), false)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":     acc.UUID,
		"property": c.Name(),
		"value":    value,
		"cached":   cached,
	})
}

// handleSetProperty validates {"value": v} against the property schema and
// writes it through the characteristic.
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	acc, c, ok := s.lookupProperty(w, r)
	if !ok {
		return
	}
	if c.ReadOnly() {
		writeDomainError(w, device.ErrReadOnly)
		return
	}

	value, err := s.schemas.decodeWrite(acc.Archetype.TypeKey(), c.Mapping(), r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := c.Set(r.Context(), value); err != nil {
		writeDomainError(w, err)
		return
	}

	current, _ := c.Value()
	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":     acc.UUID,
		"property": c.Name(),
		"value":    current,
	})
}

func (s *Server) lookupProperty(w http.ResponseWriter, r *http.Request) (*accessory.Accessory, *accessory.Characteristic, bool) {
	acc, err := s.bridge.Accessory(chi.URLParam(r, "uuid"))
	if err != nil {
		writeDomainError(w, err)
		return nil, nil, false
	}
	c, ok := acc.Characteristic(chi.URLParam(r, "name"))
	if !ok {
		writeNotFound(w, "unknown property "+chi.URLParam(r, "name"))
		return nil, nil, false
	}
	return acc, c, true
}

func (s *Server) handlePollerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Poller().Status())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	added, err := s.bridge.Discover(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added": added,
		"total": len(s.bridge.Accessories()),
	})
}
