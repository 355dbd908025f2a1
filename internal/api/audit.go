package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/c4-bridge/internal/audit"
)

// handleListAudit returns journaled user writes, most recent first.
//
// Query parameters:
//   - uuid: one accessory
//   - property: one property name
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "audit journal is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		UUID:     q.Get("uuid"),
		Property: q.Get("property"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, name+" must be an integer")
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
