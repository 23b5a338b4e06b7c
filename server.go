package ezredirect

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Server is the HTTP layer over the state engine. Each endpoint maps 1:1 to
// an engine operation; mutating endpoints go through key auth when it is
// enabled.
type Server struct {
	state   *State
	journal *Journal
	mux     *http.ServeMux
}

func NewServer(state *State, journal *Journal) *Server {
	s := &Server{state: state, journal: journal}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /redirect", s.handleRedirect)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/current", s.handleCurrent)

	mux.HandleFunc("POST /api/set", s.protected(s.handleSet))
	mux.HandleFunc("POST /api/temp", s.protected(s.handleTemp))
	mux.HandleFunc("POST /api/set-default", s.protected(s.handleSetDefault))

	mux.HandleFunc("GET /api/presets", s.handlePresetList)
	mux.HandleFunc("POST /api/presets/add", s.protected(s.handlePresetAdd))
	mux.HandleFunc("POST /api/presets/delete", s.protected(s.handlePresetDelete))
	mux.HandleFunc("POST /api/presets/rename", s.protected(s.handlePresetRename))
	mux.HandleFunc("POST /api/preset/activate", s.protected(s.handlePresetActivate))
	mux.HandleFunc("GET /preset/{name}", s.protected(s.handlePresetByURL))

	mux.HandleFunc("GET /api/port", s.handlePortGet)
	mux.HandleFunc("POST /api/port", s.protected(s.handlePortSet))

	mux.HandleFunc("GET /api/security/status", s.handleSecurityStatus)
	mux.HandleFunc("POST /api/security/toggle", s.protected(s.handleSecurityToggle))
	mux.HandleFunc("POST /api/security/set-key", s.protected(s.handleSecuritySetKey))
	mux.HandleFunc("POST /api/security/regenerate", s.protected(s.handleSecurityRegenerate))

	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// protected rejects the request with 401 unless the provided key passes
// Authorize. The key travels either in the X-API-Key header or, for plain
// GET links (NFC tags), in the key query parameter.
func (s *Server) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("key")
		}
		if !s.state.Authorize(key) {
			http.Error(w, "invalid or missing api key", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSONBody(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeOpError maps engine error kinds onto HTTP status codes.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPresetNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrPersistence):
		log.Printf("persistence error: %v", err)
		http.Error(w, "persistence failure", http.StatusInternalServerError)
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidPort), errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrMissingAPIKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// handleRedirect is the endpoint NFC tags point at: a 302 to the effective
// target, expiry already resolved.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	target, _ := s.state.Effective()
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ez-redirect",
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, s.state.Info())
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.SetCurrent(reqBody.URL); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"current_url": reqBody.URL,
	})
}

func (s *Server) handleTemp(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		URL     string `json:"url"`
		Seconds int64  `json:"seconds"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	expires, err := s.state.SetTemporary(reqBody.URL, time.Duration(reqBody.Seconds)*time.Second)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"current_url": reqBody.URL,
		"expires_in":  reqBody.Seconds,
		"expires_at":  expires,
	})
}

func (s *Server) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.SetDefault(reqBody.URL); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"default_url": reqBody.URL,
	})
}

func (s *Server) handlePresetList(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, s.state.PresetsSnapshot())
}

func (s *Server) handlePresetAdd(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.SetPreset(reqBody.Name, reqBody.URL); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresetDelete(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.DeletePreset(reqBody.Name); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresetRename(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Old string `json:"old"`
		New string `json:"new"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.RenamePreset(reqBody.Old, reqBody.New); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePresetActivate activates a preset permanently, or temporarily when a
// positive seconds field is supplied.
func (s *Server) handlePresetActivate(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Name    string `json:"name"`
		Seconds *int64 `json:"seconds"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	s.activatePreset(w, reqBody.Name, reqBody.Seconds)
}

// handlePresetByURL activates a preset from a bare GET link, e.g.
// /preset/giving?key=SECRET. An optional seconds query makes it temporary.
func (s *Server) handlePresetByURL(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var seconds *int64
	if raw := r.URL.Query().Get("seconds"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "'seconds' must be an integer", http.StatusBadRequest)
			return
		}
		seconds = &v
	}
	s.activatePreset(w, name, seconds)
}

func (s *Server) activatePreset(w http.ResponseWriter, name string, seconds *int64) {
	resp := map[string]interface{}{
		"status":        "ok",
		"active_preset": name,
	}
	if seconds == nil {
		target, err := s.state.ActivatePreset(name)
		if err != nil {
			writeOpError(w, err)
			return
		}
		resp["active_url"] = target
	} else {
		target, expires, err := s.state.ActivatePresetTemporary(name, time.Duration(*seconds)*time.Second)
		if err != nil {
			writeOpError(w, err)
			return
		}
		resp["active_url"] = target
		resp["expires_at"] = expires
	}
	writeJSONBody(w, http.StatusOK, resp)
}

func (s *Server) handlePortGet(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, map[string]int{"port": s.state.Port()})
}

func (s *Server) handlePortSet(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Port int `json:"port"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.SetPort(reqBody.Port); err != nil {
		writeOpError(w, err)
		return
	}
	// The listening socket is not rebound; the operator restarts the
	// service to pick the new port up.
	writeJSONBody(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"port":             reqBody.Port,
		"requires_restart": true,
	})
}

func (s *Server) handleSecurityStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONBody(w, http.StatusOK, s.state.SecurityStatus())
}

func (s *Server) handleSecurityToggle(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Enabled *bool  `json:"enabled"`
		APIKey  string `json:"api_key"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if reqBody.Enabled == nil {
		http.Error(w, "missing 'enabled'", http.StatusBadRequest)
		return
	}
	if err := s.state.SetAPIKeyEnabled(*reqBody.Enabled, reqBody.APIKey); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, s.state.SecurityStatus())
}

func (s *Server) handleSecuritySetKey(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		APIKey string `json:"api_key"`
	}
	if !decodeBody(w, r, &reqBody) {
		return
	}
	if err := s.state.SetAPIKey(reqBody.APIKey); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, s.state.SecurityStatus())
}

// handleSecurityRegenerate answers with the fresh key; this response is the
// only place a key leaves the server.
func (s *Server) handleSecurityRegenerate(w http.ResponseWriter, r *http.Request) {
	key, err := s.state.RegenerateAPIKey()
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSONBody(w, http.StatusOK, map[string]interface{}{
		"enabled": s.state.SecurityStatus().Enabled,
		"api_key": key,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	items := []JournalEntry{}
	if s.journal != nil {
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				http.Error(w, "'since' must be RFC3339", http.StatusBadRequest)
				return
			}
			items, err = s.journal.Since(t)
			if err != nil {
				log.Printf("journal query error: %v", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			if items == nil {
				items = []JournalEntry{}
			}
		} else {
			items = s.journal.Recent()
		}
	}
	writeJSONBody(w, http.StatusOK, map[string]interface{}{"items": items})
}
