package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dockfleet/dockfleet/pkg/executor"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// hostRequest is the wire shape for host create and update. Credential
// values are plaintext in flight (the API should sit behind TLS) and
// encrypted before storage.
type hostRequest struct {
	Name        *string                         `json:"name,omitempty"`
	Kind        *types.ConnectionKind           `json:"kind,omitempty"`
	Endpoint    *string                         `json:"endpoint,omitempty"`
	Active      *bool                           `json:"active,omitempty"`
	Default     *bool                           `json:"default,omitempty"`
	Credentials map[types.CredentialKind][]byte `json:"credentials,omitempty"`
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.exec.ListHosts(r.Context(), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	host, err := s.exec.GetHost(r.Context(), userFrom(r), chi.URLParam(r, "hostID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (s *Server) handleCreateHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	spec := &executor.HostSpec{Credentials: req.Credentials}
	if req.Name != nil {
		spec.Name = *req.Name
	}
	if req.Kind != nil {
		spec.Kind = *req.Kind
	}
	if req.Endpoint != nil {
		spec.Endpoint = *req.Endpoint
	}
	if req.Default != nil {
		spec.Default = *req.Default
	}

	host, err := s.exec.CreateHost(r.Context(), userFrom(r), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, host)
}

func (s *Server) handleUpdateHost(w http.ResponseWriter, r *http.Request) {
	var req hostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	host, err := s.exec.UpdateHost(r.Context(), userFrom(r), chi.URLParam(r, "hostID"), &executor.HostUpdate{
		Name:        req.Name,
		Kind:        req.Kind,
		Endpoint:    req.Endpoint,
		Active:      req.Active,
		Default:     req.Default,
		Credentials: req.Credentials,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, host)
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.DeleteHost(r.Context(), userFrom(r), chi.URLParam(r, "hostID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestHost(w http.ResponseWriter, r *http.Request) {
	version, err := s.exec.TestConnection(r.Context(), userFrom(r), chi.URLParam(r, "hostID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"engine_version": version})
}

func (s *Server) handleBreakerSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.exec.BreakerSnapshot(r.Context(), userFrom(r), chi.URLParam(r, "hostID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.ResetBreaker(r.Context(), userFrom(r), chi.URLParam(r, "hostID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutGrant(w http.ResponseWriter, r *http.Request) {
	var grant types.Grant
	if err := decodeJSON(r, &grant); err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.PutGrant(r.Context(), userFrom(r), &grant); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleDeleteGrant(w http.ResponseWriter, r *http.Request) {
	err := s.exec.DeleteGrant(r.Context(), userFrom(r), chi.URLParam(r, "userID"), chi.URLParam(r, "hostID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
