package api

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// Swarm membership

func (s *Server) handleSwarmInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdvertiseAddr string `json:"advertise_addr,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	nodeID, err := s.exec.SwarmInit(r.Context(), userFrom(r), hostParam(r), req.AdvertiseAddr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"node_id": nodeID})
}

func (s *Server) handleSwarmJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RemoteAddr string `json:"remote_addr"`
		JoinToken  string `json:"join_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.SwarmJoin(r.Context(), userFrom(r), hostParam(r), req.RemoteAddr, req.JoinToken); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwarmLeave(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.exec.SwarmLeave(r.Context(), userFrom(r), hostParam(r), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwarmTokens(w http.ResponseWriter, r *http.Request) {
	worker, manager, err := s.exec.SwarmJoinTokens(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"worker": worker, "manager": manager})
}

// Services

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.exec.ListServices(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	service, err := s.exec.GetService(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var spec types.ServiceSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.exec.CreateService(r.Context(), userFrom(r), hostParam(r), &spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	var spec types.ServiceSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.UpdateService(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), &spec); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScaleService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Replicas uint64 `json:"replicas"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.ScaleService(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), req.Replicas); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.RemoveService(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.exec.ListTasks(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Nodes

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.exec.ListNodes(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.exec.GetNode(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleNodeAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Availability string `json:"availability"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := s.exec.UpdateNodeAvailability(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), req.Availability)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.exec.RemoveNode(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Secrets and configs. Payload data crosses the wire base64-encoded.

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.exec.ListSecrets(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, secrets)
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	name, data, err := decodeNamedPayload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.exec.CreateSecret(r.Context(), userFrom(r), hostParam(r), name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveSecret(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.RemoveSecret(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.exec.ListConfigs(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	name, data, err := decodeNamedPayload(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.exec.CreateConfig(r.Context(), userFrom(r), hostParam(r), name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.RemoveConfig(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeNamedPayload(r *http.Request) (string, []byte, error) {
	var req struct {
		Name string `json:"name"`
		Data string `json:"data"` // base64
	}
	if err := decodeJSON(r, &req); err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return "", nil, errdefs.Wrap(errdefs.KindValidation, "data must be base64", err)
	}
	return req.Name, data, nil
}
