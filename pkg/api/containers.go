package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dockfleet/dockfleet/pkg/types"
)

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	containers, err := s.exec.ListContainers(r.Context(), userFrom(r), hostParam(r), all)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, containers)
}

func (s *Server) handleInspectContainer(w http.ResponseWriter, r *http.Request) {
	detail, err := s.exec.InspectContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var spec types.ContainerSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.exec.CreateContainer(r.Context(), userFrom(r), hostParam(r), &spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleStartContainer(w http.ResponseWriter, r *http.Request) {
	err := s.exec.StartContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopContainer(w http.ResponseWriter, r *http.Request) {
	err := s.exec.StopContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), timeoutParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestartContainer(w http.ResponseWriter, r *http.Request) {
	err := s.exec.RestartContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), timeoutParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseContainer(w http.ResponseWriter, r *http.Request) {
	err := s.exec.PauseContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpauseContainer(w http.ResponseWriter, r *http.Request) {
	err := s.exec.UnpauseContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveContainer(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	err := s.exec.RemoveContainer(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), force)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// timeoutParam reads the optional stop/restart grace period in seconds
func timeoutParam(r *http.Request) *int {
	if v := r.URL.Query().Get("timeout"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}
