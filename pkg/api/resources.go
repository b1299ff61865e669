package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Images

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.exec.ListImages(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) handlePullImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.exec.PullImage(r.Context(), userFrom(r), hostParam(r), req.Ref); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.exec.RemoveImage(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id"), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePruneImages(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.exec.PruneImages(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"space_reclaimed": reclaimed})
}

// Volumes

func (s *Server) handleListVolumes(w http.ResponseWriter, r *http.Request) {
	volumes, err := s.exec.ListVolumes(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, volumes)
}

func (s *Server) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string            `json:"name"`
		Labels map[string]string `json:"labels,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	volume, err := s.exec.CreateVolume(r.Context(), userFrom(r), hostParam(r), req.Name, req.Labels)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, volume)
}

func (s *Server) handleRemoveVolume(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := s.exec.RemoveVolume(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "name"), force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePruneVolumes(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.exec.PruneVolumes(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"space_reclaimed": reclaimed})
}

// Networks

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.exec.ListNetworks(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, networks)
}

func (s *Server) handleCreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Driver string `json:"driver,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.exec.CreateNetwork(r.Context(), userFrom(r), hostParam(r), req.Name, req.Driver)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleRemoveNetwork(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.RemoveNetwork(r.Context(), userFrom(r), hostParam(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePruneNetworks(w http.ResponseWriter, r *http.Request) {
	removed, err := s.exec.PruneNetworks(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"networks_deleted": removed})
}

// System

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.exec.SystemInfo(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSystemVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.exec.ServerVersion(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.exec.DiskUsage(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleSystemPrune(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := s.exec.PruneContainers(r.Context(), userFrom(r), hostParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"space_reclaimed": reclaimed})
}
