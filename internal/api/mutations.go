package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/serverdb"
	"github.com/marcus/till/internal/syncclient"
)

// handleMutation handles POST /v1/mutations. Applied mutations answer 200,
// or 201 when a CREATE is first stored; conflicts answer 409 with the stored
// copy; mutations that can never apply answer 422 with ok=false.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req syncclient.Mutation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = r.Header.Get(syncclient.DeviceHeader)
	}

	action, err := models.ParseAction(req.Action)
	if err != nil {
		s.metrics.RecordMutation("rejected")
		writeJSON(w, http.StatusUnprocessableEntity, syncclient.MutationResponse{Error: err.Error()})
		return
	}

	out, err := s.store.Apply(serverdb.Mutation{
		ID:       req.MutationID,
		DeviceID: req.DeviceID,
		Action:   action,
		Payload:  req.Payload,
		Force:    req.Force,
	})
	if errors.Is(err, serverdb.ErrUnavailable) {
		logFor(r.Context()).Error("apply mutation: store unavailable", "mutation", req.MutationID, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "store unavailable, retry later")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("apply mutation", "mutation", req.MutationID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to apply mutation")
		return
	}

	switch out.Verdict {
	case serverdb.Applied:
		status := http.StatusOK
		verdict := "applied"
		if out.Replayed {
			verdict = "replayed"
		} else if action.Kind == models.ActionCreate {
			status = http.StatusCreated
		}
		s.metrics.RecordMutation(verdict)
		writeJSON(w, status, syncclient.MutationResponse{OK: true, ServerKey: out.ServerKey})
	case serverdb.Conflicted:
		s.metrics.RecordMutation("conflict")
		logFor(r.Context()).Info("mutation conflict", "mutation", req.MutationID, "action", req.Action,
			"server_key", out.ServerKey, "remote_updated_at", out.RemoteUpdatedAt)
		writeJSON(w, http.StatusConflict, syncclient.MutationResponse{
			ServerKey: out.ServerKey,
			Conflict: &syncclient.Conflict{
				RemoteUpdatedAt: out.RemoteUpdatedAt,
				RemotePayload:   out.RemotePayload,
			},
		})
	default:
		s.metrics.RecordMutation("rejected")
		writeJSON(w, http.StatusUnprocessableEntity, syncclient.MutationResponse{Error: out.Reason})
	}
}
