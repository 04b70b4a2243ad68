package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/jobs"
)

type idResponse struct {
	ID entity.ID `json:"id"`
}

func pathID(w http.ResponseWriter, r *http.Request) (entity.ID, bool) {
	id, err := entity.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return entity.ID{}, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"principal": s.vault.WhoAmI(caller(r))})
}

// Notes

func (s *Server) handleNotesList(w http.ResponseWriter, r *http.Request) {
	notes, err := s.vault.GetNotes(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleNoteCreate(w http.ResponseWriter, r *http.Request) {
	id, err := s.vault.CreateNote(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

type noteUpdateRequest struct {
	EncryptedText string `json:"encrypted_text"`
}

func (s *Server) handleNoteUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req noteUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.vault.UpdateNote(r.Context(), caller(r), id, req.EncryptedText); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNoteDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.DeleteNote(r.Context(), caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGranteeAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.AddGrantee(r.Context(), caller(r), id, chi.URLParam(r, "principal")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGranteeRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.RemoveGrantee(r.Context(), caller(r), id, chi.URLParam(r, "principal")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Keys

type noteKeyRequest struct {
	TransportPublicKey string `json:"transport_public_key"`
}

func (s *Server) handleNoteKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req noteKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := s.vault.DeriveNoteKey(r.Context(), caller(r), id, []byte(req.TransportPublicKey))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"encrypted_key": key})
}

func (s *Server) handleVerificationKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.vault.VerificationKey(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"verification_key": key})
}

// Passports

type passportCreateRequest struct {
	Name          string   `json:"agent_name"`
	AgentType     string   `json:"agent_type"`
	Capabilities  []string `json:"capabilities"`
	EncryptedSpec string   `json:"encrypted_specifications"`
}

func (s *Server) handlePassportCreate(w http.ResponseWriter, r *http.Request) {
	var req passportCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.vault.CreatePassport(r.Context(), caller(r), req.Name, req.AgentType, req.Capabilities, req.EncryptedSpec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handlePassportsList(w http.ResponseWriter, r *http.Request) {
	list, err := s.vault.ListMyPassports(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePassportGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.vault.GetPassport(r.Context(), caller(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeError(w, entity.NotFound(entity.KindPassport, id.String()))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePassportDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.DeletePassport(r.Context(), caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passportSpecRequest struct {
	EncryptedSpec string `json:"encrypted_specifications"`
}

func (s *Server) handlePassportSpec(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passportSpecRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.vault.UpdatePassportSpec(r.Context(), caller(r), id, req.EncryptedSpec); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passportEndpointsRequest struct {
	Endpoints []string `json:"api_endpoints"`
}

func (s *Server) handlePassportEndpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passportEndpointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.vault.SetPassportEndpoints(r.Context(), caller(r), id, req.Endpoints); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type passportActiveRequest struct {
	Active bool `json:"is_active"`
}

func (s *Server) handlePassportActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passportActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.vault.SetPassportActive(r.Context(), caller(r), id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Memories

type memoryAddRequest struct {
	Kind       string `json:"memory_type"`
	Content    string `json:"encrypted_content"`
	Importance int    `json:"importance_score"`
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r)
	if !ok {
		return
	}
	var req memoryAddRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.vault.AddMemory(r.Context(), caller(r), pid, req.Kind, req.Content, req.Importance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleMemoriesList(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r)
	if !ok {
		return
	}
	list, err := s.vault.ListMemories(r.Context(), caller(r), pid, r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.DeleteMemory(r.Context(), caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tokens

type tokenCreateRequest struct {
	PassportID  entity.ID  `json:"passport_id"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type tokenCreateResponse struct {
	Token  *entity.Token `json:"token"`
	Secret string        `json:"secret"`
}

func (s *Server) handleTokenCreate(w http.ResponseWriter, r *http.Request) {
	var req tokenCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, secret, err := s.vault.CreateToken(r.Context(), caller(r), req.PassportID, req.Name, req.Permissions, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenCreateResponse{Token: tok, Secret: secret})
}

func (s *Server) handleTokensList(w http.ResponseWriter, r *http.Request) {
	list, err := s.vault.ListMyTokens(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.vault.RevokeToken(r.Context(), caller(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tokenVerifyRequest struct {
	Secret     string `json:"secret"`
	Permission string `json:"permission"`
}

func (s *Server) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req tokenVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := s.vault.VerifyToken(r.Context(), caller(r), id, req.Secret, req.Permission)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// Jobs

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	var settings entity.JobSettings
	if !decodeJSON(w, r, &settings) {
		return
	}
	key, err := s.vault.CreateJob(r.Context(), caller(r), settings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": key})
}

func (s *Server) handleJobsList(w http.ResponseWriter, r *http.Request) {
	list, err := s.vault.ListMyJobs(r.Context(), caller(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.vault.GetJob(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type jobAdvanceRequest struct {
	jobs.Update
	ResultPayload string `json:"result_payload,omitempty"`
}

func (s *Server) handleJobAdvance(w http.ResponseWriter, r *http.Request) {
	var req jobAdvanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := s.vault.AdvanceJob(r.Context(), caller(r), chi.URLParam(r, "id"), req.Update, req.ResultPayload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
