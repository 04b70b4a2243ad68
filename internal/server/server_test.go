package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/entity"
	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/store"
	"github.com/roach88/enclave/internal/testutil"
	"github.com/roach88/enclave/internal/vault"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	kdf, err := keyderiv.NewLocal(bytes.Repeat([]byte{3}, keyderiv.MasterKeySize))
	require.NoError(t, err)

	v, err := vault.New(st, kdf, vault.WithClock(testutil.NewClock()))
	require.NoError(t, err)

	srv := httptest.NewServer(New(v, WithKDFHandler(keyderiv.Handler(kdf))).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, principal string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if principal != "" {
		req.Header.Set(PrincipalHeader, principal)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e.Error.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestWhoAmI(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/v1/whoami", "alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"principal":"alice"}`, string(body))
}

func TestMissingPrincipalIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodPost, "/v1/notes", "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))
}

func TestNoteShareFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/v1/notes", "alice", nil)
	require.Equal(t, http.StatusCreated, status)
	var created idResponse
	require.NoError(t, json.Unmarshal(body, &created))
	id := created.ID.String()
	assert.Equal(t, "1", id)

	status, _ = do(t, srv, http.MethodPut, "/v1/notes/"+id, "alice", noteUpdateRequest{EncryptedText: "c1"})
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/notes/"+id+"/grantees/bob", "alice", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = do(t, srv, http.MethodGet, "/v1/notes", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	var notes []entity.Note
	require.NoError(t, json.Unmarshal(body, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "c1", notes[0].EncryptedText)

	status, body = do(t, srv, http.MethodDelete, "/v1/notes/"+id, "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, _ = do(t, srv, http.MethodDelete, "/v1/notes/"+id+"/grantees/bob", "alice", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, srv, http.MethodPut, "/v1/notes/"+id, "bob", noteUpdateRequest{EncryptedText: "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, srv, http.MethodDelete, "/v1/notes/"+id, "alice", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, srv, http.MethodDelete, "/v1/notes/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}

func TestBadIDAndBody(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodDelete, "/v1/notes/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, body))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/passports", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set(PrincipalHeader, "alice")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNoteKeyDerivation(t *testing.T) {
	srv := newTestServer(t)
	transport, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	status, _ := do(t, srv, http.MethodPost, "/v1/notes", "alice", nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodGet, "/v1/keys/verification", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var vk map[string]string
	require.NoError(t, json.Unmarshal(body, &vk))
	assert.Len(t, vk["verification_key"], 64)

	status, body = do(t, srv, http.MethodPost, "/v1/notes/1/key", "alice",
		noteKeyRequest{TransportPublicKey: transport.Recipient().String()})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = do(t, srv, http.MethodPost, "/v1/notes/1/key", "mallory",
		noteKeyRequest{TransportPublicKey: transport.Recipient().String()})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))
}

func TestKDFMountedInDevMode(t *testing.T) {
	srv := newTestServer(t)

	client := keyderiv.NewClient(srv.URL + "/kdf")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	vk, err := client.PublicKey(ctx, keyderiv.NewKeyRequest())
	require.NoError(t, err)
	assert.Len(t, vk, 32)
}

func TestPassportMemoryTokenFlow(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodPost, "/v1/passports", "alice", passportCreateRequest{
		Name: "scout", AgentType: "Research", Capabilities: []string{"search"}, EncryptedSpec: "spec",
	})
	require.Equal(t, http.StatusCreated, status)
	var created idResponse
	require.NoError(t, json.Unmarshal(body, &created))
	pid := created.ID.String()

	status, _ = do(t, srv, http.MethodGet, "/v1/passports/"+pid, "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, srv, http.MethodGet, "/v1/passports/999", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, srv, http.MethodPut, "/v1/passports/"+pid+"/spec", "alice", passportSpecRequest{EncryptedSpec: "v2"})
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, srv, http.MethodPost, "/v1/passports/"+pid+"/memories", "alice",
		memoryAddRequest{Kind: "fact", Content: "m", Importance: 500})
	require.Equal(t, http.StatusCreated, status)

	status, body = do(t, srv, http.MethodGet, "/v1/passports/"+pid+"/memories?type=FACT", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var mems []entity.Memory
	require.NoError(t, json.Unmarshal(body, &mems))
	require.Len(t, mems, 1)
	assert.Equal(t, uint8(100), mems[0].Importance)

	status, body = do(t, srv, http.MethodPost, "/v1/tokens", "alice", tokenCreateRequest{
		PassportID: created.ID, Name: "ci", Permissions: []string{"read"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var tok tokenCreateResponse
	require.NoError(t, json.Unmarshal(body, &tok))

	tokPath := "/v1/tokens/" + tok.Token.ID.String()
	status, _ = do(t, srv, http.MethodPost, tokPath+"/verify", "alice", tokenVerifyRequest{Secret: tok.Secret, Permission: "read"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, srv, http.MethodPost, tokPath+"/revoke", "alice", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = do(t, srv, http.MethodPost, tokPath+"/verify", "alice", tokenVerifyRequest{Secret: tok.Secret})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, srv, http.MethodDelete, "/v1/passports/"+pid, "alice", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestJobFlow(t *testing.T) {
	srv := newTestServer(t)

	status, _ := do(t, srv, http.MethodPost, "/v1/notes", "alice", nil)
	require.Equal(t, http.StatusCreated, status)

	status, body := do(t, srv, http.MethodPost, "/v1/jobs", "alice", map[string]any{
		"dataset_id": "1", "num_records": 10, "privacy_level": "low",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var created map[string]string
	require.NoError(t, json.Unmarshal(body, &created))
	jobPath := "/v1/jobs/" + created["job_id"]

	status, body = do(t, srv, http.MethodPost, jobPath+"/advance", "alice", map[string]any{
		"progress": 100, "result_payload": "rows",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var job entity.Job
	require.NoError(t, json.Unmarshal(body, &job))
	assert.Equal(t, entity.JobCompleted, job.Status)
	require.NotNil(t, job.ResultNoteID)

	status, body = do(t, srv, http.MethodPost, jobPath+"/advance", "alice", map[string]any{"progress": 100})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", errorCode(t, body))

	status, body = do(t, srv, http.MethodPost, "/v1/jobs", "alice", map[string]any{
		"dataset_id": "1", "num_records": 0, "privacy_level": "low",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, body))

	status, body = do(t, srv, http.MethodGet, "/v1/jobs", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var list []entity.Job
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{entity.NotFound(entity.KindNote, "1"), http.StatusNotFound},
		{entity.Unauthorized(entity.KindNote, "1", "no"), http.StatusForbidden},
		{entity.CapacityExceeded("full"), http.StatusConflict},
		{entity.PayloadTooLarge(10, 5), http.StatusRequestEntityTooLarge},
		{entity.AllocatorExhausted(entity.KindNote), http.StatusInsufficientStorage},
		{entity.ExternalServiceFailure(io.EOF), http.StatusBadGateway},
		{entity.InvalidState(entity.KindJob, "j", "terminal"), http.StatusConflict},
		{entity.DanglingIndex(entity.KindNote, "1"), http.StatusInternalServerError},
		{entity.InvalidArgument("bad"), http.StatusBadRequest},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
