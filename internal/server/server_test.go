package server

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/blob"
	"github.com/wolfeidau/loadboard/internal/fleet"
	"github.com/wolfeidau/loadboard/internal/loads"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/orgs"
	"github.com/wolfeidau/loadboard/internal/store/memory"
)

type testAPI struct {
	t       *testing.T
	srv     *httptest.Server
	signing string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	privDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	verifier, err := auth.NewStaticKeyVerifier(
		string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})), auth.TokenIssuer)
	require.NoError(t, err)

	table := memory.NewTable()
	srv := NewServer(Config{
		Loads:       loads.NewService(loads.Config{Table: table, Blobs: blob.NewMemoryStore()}),
		Orgs:        orgs.NewService(orgs.Config{Table: table}),
		Fleet:       fleet.NewService(table, nil),
		AuthFunc:    auth.NewJWTAuthFunc(verifier),
		CORSOrigins: []string{"https://app.example.com"},
	})

	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(ts.Close)

	return &testAPI{
		t:       t,
		srv:     ts,
		signing: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})),
	}
}

func (a *testAPI) token(c auth.Claims) string {
	a.t.Helper()
	tok, err := auth.IssueToken(a.signing, c, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) tokenFor(u *models.User) string {
	return a.token(auth.Claims{
		Subject: u.ID.String(),
		Email:   u.Email,
		OrgID:   u.OrgID.String(),
		Role:    string(u.Role),
	})
}

func (a *testAPI) superuserToken() string {
	return a.token(auth.Claims{
		Subject: uuid.NewString(),
		Email:   "ops@loadboard.example.com",
		OrgID:   uuid.NewString(),
		Role:    string(models.RoleAdmin),
		Groups:  []string{auth.SuperuserGroup},
	})
}

// do sends a request and decodes a JSON response into out when non-nil.
func (a *testAPI) do(method, path, token string, body, out any) int {
	a.t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer res.Body.Close()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

// seedOrg creates a tenant with an admin and a driver.
func (a *testAPI) seedOrg() (admin, driver *models.User) {
	a.t.Helper()

	var created createOrganizationResponse
	status := a.do(http.MethodPost, "/v1/orgs", a.superuserToken(), orgs.CreateOrganizationInput{
		Name:  "Acme Freight",
		Admin: orgs.AdminInput{Email: "admin-" + uuid.NewString()[:8] + "@acme.example.com", Name: "Ada Admin"},
	}, &created)
	require.Equal(a.t, http.StatusCreated, status)
	admin = created.Admin

	driver = &models.User{}
	status = a.do(http.MethodPost, "/v1/orgs/"+admin.OrgID.String()+"/users", a.tokenFor(admin), orgs.NewUserInput{
		Email: "driver-" + uuid.NewString()[:8] + "@acme.example.com",
		Name:  "Dan Driver",
		Role:  models.RoleDriver,
	}, driver)
	require.Equal(a.t, http.StatusCreated, status)

	return admin, driver
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	var body map[string]string
	status := api.do(http.MethodGet, "/health", "", nil, &body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestUnauthenticated(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token"},
		{name: "garbage token", token: "not-a-jwt"},
		{name: "missing org claim", token: api.token(auth.Claims{
			Subject: uuid.NewString(), Email: "a@example.com", Role: "admin",
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res errorResponse
			status := api.do(http.MethodGet, "/v1/orgs/"+uuid.NewString(), tt.token, nil, &res)
			require.Equal(t, http.StatusUnauthorized, status)
			require.Equal(t, apperr.CodeUnauthenticated, res.Error.Code)
			require.Equal(t, "authentication required", res.Error.Message)
		})
	}
}

func TestLoadWorkflow(t *testing.T) {
	api := newTestAPI(t)
	admin, driver := api.seedOrg()
	adminTok, driverTok := api.tokenFor(admin), api.tokenFor(driver)
	base := "/v1/orgs/" + admin.OrgID.String() + "/loads"

	var load models.Load
	status := api.do(http.MethodPost, base, adminTok, loads.CreateInput{
		Reference:      "PO-1001",
		ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Perth"},
		Items:          []models.LoadItem{{Description: "pallet", Quantity: 2}},
	}, &load)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, models.LoadStatusDraft, load.Status)
	loadPath := base + "/" + load.ID.String()

	status = api.do(http.MethodPost, loadPath+"/assign", adminTok, assignRequest{DriverID: driver.ID}, &load)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.LoadStatusAssigned, load.Status)

	for _, action := range []string{"start", "deliver"} {
		status = api.do(http.MethodPost, loadPath+"/transitions/"+action, driverTok, nil, &load)
		require.Equal(t, http.StatusOK, status, action)
	}
	require.Equal(t, models.LoadStatusDelivered, load.Status)

	var signed signatureResponse
	status = api.do(http.MethodPost, loadPath+"/signature", driverTok, loads.SignatureInput{
		SignerName:  "Sam Shipper",
		ContentType: "image/png",
		Image:       []byte("\x89PNG fake signature"),
	}, &signed)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, models.LoadStatusCompleted, signed.Load.Status)
	require.Equal(t, loads.ContentHash([]byte("\x89PNG fake signature")), signed.Signature.ContentHash)

	var events []models.LoadEvent
	status = api.do(http.MethodGet, loadPath+"/events", adminTok, nil, &events)
	require.Equal(t, http.StatusOK, status)

	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	require.Equal(t, []string{
		audit.LoadCreated, audit.LoadAssigned, audit.LoadStarted,
		audit.LoadDelivered, audit.LoadSigned, audit.LoadCompleted,
	}, types)

	var listed []models.Load
	status = api.do(http.MethodGet, "/v1/orgs/"+admin.OrgID.String()+"/drivers/"+driver.ID.String()+"/loads?status=COMPLETED", driverTok, nil, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 1)
	require.Equal(t, load.ID, listed[0].ID)
}

func TestErrorRendering(t *testing.T) {
	api := newTestAPI(t)
	admin, driver := api.seedOrg()
	adminTok := api.tokenFor(admin)
	base := "/v1/orgs/" + admin.OrgID.String() + "/loads"

	var load models.Load
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base, adminTok, loads.CreateInput{
		ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Perth"},
	}, &load))
	loadPath := base + "/" + load.ID.String()

	otherAdmin, _ := api.seedOrg()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   apperr.Code
	}{
		{
			name: "wrong state", method: http.MethodPost, path: loadPath + "/transitions/deliver", token: adminTok,
			status: http.StatusConflict, code: apperr.CodeInvalidTransition,
		},
		{
			name: "unknown action", method: http.MethodPost, path: loadPath + "/transitions/teleport", token: adminTok,
			status: http.StatusUnprocessableEntity, code: apperr.CodeValidationFailed,
		},
		{
			name: "malformed id", method: http.MethodGet, path: base + "/not-a-uuid", token: adminTok,
			status: http.StatusUnprocessableEntity, code: apperr.CodeValidationFailed,
		},
		{
			name: "unknown body field", method: http.MethodPatch, path: loadPath, token: adminTok,
			body:   map[string]string{"status": "COMPLETED"},
			status: http.StatusUnprocessableEntity, code: apperr.CodeValidationFailed,
		},
		{
			name: "missing load", method: http.MethodGet, path: base + "/" + uuid.NewString(), token: adminTok,
			status: http.StatusNotFound, code: apperr.CodeNotFound,
		},
		{
			name: "other org", method: http.MethodGet, path: loadPath, token: api.tokenFor(otherAdmin),
			status: http.StatusForbidden, code: apperr.CodeForbidden,
		},
		{
			name: "unassigned driver", method: http.MethodGet, path: loadPath, token: api.tokenFor(driver),
			status: http.StatusForbidden, code: apperr.CodeForbidden,
		},
		{
			name: "status listing needs superuser", method: http.MethodGet, path: "/v1/loads?status=PENDING", token: adminTok,
			status: http.StatusForbidden, code: apperr.CodeForbidden,
		},
		{
			name: "bad date", method: http.MethodGet, path: base + "?from=yesterday", token: adminTok,
			status: http.StatusUnprocessableEntity, code: apperr.CodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res errorResponse
			status := api.do(tt.method, tt.path, tt.token, tt.body, &res)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, res.Error.Code)
			require.NotEmpty(t, res.Error.Message)
		})
	}
}

func TestListLoadsByStatus(t *testing.T) {
	api := newTestAPI(t)
	admin, _ := api.seedOrg()

	for range 2 {
		require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/v1/orgs/"+admin.OrgID.String()+"/loads", api.tokenFor(admin), loads.CreateInput{
			ServiceAddress: models.Address{Line1: "1 Dock Rd", City: "Perth"},
		}, nil))
	}

	var listed []models.Load
	status := api.do(http.MethodGet, "/v1/loads?status=DRAFT&from="+time.Now().UTC().Format(time.DateOnly), api.superuserToken(), nil, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 2)
}

func TestFleetRoutes(t *testing.T) {
	api := newTestAPI(t)
	admin, driver := api.seedOrg()
	base := "/v1/orgs/" + admin.OrgID.String() + "/trailers"

	var trailer fleet.TrailerView
	status := api.do(http.MethodPost, base, api.tokenFor(admin), fleet.TrailerInput{Number: "T-100"}, &trailer)
	require.Equal(t, http.StatusCreated, status)
	require.False(t, trailer.Compliance.Compliant)

	var res errorResponse
	status = api.do(http.MethodPost, base, api.tokenFor(driver), fleet.TrailerInput{Number: "T-101"}, &res)
	require.Equal(t, http.StatusForbidden, status)

	var listed []fleet.TrailerView
	status = api.do(http.MethodGet, base, api.tokenFor(driver), nil, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 1)

	status = api.do(http.MethodDelete, base+"/"+trailer.ID.String(), api.tokenFor(admin), nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = api.do(http.MethodGet, base+"/"+trailer.ID.String(), api.tokenFor(admin), nil, &res)
	require.Equal(t, http.StatusNotFound, status)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/v1/orgs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")

	res, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, "https://app.example.com", res.Header.Get("Access-Control-Allow-Origin"))
}
