package ticket_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/database/testdb"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	ticketdb "ms-fulfillment/internal/tickets/db"
	qr "ms-fulfillment/internal/tickets/qr_genrator"
	tickets "ms-fulfillment/internal/tickets/service"
	"ms-fulfillment/internal/tickets/storage"
	"ms-fulfillment/internal/tickets/ticket_api"
	"ms-fulfillment/internal/utils"
)

func setup(t *testing.T) (http.Handler, *models.OrderItem) {
	bunDB := testdb.New(t)
	ctx := context.Background()

	order := &models.Order{
		OrderUID: "ORD-20250101-CCCCCC", UserID: testdb.UserID, EventID: testdb.EventID,
		PaymentMethod: "Online", Status: models.OrderStatusFulfilled, Currency: "EUR",
		SubTotal: decimal.Zero, TaxTotal: decimal.Zero, DiscountAmount: decimal.Zero, GrandTotal: decimal.Zero,
	}
	_, err := bunDB.NewInsert().Model(order).Returning("id").Exec(ctx)
	require.NoError(t, err)
	addon := testdb.AddonID
	item := &models.OrderItem{
		OrderID: order.ID, UserID: testdb.UserID, EventID: testdb.EventID,
		ItemKind: models.ItemKindAddon, ItemRefID: &addon,
		UnitPrice: decimal.RequireFromString("5.25"), Status: models.OrderItemActive,
	}
	_, err = bunDB.NewInsert().Model(item).Returning("id").Exec(ctx)
	require.NoError(t, err)

	signer, err := qr.NewSigner("gate-secret")
	require.NoError(t, err)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	log := logger.New(io.Discard)
	svc := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, signer, qr.NewQRGenerator(), store, log)
	require.NoError(t, svc.Issue(ctx, item))

	// X-Test-User and X-Test-Roles stand in for the bearer token.
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			uid := testdb.UserID
			if v := req.Header.Get("X-Test-User"); v != "" {
				uid, _ = strconv.ParseInt(v, 10, 64)
			}
			var roles []string
			if v := req.Header.Get("X-Test-Roles"); v != "" {
				roles = strings.Split(v, ",")
			}
			ctx := auth.WithRoles(auth.WithUserID(req.Context(), uid), roles...)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/tickets", ticket_api.NewHandler(svc, log).Routes)
	return r, item
}

func post(t *testing.T, h http.Handler, path string, body interface{}, roles ...string) (*httptest.ResponseRecorder, utils.APIResponse) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("X-Test-Roles", strings.Join(roles, ","))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func forbidden(t *testing.T, h http.Handler, method, path string, roles ...string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(`{"payload":"x"}`))
	req.Header.Set("X-Test-User", strconv.FormatInt(testdb.OtherUserID, 10))
	req.Header.Set("X-Test-Roles", strings.Join(roles, ","))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s as %v", method, path, roles)
}

func TestVerifyAndCheckIn(t *testing.T) {
	h, item := setup(t)
	scan := map[string]string{"payload": item.ArtifactPayload}

	rec, resp := post(t, h, "/api/tickets/verify", scan, auth.RoleScanner)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = post(t, h, "/api/tickets/checkin", scan, auth.RoleScanner)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = post(t, h, "/api/tickets/checkin", scan, auth.RoleSupport)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, string(tickets.ReasonAlreadyCheckedIn), resp.Error)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	h, _ := setup(t)

	_, resp := post(t, h, "/api/tickets/verify", map[string]string{"payload": "hello"}, auth.RoleScanner)
	assert.Equal(t, string(tickets.ReasonMalformed), resp.Error)

	rec, resp := post(t, h, "/api/tickets/verify", map[string]string{}, auth.RoleScanner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", resp.Error)
}

func TestGetQR(t *testing.T) {
	h, item := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tickets/"+strconv.FormatInt(item.ID, 10)+"/qr", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String()[:4])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tickets/999/qr", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+strconv.FormatInt(item.ID, 10)+"/qr", nil)
	req.Header.Set("X-Test-User", strconv.FormatInt(testdb.OtherUserID, 10))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another buyer's ticket")
}

func TestReissueAndCancel(t *testing.T) {
	h, item := setup(t)
	path := "/api/tickets/" + strconv.FormatInt(item.ID, 10)

	rec, resp := post(t, h, path+"/reissue", nil, auth.RoleSupport)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotContains(t, rec.Body.String(), "artifact_payload")
	assert.NotContains(t, rec.Body.String(), item.ArtifactSecureHash)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(item.ID), data["order_item_id"])
	assert.Equal(t, true, data["has_artifact"])

	rec, _ = post(t, h, path+"/cancel", nil, auth.RoleSupport)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = post(t, h, path+"/reissue", nil, auth.RoleSupport)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CANCELLED", resp.Error)

	_, resp = post(t, h, "/api/tickets/verify", map[string]string{"payload": item.ArtifactPayload}, auth.RoleScanner)
	assert.Equal(t, string(tickets.ReasonCancelled), resp.Error)
}

func TestStaffRoutesNeedRoles(t *testing.T) {
	h, item := setup(t)
	path := "/api/tickets/" + strconv.FormatInt(item.ID, 10)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/tickets/verify"},
		{http.MethodPost, "/api/tickets/checkin"},
		{http.MethodGet, "/api/tickets/pending"},
		{http.MethodPost, path + "/reissue"},
		{http.MethodPost, path + "/cancel"},
	} {
		forbidden(t, h, r.method, r.path)
	}

	// scanners may scan but not maintain artifacts
	forbidden(t, h, http.MethodGet, "/api/tickets/pending", auth.RoleScanner)
	forbidden(t, h, http.MethodPost, path+"/reissue", auth.RoleScanner)
	forbidden(t, h, http.MethodPost, path+"/cancel", auth.RoleScanner)

	rec, resp := post(t, h, "/api/tickets/verify", map[string]string{"payload": item.ArtifactPayload}, auth.RoleScanner)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success, "denied requests had no effect")

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/pending", nil)
	req.Header.Set("X-Test-Roles", auth.RoleSupport)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
