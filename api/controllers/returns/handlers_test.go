package returns

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketcore-backend/api/middleware"
	internalreturns "github.com/angelmondragon/marketcore-backend/internal/returns"
	pkgauth "github.com/angelmondragon/marketcore-backend/pkg/auth"
	"github.com/angelmondragon/marketcore-backend/pkg/db/models"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/pagination"
)

type stubService struct {
	ret      *models.ReturnRequest
	created  *internalreturns.CreateInput
	reviewed *internalreturns.ReviewInput
	approved bool
	filters  *internalreturns.ListFilters
}

func (s *stubService) Create(_ context.Context, in internalreturns.CreateInput) (*models.ReturnRequest, error) {
	s.created = &in
	return s.ret, nil
}

func (s *stubService) Approve(_ context.Context, in internalreturns.ReviewInput) (*models.ReturnRequest, error) {
	s.reviewed = &in
	s.approved = true
	return s.ret, nil
}

func (s *stubService) Reject(_ context.Context, in internalreturns.ReviewInput) (*models.ReturnRequest, error) {
	s.reviewed = &in
	return s.ret, nil
}

func (s *stubService) Get(context.Context, uuid.UUID) (*models.ReturnRequest, error) {
	return s.ret, nil
}

func (s *stubService) List(_ context.Context, filters internalreturns.ListFilters, _ pagination.Params) ([]models.ReturnRequest, int64, error) {
	s.filters = &filters
	return []models.ReturnRequest{*s.ret}, 1, nil
}

func sampleReturn(userID uuid.UUID) *models.ReturnRequest {
	return &models.ReturnRequest{
		ID:           uuid.New(),
		OrderID:      uuid.New(),
		UserID:       userID,
		Type:         enums.ReturnTypeSingle,
		Reason:       "damaged",
		Status:       enums.ReturnStatusPending,
		RefundAmount: decimal.RequireFromString("40"),
		RefundStatus: enums.RefundStatusNone,
	}
}

func caller(req *http.Request, id uuid.UUID, perms ...string) *http.Request {
	claims := &pkgauth.AccessTokenClaims{User: pkgauth.TokenUser{ID: id, Permissions: perms}}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func withID(req *http.Request, id uuid.UUID) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRequestUsesCallerAsRequester(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{ret: sampleReturn(userID)}
	lineID := uuid.New()
	body := `{"order_id":"` + svc.ret.OrderID.String() + `","type":"single","reason":"  damaged  ","items":[{"order_line_id":"` + lineID.String() + `","quantity":1}]}`
	resp := httptest.NewRecorder()

	Request(svc, nil)(resp, caller(httptest.NewRequest(http.MethodPost, "/returns/request", strings.NewReader(body)), userID))

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, userID, svc.created.UserID)
	assert.Equal(t, "damaged", svc.created.Reason)
	require.Len(t, svc.created.Items, 1)
	assert.Equal(t, lineID, svc.created.Items[0].OrderLineID)
	assert.Contains(t, resp.Body.String(), `"refund_amount":"40.00"`)
}

func TestApprovePassesReviewer(t *testing.T) {
	svc := &stubService{ret: sampleReturn(uuid.New())}
	admin := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/returns/approve/x", strings.NewReader(`{"note":"ok"}`))
	resp := httptest.NewRecorder()

	Approve(svc, nil)(resp, withID(caller(req, admin, pkgauth.PermissionReturnReview), svc.ret.ID))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, svc.approved)
	assert.Equal(t, admin, svc.reviewed.ActorID)
	assert.Equal(t, svc.ret.ID, svc.reviewed.ReturnID)
	assert.Equal(t, "ok", svc.reviewed.Note)
}

func TestRejectWithoutBody(t *testing.T) {
	svc := &stubService{ret: sampleReturn(uuid.New())}
	resp := httptest.NewRecorder()

	Reject(svc, nil)(resp, withID(caller(httptest.NewRequest(http.MethodPut, "/returns/reject/x", nil), uuid.New()), svc.ret.ID))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.False(t, svc.approved)
	assert.NotNil(t, svc.reviewed)
}

func TestDetailHiddenFromOtherCustomers(t *testing.T) {
	owner := uuid.New()
	svc := &stubService{ret: sampleReturn(owner)}

	resp := httptest.NewRecorder()
	Detail(svc, nil)(resp, withID(caller(httptest.NewRequest(http.MethodGet, "/returns/x", nil), uuid.New()), svc.ret.ID))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = httptest.NewRecorder()
	Detail(svc, nil)(resp, withID(caller(httptest.NewRequest(http.MethodGet, "/returns/x", nil), owner), svc.ret.ID))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	Detail(svc, nil)(resp, withID(caller(httptest.NewRequest(http.MethodGet, "/returns/x", nil), uuid.New(), pkgauth.PermissionReturnReview), svc.ret.ID))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListParsesStatus(t *testing.T) {
	svc := &stubService{ret: sampleReturn(uuid.New())}

	resp := httptest.NewRecorder()
	List(svc, nil)(resp, httptest.NewRequest(http.MethodGet, "/returns?status=approved", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.filters.Status)
	assert.Equal(t, enums.ReturnStatusApproved, *svc.filters.Status)

	resp = httptest.NewRecorder()
	List(svc, nil)(resp, httptest.NewRequest(http.MethodGet, "/returns?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
