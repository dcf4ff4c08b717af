package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/splithaus/splithaus/internal/api"
	"github.com/splithaus/splithaus/internal/auth"
	"github.com/splithaus/splithaus/internal/database/testutil"
	"github.com/splithaus/splithaus/internal/gateway"
	"github.com/splithaus/splithaus/internal/handlers"
	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/crypto"
)

const testSecret = "router-test-hmac-secret"

type stubGateway struct {
	orderID string
}

func (g *stubGateway) CreateCheckout(_ context.Context, params gateway.CheckoutParams) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{
		OrderID:      g.orderID,
		PaymentToken: "stub-payment-token",
		IframeURL:    "https://gateway.example/acceptance/iframes/42?payment_token=stub-payment-token",
	}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-jwt-secret", Issuer: "splithaus"})
	require.NoError(t, err)

	users, err := services.NewUserService(db)
	require.NoError(t, err)
	households, err := services.NewHouseholdService(db)
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(db)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, households, users, notifications, nil)
	require.NoError(t, err)
	payments, err := services.NewPaymentService(db, households, notifications)
	require.NoError(t, err)
	checkout, err := services.NewCheckoutService(db, &stubGateway{orderID: "424242"}, users)
	require.NoError(t, err)
	reconcile, err := services.NewReconcileService(db, households, notifications, testSecret)
	require.NoError(t, err)

	return api.NewRouter(api.Services{
		DB:            db,
		JWT:           jwtService,
		Users:         users,
		Households:    households,
		Invites:       invites,
		Payments:      payments,
		Checkout:      checkout,
		Reconcile:     reconcile,
		Notifications: notifications,
	})
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var env envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &env))
	return recorder, env
}

func registerUser(t *testing.T, router *gin.Engine, email string) (token, userID string) {
	t.Helper()

	rec, env := do(t, router, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":        email,
		"password":     "password-1234",
		"display_name": email,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.Token)
	return session.Token, session.User.ID
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)

	token, _ := registerUser(t, router, "alice@example.com")

	rec, env := do(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "password-1234",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	rec, _ = do(t, router, http.MethodPost, "/api/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestRentCycle walks the whole flow: create a household, invite a resident,
// generate the monthly batch, open checkout, then settle it via webhook.
func TestRentCycle(t *testing.T) {
	router := newTestRouter(t)

	creatorToken, _ := registerUser(t, router, "creator@example.com")
	residentToken, residentID := registerUser(t, router, "resident@example.com")

	// Household.
	rec, env := do(t, router, http.MethodPost, "/api/households", creatorToken, gin.H{"name": "Nile View Flat"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var household struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &household))

	// Invite: only the creator can issue.
	rec, _ = do(t, router, http.MethodPost, "/api/households/"+household.ID+"/invites", residentToken, gin.H{})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = do(t, router, http.MethodPost, "/api/households/"+household.ID+"/invites", creatorToken, gin.H{
		"email": "resident@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Len(t, created.Token, 48)

	// Redeem.
	rec, env = do(t, router, http.MethodPost, "/api/invites/redeem", residentToken, gin.H{
		"token":        created.Token,
		"display_name": "Resident",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var redeemed struct {
		HouseholdID string `json:"household_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &redeemed))
	require.Equal(t, household.ID, redeemed.HouseholdID)

	// A second redemption of the single-use token by a third user fails.
	otherToken, _ := registerUser(t, router, "late@example.com")
	rec, env = do(t, router, http.MethodPost, "/api/invites/redeem", otherToken, gin.H{"token": created.Token})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INVALID_STATE", env.Error.Code)

	// Monthly batch.
	dueDate := time.Now().AddDate(0, 1, 0).Format("2006-01-02")
	rec, env = do(t, router, http.MethodPost, "/api/households/"+household.ID+"/payments", creatorToken, gin.H{
		"total_amount_cents": 120_000,
		"currency":           "EGP",
		"due_date":           dueDate,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var batch []struct {
		ID          string `json:"id"`
		UserID      string `json:"user_id"`
		AmountCents int64  `json:"amount_cents"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	require.Len(t, batch, 1)
	require.Equal(t, residentID, batch[0].UserID)
	require.EqualValues(t, 120_000, batch[0].AmountCents)

	// Duplicate period is rejected.
	rec, env = do(t, router, http.MethodPost, "/api/households/"+household.ID+"/payments", creatorToken, gin.H{
		"total_amount_cents": 120_000,
		"currency":           "EGP",
		"due_date":           dueDate,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "CONFLICT", env.Error.Code)

	// Checkout: only the payer.
	paymentID := batch[0].ID
	rec, _ = do(t, router, http.MethodPost, "/api/payments/"+paymentID+"/checkout", creatorToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = do(t, router, http.MethodPost, "/api/payments/"+paymentID+"/checkout", residentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session struct {
		OrderID   string `json:"order_id"`
		IframeURL string `json:"iframe_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.Equal(t, "424242", session.OrderID)
	require.NotEmpty(t, session.IframeURL)

	// Webhook settles the payment.
	payload := []byte(fmt.Sprintf(
		`{"type":"TRANSACTION","obj":{"id":777,"order":{"id":424242,"merchant_order_id":"x"},"success":true,"pending":false,"txn_response_code":"APPROVED","amount_cents":%d,"currency":"EGP"}}`,
		batch[0].AmountCents,
	))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(handlers.SignatureHeader, crypto.SignPayload(payload, []byte(testSecret)))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var webhookEnv envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &webhookEnv))
	var result struct {
		PaymentID string `json:"payment_id"`
		NewStatus string `json:"new_status"`
		Applied   bool   `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(webhookEnv.Data, &result))
	require.True(t, result.Applied)
	require.Equal(t, paymentID, result.PaymentID)
	require.Equal(t, "paid", result.NewStatus)

	// Checkout on the settled payment is refused.
	rec, env = do(t, router, http.MethodPost, "/api/payments/"+paymentID+"/checkout", residentToken, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_PAID", env.Error.Code)

	// The resident sees the settled payment.
	rec, env = do(t, router, http.MethodGet, "/api/payments/mine?status=paid", residentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	require.Len(t, batch, 1)
	require.Equal(t, "paid", batch[0].Status)

	// Notifications accumulated along the way.
	rec, env = do(t, router, http.MethodGet, "/api/notifications", residentToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.NotEmpty(t, rows)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router := newTestRouter(t)

	payload := []byte(`{"type":"TRANSACTION","obj":{"id":1,"order":{"id":9},"success":true,"txn_response_code":"APPROVED"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(handlers.SignatureHeader, "deadbeef")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestWebhookUnknownOrder(t *testing.T) {
	router := newTestRouter(t)

	payload := []byte(`{"type":"TRANSACTION","obj":{"id":1,"order":{"id":987654},"success":true,"pending":false,"txn_response_code":"APPROVED","amount_cents":100,"currency":"EGP"}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(payload))
	req.Header.Set(handlers.SignatureHeader, crypto.SignPayload(payload, []byte(testSecret)))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
}
