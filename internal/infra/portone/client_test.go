package portone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePortOne struct {
	tokenCalls  atomic.Int32
	cancelCalls atomic.Int32

	mu       sync.Mutex
	payments map[string]string
	cancel   func(w http.ResponseWriter)
	lookup5x bool
	stall    bool
}

func (f *fakePortOne) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/getToken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["imp_key"] != "key" {
			writeJSON(w, http.StatusUnauthorized, `{"code":-1,"message":"bad key","response":null}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"code":0,"message":null,"response":{"access_token":"tok","now":1000,"expired_at":2800}}`)
	})
	mux.HandleFunc("/payments/cancel", func(w http.ResponseWriter, r *http.Request) {
		f.cancelCalls.Add(1)
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		f.mu.Lock()
		h := f.cancel
		f.mu.Unlock()
		if h != nil {
			h(w)
			return
		}
		writeJSON(w, http.StatusOK, `{"code":0,"message":null,"response":{}}`)
	})
	mux.HandleFunc("/payments/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.URL.Query().Get("include_sandbox"))
		f.mu.Lock()
		stall := f.stall
		f.mu.Unlock()
		if stall {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.lookup5x {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, ok := f.payments[r.URL.Path[len("/payments/"):]]
		if !ok {
			writeJSON(w, http.StatusNotFound, `{"code":-1,"message":"no such payment","response":null}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"code":0,"message":null,"response":`+body+`}`)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, f *fakePortOne, key string) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: key, APISecret: "secret", Sandbox: true, Timeout: time.Second})
}

func TestClient_Verify(t *testing.T) {
	f := &fakePortOne{payments: map[string]string{
		"imp_paid":  `{"imp_uid":"imp_paid","merchant_uid":"m1","amount":27000,"status":"paid","pay_method":"card","pg_provider":"kcp","pg_tid":"T1","paid_at":1700000000}`,
		"imp_ready": `{"imp_uid":"imp_ready","merchant_uid":"m2","amount":27000,"status":"ready","pay_method":"vbank"}`,
		"imp_frac":  `{"imp_uid":"imp_frac","merchant_uid":"m3","amount":27000.5,"status":"paid"}`,
		"imp_float": `{"imp_uid":"imp_float","merchant_uid":"m4","amount":27000.0,"status":"failed"}`,
	}}
	c := newTestClient(t, f, "key")
	ctx := context.Background()

	v, err := c.Verify(ctx, "imp_paid")
	require.NoError(t, err)
	assert.Equal(t, infra.GatewaySettled, v.Status)
	assert.Equal(t, int64(27000), v.Amount)
	assert.Equal(t, "m1", v.MerchantUID)
	assert.Equal(t, "T1", v.TransactionID)
	require.NotNil(t, v.PaidAt)
	assert.Equal(t, int64(1700000000), v.PaidAt.Unix())

	v, err = c.Verify(ctx, "imp_ready")
	require.NoError(t, err)
	assert.Equal(t, infra.GatewaySettling, v.Status)
	assert.Nil(t, v.PaidAt)

	v, err = c.Verify(ctx, "imp_float")
	require.NoError(t, err)
	assert.Equal(t, int64(27000), v.Amount)
	assert.Equal(t, infra.GatewayFailed, v.Status)

	_, err = c.Verify(ctx, "imp_frac")
	assert.ErrorIs(t, err, apperror.ErrGatewayRejected)

	_, err = c.Verify(ctx, "imp_unknown")
	assert.ErrorIs(t, err, apperror.ErrGatewayRejected)
	assert.False(t, apperror.IsRetryable(err))

	assert.Equal(t, int32(1), f.tokenCalls.Load(), "token is reused while fresh")
}

func TestClient_TokenRefreshedNearExpiry(t *testing.T) {
	f := &fakePortOne{payments: map[string]string{"imp": `{"imp_uid":"imp","amount":1,"status":"paid"}`}}
	now := time.Unix(5000, 0)
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "s", Sandbox: true}, WithClock(func() time.Time { return now }))

	_, err := c.Verify(context.Background(), "imp")
	require.NoError(t, err)
	now = now.Add(28 * time.Minute)
	_, err = c.Verify(context.Background(), "imp")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	now = now.Add(90 * time.Second)
	_, err = c.Verify(context.Background(), "imp")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestClient_ConcurrentTokenFetchCollapsed(t *testing.T) {
	f := &fakePortOne{payments: map[string]string{"imp": `{"imp_uid":"imp","amount":1,"status":"paid"}`}}
	c := newTestClient(t, f, "key")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Verify(context.Background(), "imp")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.tokenCalls.Load(), int32(8))
	assert.GreaterOrEqual(t, f.tokenCalls.Load(), int32(1))
}

func TestClient_BadCredentialsRejected(t *testing.T) {
	c := newTestClient(t, &fakePortOne{}, "wrong")
	_, err := c.Verify(context.Background(), "imp")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrGatewayRejected)
	assert.Contains(t, err.Error(), "bad key")
}

func TestClient_UnavailableOpensBreaker(t *testing.T) {
	f := &fakePortOne{lookup5x: true, payments: map[string]string{}}
	c := newTestClient(t, f, "key")

	for i := 0; i < 5; i++ {
		_, err := c.Verify(context.Background(), "imp")
		assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
		assert.True(t, apperror.IsRetryable(err))
	}
	_, err := c.Verify(context.Background(), "imp")
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", APIKey: "key", APISecret: "s", Timeout: 200 * time.Millisecond})
	_, err := c.Verify(context.Background(), "imp")
	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
}

func TestClient_StalledGatewayIsUnavailable(t *testing.T) {
	f := &fakePortOne{stall: true, payments: map[string]string{}}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret", Sandbox: true, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := c.Verify(context.Background(), "imp_slow")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, apperror.ErrGatewayUnavailable)
	assert.True(t, apperror.IsRetryable(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "the lookup is cut off at the configured timeout")
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestClient_Cancel(t *testing.T) {
	f := &fakePortOne{}
	c := newTestClient(t, f, "key")
	require.NoError(t, c.Cancel(context.Background(), "imp_1", "customer request"))
	assert.Equal(t, int32(1), f.cancelCalls.Load())

	f.mu.Lock()
	f.cancel = func(w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{"code":1,"message":"already fully refunded","response":null}`)
	}
	f.mu.Unlock()

	err := c.Cancel(context.Background(), "imp_1", "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrGatewayCancelFailed)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "already fully refunded", ae.Message)
	assert.False(t, ae.Retryable)
}
