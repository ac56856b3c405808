package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/httputil"
)

type upstream struct {
	calls int32
	fail  int32
	body  string
}

func (u *upstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.calls, 1)
		if atomic.LoadInt32(&u.fail) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(u.body))
	})
}

func newTestService(t *testing.T, up *upstream) *Service {
	t.Helper()
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)
	client := httputil.NewClient(httputil.ClientConfig{
		BaseURL: srv.URL, MaxRetries: 1, RetryWait: time.Millisecond,
	})
	return New(client, Config{TTL: time.Minute, StaleIfError: time.Hour}, nil)
}

func TestPriceFetchAndCache(t *testing.T) {
	up := &upstream{body: `{"likecoin":{"usd":0.0042}}`}
	svc := newTestService(t, up)
	ctx := context.Background()

	price, stale, err := svc.Price(ctx, "USD")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if stale || price != 0.0042 {
		t.Fatalf("got %v stale=%v", price, stale)
	}

	// Second call within TTL must not hit the upstream.
	if _, _, err := svc.Price(ctx, "usd"); err != nil {
		t.Fatalf("cached Price: %v", err)
	}
	if got := atomic.LoadInt32(&up.calls); got != 1 {
		t.Fatalf("upstream called %d times, want 1", got)
	}
}

func TestPriceServesStaleOnUpstreamFailure(t *testing.T) {
	up := &upstream{body: `{"likecoin":{"usd":0.0042}}`}
	svc := newTestService(t, up)
	ctx := context.Background()

	if _, _, err := svc.Price(ctx, "usd"); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	// Evict the fresh entry and break the upstream.
	svc.fresh.Purge()
	atomic.StoreInt32(&up.fail, 1)

	price, stale, err := svc.Price(ctx, "usd")
	if err != nil {
		t.Fatalf("Price with broken upstream: %v", err)
	}
	if !stale || price != 0.0042 {
		t.Fatalf("got %v stale=%v, want stale copy", price, stale)
	}
}

func TestPriceFailsWhenStaleTooOld(t *testing.T) {
	up := &upstream{body: `{"likecoin":{"usd":0.0042}}`}
	svc := newTestService(t, up)
	ctx := context.Background()

	if _, _, err := svc.Price(ctx, "usd"); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	svc.fresh.Purge()
	atomic.StoreInt32(&up.fail, 1)
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, _, err := svc.Price(ctx, "usd")
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok || svcErr.Code != apperrors.CodeUpstream {
		t.Fatalf("got %v, want upstream error", err)
	}
}

func TestPriceValidatesCurrency(t *testing.T) {
	up := &upstream{body: `{}`}
	svc := newTestService(t, up)

	_, _, err := svc.Price(context.Background(), "US$!")
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok || svcErr.Code != apperrors.CodeValidation {
		t.Fatalf("got %v, want validation error", err)
	}
	if atomic.LoadInt32(&up.calls) != 0 {
		t.Fatal("upstream must not be called for invalid input")
	}
}

func TestPriceMissingInResponse(t *testing.T) {
	up := &upstream{body: `{"likecoin":{}}`}
	svc := newTestService(t, up)

	_, _, err := svc.Price(context.Background(), "eur")
	svcErr, ok := apperrors.AsServiceError(err)
	if !ok || svcErr.Code != apperrors.CodeUpstream {
		t.Fatalf("got %v, want upstream error", err)
	}
}
