package httpapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	collectionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/collection"
	iscnsvc "github.com/likecoin/likecoin-api-public/internal/app/services/iscn"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	paymentsvc "github.com/likecoin/likecoin-api-public/internal/app/services/payment"
	pricessvc "github.com/likecoin/likecoin-api-public/internal/app/services/prices"
	rewardsvc "github.com/likecoin/likecoin-api-public/internal/app/services/reward"
	subscriptionsvc "github.com/likecoin/likecoin-api-public/internal/app/services/subscription"
	supplysvc "github.com/likecoin/likecoin-api-public/internal/app/services/supply"
	userssvc "github.com/likecoin/likecoin-api-public/internal/app/services/users"
	"github.com/likecoin/likecoin-api-public/internal/app/storage/memory"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	"github.com/likecoin/likecoin-api-public/internal/httputil"
)

type fakeBroadcaster struct{ hash string }

func (f fakeBroadcaster) SendRawTransaction(context.Context, string) (string, error) {
	return f.hash, nil
}

type fakePayout struct{}

func (fakePayout) Send(_ context.Context, _ string, value int64, _ string) (string, error) {
	return fmt.Sprintf("0xpayout%d", value), nil
}

type fakeUploader struct{}

func (fakeUploader) Price(_ context.Context, size int64) (*big.Int, error) {
	return big.NewInt(size * 2), nil
}

func (fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	return "ar-item-1", nil
}

type fakeMsgSender struct{}

func (fakeMsgSender) SendMsgs(context.Context, []chain.Msg, string) (string, error) {
	return "COSMOSHASH", nil
}

type fakeBilling struct{}

func (fakeBilling) Charge(context.Context, string, string) (string, error) { return "ch_1", nil }
func (fakeBilling) Refund(context.Context, string, string) error          { return nil }

type fakeBalance struct{ reserved int64 }

func (f fakeBalance) GetBalance(context.Context, string) (*big.Int, error) {
	return big.NewInt(f.reserved), nil
}

const testTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

func newTestServer(t *testing.T, priceUpstream string) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	ledgerSvc := ledgersvc.New(store, store, 0, nil)

	supplySvc, err := supplysvc.New(supplysvc.Config{
		TotalMinted:     "1000",
		ReservedWallets: []string{"0x00000000000000000000000000000000Deadbeef"},
	}, fakeBalance{reserved: 300}, nil)
	if err != nil {
		t.Fatalf("supply.New: %v", err)
	}

	var priceClient *httputil.Client
	if priceUpstream != "" {
		priceClient = httputil.NewClient(httputil.ClientConfig{BaseURL: priceUpstream})
	}

	svcs := Services{
		Payments:      paymentsvc.New(fakeBroadcaster{hash: testTxHash}, ledgerSvc, nil, nil),
		Ledger:        ledgerSvc,
		Rewards:       rewardsvc.New(store, store, store, fakePayout{}, nil),
		Users:         userssvc.New(store, nil),
		ISCN:          iscnsvc.New(store, fakeUploader{}, fakeMsgSender{}, ledgerSvc, nil),
		Subscriptions: subscriptionsvc.New(store, fakeBilling{}, nil),
		Collections:   collectionsvc.New(store, nil),
		Prices:        pricessvc.New(priceClient, pricessvc.Config{}, nil),
		Supply:        supplySvc,
	}
	srv := New(Config{
		JWTSecret:    []byte("test-secret"),
		AdminToken:   "letmein",
		RateLimitRPS: 1000,
	}, svcs, nil)
	return srv, store
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doRequest(t, srv.Router(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegisterAndGetUser(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/v1/users/new", "", map[string]string{"user": "alice-liker"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/users/id/alice-liker", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var u userResponse
	decodeBody(t, rec, &u)
	if u.ID != "alice-liker" {
		t.Fatalf("user = %q", u.ID)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/users/id/nobody-here", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing user status = %d", rec.Code)
	}
}

func TestSelfRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doRequest(t, srv.Router(), http.MethodGet, "/v1/users/self", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLinkEndpointsRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, "")
	// Call the handlers directly, as a skip-path route would, so a missing
	// session must be rejected by the handler itself rather than surface a
	// not-found from an empty user lookup.
	handlers := map[string]http.HandlerFunc{
		"evm wallet":    srv.handleLinkEVMWallet,
		"cosmos wallet": srv.handleLinkCosmosWallet,
		"social link":   srv.handleLinkSocial,
		"social unlink": srv.handleUnlinkSocial,
	}
	for name, h := range handlers {
		req := httptest.NewRequest(http.MethodPost, "/v1/users/social", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without session got %d, want 401", name, rec.Code)
		}
	}
}

func personalSign(t *testing.T, priv *secp256k1.PrivateKey, message string) string {
	t.Helper()
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(prefixed))
	digest := hasher.Sum(nil)

	compact := ecdsa.SignCompact(priv, digest, false)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return "0x" + hex.EncodeToString(sig)
}

func walletOf(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(uncompressed[1:])
	hash := hasher.Sum(nil)
	return chain.NormalizeEVMAddress("0x" + hex.EncodeToString(hash[12:]))
}

func TestLoginFlow(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()
	ctx := context.Background()

	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	wallet := walletOf(priv.PubKey())

	if _, err := srv.svcs.Users.Register(ctx, userssvc.RegisterRequest{ID: "alice-liker"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	nonce, err := srv.svcs.Users.ChallengeNonce(ctx, "alice-liker")
	if err != nil {
		t.Fatalf("ChallengeNonce: %v", err)
	}
	sig := personalSign(t, priv, userssvc.LinkMessage("alice-liker", wallet, nonce))
	if _, err := srv.svcs.Users.LinkEVMWallet(ctx, "alice-liker", wallet, sig); err != nil {
		t.Fatalf("LinkEVMWallet: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/v1/users/challenge", "", map[string]string{
		"user": "alice-liker", "wallet": wallet,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge status = %d body %s", rec.Code, rec.Body.String())
	}
	var challenge struct {
		Nonce   string `json:"nonce"`
		Message string `json:"message"`
	}
	decodeBody(t, rec, &challenge)
	if challenge.Message != userssvc.LinkMessage("alice-liker", wallet, challenge.Nonce) {
		t.Fatalf("challenge message mismatch: %q", challenge.Message)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/users/login", "", map[string]string{
		"user":      "alice-liker",
		"wallet":    wallet,
		"signature": personalSign(t, priv, challenge.Message),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatal("empty session token")
	}
	foundCookie := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "likecoin_auth" && c.Value == login.Token {
			foundCookie = true
		}
	}
	if !foundCookie {
		t.Fatal("session cookie not set")
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/users/self", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("self status = %d body %s", rec.Code, rec.Body.String())
	}
	var u userResponse
	decodeBody(t, rec, &u)
	if u.ID != "alice-liker" || u.EVMWallet != wallet {
		t.Fatalf("self = %+v", u)
	}

	// A login attempt replaying the consumed nonce must fail.
	rec = doRequest(t, h, http.MethodPost, "/v1/users/login", "", map[string]string{
		"user":      "alice-liker",
		"wallet":    wallet,
		"signature": personalSign(t, priv, challenge.Message),
	})
	if rec.Code == http.StatusOK {
		t.Fatal("replayed login must be rejected")
	}
}

func TestPayAndTxLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()

	from := "0x1000000000000000000000000000000000000001"
	to := "0x2000000000000000000000000000000000000002"

	rec := doRequest(t, h, http.MethodPost, "/v1/payment", "", map[string]any{
		"from":     from,
		"to":       to,
		"amount":   "1000000",
		"signedTx": "0xf86b...",
	})
	if rec.Code != http.StatusOK && rec.Code != http.StatusCreated {
		t.Fatalf("pay status = %d body %s", rec.Code, rec.Body.String())
	}
	var pay payResponse
	decodeBody(t, rec, &pay)
	if pay.TxHash != testTxHash {
		t.Fatalf("txHash = %q", pay.TxHash)
	}
	if pay.UpdateToken == "" {
		t.Fatal("update token missing")
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/tx/id/"+testTxHash, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get tx status = %d", rec.Code)
	}
	var tx txResponse
	decodeBody(t, rec, &tx)
	if tx.Status != "pending" {
		t.Fatalf("status = %q", tx.Status)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/tx/id/"+testTxHash+"/metadata", "", map[string]any{
		"metadata":    map[string]string{"note": "forged"},
		"updateToken": "wrong-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/tx/id/"+testTxHash+"/metadata", "", map[string]any{
		"metadata":    map[string]string{"note": "lunch"},
		"updateToken": pay.UpdateToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update metadata status = %d body %s", rec.Code, rec.Body.String())
	}

	// Metadata attaches at most once, even with the right token.
	rec = doRequest(t, h, http.MethodPost, "/v1/tx/id/"+testTxHash+"/metadata", "", map[string]any{
		"metadata":    map[string]string{"note": "dinner"},
		"updateToken": pay.UpdateToken,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second attach status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/tx/history/addr/"+from+"?limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history []txResponse
	decodeBody(t, rec, &history)
	if len(history) != 1 || history[0].TxHash != testTxHash {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Metadata["note"] != "lunch" {
		t.Fatalf("metadata = %+v", history[0].Metadata)
	}
}

func TestCouponFlow(t *testing.T) {
	srv, store := newTestServer(t, "")
	h := srv.Router()
	ctx := context.Background()

	if _, err := store.CreateCoupon(ctx, reward.Coupon{
		Code:      "WELCOME8",
		Value:     8,
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/coupon/WELCOME8", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get coupon status = %d", rec.Code)
	}
	var c couponResponse
	decodeBody(t, rec, &c)
	if c.IsClaimed || c.Value != 8 {
		t.Fatalf("coupon = %+v", c)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/coupon/WELCOME8/claim", "", map[string]string{
		"wallet": "0x3000000000000000000000000000000000000003",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/coupon/WELCOME8/claim", "", map[string]string{
		"wallet": "0x4000000000000000000000000000000000000004",
	})
	if rec.Code == http.StatusOK {
		t.Fatal("second claim must be rejected")
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/coupon/WELCOME8", "", nil)
	decodeBody(t, rec, &c)
	if !c.IsClaimed {
		t.Fatal("coupon should report claimed")
	}
}

func TestCollectionsOwnerGating(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()

	owner := "0x5000000000000000000000000000000000000005"
	other := "0x6000000000000000000000000000000000000006"
	ownerToken, err := srv.issuer.Issue("owner-liker", owner)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	otherToken, err := srv.issuer.Issue("other-liker", other)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/v1/collections", ownerToken, map[string]any{
		"name": "my picks",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body %s", rec.Code, rec.Body.String())
	}
	var created collectionResponse
	decodeBody(t, rec, &created)
	if !strings.EqualFold(created.OwnerWallet, owner) {
		t.Fatalf("owner = %q", created.OwnerWallet)
	}

	// Anonymous creation has no wallet to own the collection.
	rec = doRequest(t, h, http.MethodPost, "/v1/collections", "", map[string]any{"name": "anon"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anon create status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPut, "/v1/collections/"+created.ID, otherToken, map[string]any{
		"name": "stolen",
	})
	if rec.Code == http.StatusOK {
		t.Fatal("non-owner update must be rejected")
	}

	rec = doRequest(t, h, http.MethodPut, "/v1/collections/"+created.ID, ownerToken, map[string]any{
		"name": "my picks v2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/collections/addr/"+owner, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []collectionResponse
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].Name != "my picks v2" {
		t.Fatalf("list = %+v", list)
	}
}

func TestPriceEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"likecoin":{"usd":0.0123}}`)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, upstream.URL)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/v1/misc/price?currency=usd", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]float64
	decodeBody(t, rec, &resp)
	if resp["price"] != 0.0123 {
		t.Fatalf("price = %v", resp["price"])
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=") {
		t.Fatalf("Cache-Control = %q", cc)
	}
}

func TestTotalSupply(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rec := doRequest(t, srv.Router(), http.MethodGet, "/v1/misc/totalsupply", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "700" {
		t.Fatalf("supply = %q, want 700", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestAdminStats(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/v1/misc/stats", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/misc/stats", nil)
	req.Header.Set("X-Admin-Token", "letmein")
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("admin status = %d body %s", out.Code, out.Body.String())
	}
	var stats adminStatsResponse
	decodeBody(t, out, &stats)
	if stats.Goroutines <= 0 || stats.GoVersion == "" {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestISCNFlow(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Router()

	owner := "like1qypqxpq9qcrsszg2pvxq6rs0zqg3yyc5lzv7xu"

	rec := doRequest(t, h, http.MethodPost, "/v1/iscn/estimate", "", map[string]int64{"size": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("estimate status = %d body %s", rec.Code, rec.Body.String())
	}
	var quote map[string]string
	decodeBody(t, rec, &quote)
	if quote["price"] != "200" {
		t.Fatalf("price = %q", quote["price"])
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/iscn/upload", strings.NewReader("hello world"))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("X-Owner-Wallet", owner)
	uploadRec := httptest.NewRecorder()
	h.ServeHTTP(uploadRec, req)
	if uploadRec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d body %s", uploadRec.Code, uploadRec.Body.String())
	}
	var uploaded struct {
		iscnRecordResponse
		AuthToken string `json:"authToken"`
	}
	decodeBody(t, uploadRec, &uploaded)
	if uploaded.ArweaveID != "ar-item-1" || uploaded.AuthToken == "" {
		t.Fatalf("upload = %+v", uploaded)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/iscn/register", "", map[string]any{
		"recordId":  uploaded.ID,
		"authToken": uploaded.AuthToken,
		"title":     "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d body %s", rec.Code, rec.Body.String())
	}
	var registered iscnRecordResponse
	decodeBody(t, rec, &registered)
	if registered.Status != "complete" || registered.ISCNID == "" {
		t.Fatalf("registered = %+v", registered)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/iscn/id/"+uploaded.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}
