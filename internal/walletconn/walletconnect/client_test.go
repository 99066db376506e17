package walletconnect

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahwlsqja/walletlogin/pkg/sigverify"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeWallet plays both the bridge and the mobile wallet on one socket
type fakeWallet struct {
	t       *testing.T
	key     *ecdsa.PrivateKey
	client  *Client
	approve bool
	// rejectMethods answer with a JSON-RPC error
	rejectMethods map[string]bool

	mu      sync.Mutex
	methods []string
}

func (w *fakeWallet) address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

func (w *fakeWallet) sessionKey() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client.key
}

func (w *fakeWallet) rejects(method string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rejectMethods[method]
}

func (w *fakeWallet) reject(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rejectMethods[method] = true
}

func (w *fakeWallet) seen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.methods...)
}

func (w *fakeWallet) serve(rw http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var replyTopic string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wcMessage
		if !assert.NoError(w.t, json.Unmarshal(data, &msg)) {
			return
		}

		switch msg.Type {
		case "sub":
			replyTopic = msg.Topic
			continue
		case "ack":
			continue
		}

		var payload wcMessagePayload
		if !assert.NoError(w.t, json.Unmarshal([]byte(msg.Payload), &payload)) {
			return
		}
		plain, err := decryptPayload(&payload, w.sessionKey())
		if !assert.NoError(w.t, err) {
			return
		}
		req := gjson.ParseBytes(plain)
		method := req.Get("method").String()

		w.mu.Lock()
		w.methods = append(w.methods, method)
		w.mu.Unlock()

		resp := map[string]any{"id": req.Get("id").Int(), "jsonrpc": "2.0"}
		switch {
		case w.rejects(method):
			resp["error"] = map[string]any{"code": -32000, "message": "User rejected"}
		case method == "wc_sessionRequest":
			resp["result"] = map[string]any{
				"approved": w.approve,
				"chainId":  1,
				"accounts": []string{w.address()},
				"peerId":   "wallet-peer",
				"peerMeta": map[string]any{"name": "Fake Wallet"},
			}
		case method == "personal_sign":
			message, err := hexutil.Decode(req.Get("params.0").String())
			if !assert.NoError(w.t, err) {
				return
			}
			sig, err := sigverify.SignPersonal(w.key, string(message))
			if !assert.NoError(w.t, err) {
				return
			}
			resp["result"] = hexutil.Encode(sig)
		case method == "eth_signTransaction":
			resp["result"] = "0x02f0"
		case method == "wc_sessionUpdate":
			return
		}

		out, err := encryptJSON(resp, w.sessionKey())
		if !assert.NoError(w.t, err) {
			return
		}
		reply := &wcMessage{Topic: replyTopic, Type: "pub", Payload: out}
		if !assert.NoError(w.t, conn.WriteMessage(websocket.TextMessage, reply.marshal())) {
			return
		}
	}
}

func newPair(t *testing.T, approve bool) (*Client, *fakeWallet) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	w := &fakeWallet{t: t, key: key, approve: approve, rejectMethods: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BridgeURL:   srv.URL,
		ReadTimeout: 5 * time.Second,
		Meta:        ClientMeta{Name: "walletlogin"},
	}, nil)
	require.NoError(t, err)
	w.mu.Lock()
	w.client = c
	w.mu.Unlock()
	return c, w
}

func TestClient_ConnectAndSign(t *testing.T) {
	ctx := context.Background()
	c, w := newPair(t, true)

	var shownURI, shownQR string
	session, err := c.Connect(ctx, func(uri, qr string) error {
		shownURI, shownQR = uri, qr
		return nil
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(shownURI, "wc:"))
	assert.Contains(t, shownURI, "@1?bridge=")
	assert.NotEmpty(t, shownQR)
	assert.Equal(t, "wallet-peer", session.PeerID)
	assert.Equal(t, int64(1), session.ChainID)
	assert.Equal(t, []string{w.address()}, session.Accounts)
	assert.Equal(t, "Fake Wallet", session.PeerMeta.Name)

	message := sigverify.LoginMessage("Sign in", "n-1")
	sig, err := c.PersonalSign(ctx, w.address(), message)
	require.NoError(t, err)

	ok, err := sigverify.NewEthVerifier(nil).VerifyPersonalSign(w.address(), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := c.SignTransaction(ctx, TxRequest{From: w.address()})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xf0}, raw)

	require.NoError(t, c.Disconnect(ctx))
	assert.Nil(t, c.Session())

	_, err = c.PersonalSign(ctx, w.address(), message)
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.Eventually(t, func() bool {
		return len(w.seen()) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"wc_sessionRequest", "personal_sign", "eth_signTransaction", "wc_sessionUpdate"}, w.seen())
}

func TestClient_SessionRejected(t *testing.T) {
	c, _ := newPair(t, false)

	_, err := c.Connect(context.Background(), nil)
	require.ErrorIs(t, err, ErrSessionRejected)
	assert.Nil(t, c.Session())
}

func TestClient_RequestRejected(t *testing.T) {
	ctx := context.Background()
	c, w := newPair(t, true)
	w.reject("personal_sign")

	_, err := c.Connect(ctx, nil)
	require.NoError(t, err)

	_, err = c.PersonalSign(ctx, w.address(), "hello")
	require.ErrorIs(t, err, ErrRequestRejected)
	assert.Contains(t, err.Error(), "User rejected")
}

func TestClient_ConnectOnce(t *testing.T) {
	ctx := context.Background()
	c, _ := newPair(t, true)

	_, err := c.Connect(ctx, nil)
	require.NoError(t, err)
	_, err = c.Connect(ctx, nil)
	require.ErrorIs(t, err, errClientUsed)
}

func TestClient_ContextCancelStopsWaiting(t *testing.T) {
	// Bridge that accepts but never answers.
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BridgeURL: srv.URL, ReadTimeout: time.Minute}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Connect(ctx, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPayloadRoundTrip(t *testing.T) {
	key, err := randomBytes(32)
	require.NoError(t, err)

	p, err := encryptPayload([]byte(`{"id":1}`), key)
	require.NoError(t, err)
	plain, err := decryptPayload(p, key)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(plain))

	other, err := randomBytes(32)
	require.NoError(t, err)
	_, err = decryptPayload(p, other)
	assert.ErrorIs(t, err, errBadHMAC)
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("https://a.bridge.walletconnect.org")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "wss://a.bridge.walletconnect.org?"))
	assert.Contains(t, u, "protocol=wc")
	assert.Contains(t, u, "version=1")

	u, err = websocketURL("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "ws://127.0.0.1:8080?"))

	_, err = websocketURL("ftp://bridge")
	assert.Error(t, err)
}
