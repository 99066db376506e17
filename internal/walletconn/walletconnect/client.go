// Package walletconnect is a WalletConnect v1 bridge client: it pairs with a
// mobile wallet through a QR code and relays personal_sign and
// eth_signTransaction requests to it.
//
// Protocol reference: https://docs.walletconnect.com/tech-spec#establishing-connection
package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed   = errors.New("walletconnect: session closed by wallet")
	ErrSessionRejected = errors.New("walletconnect: session rejected")
	ErrRequestRejected = errors.New("walletconnect: request rejected")
	ErrNotConnected    = errors.New("walletconnect: not connected")
	errClientUsed      = errors.New("walletconnect: client already used, create a new one")
)

const defaultReadTimeout = 5 * time.Minute

// DisplayFn shows the pairing URI to the user. qr is the URI rendered as a
// terminal QR code.
type DisplayFn func(uri, qr string) error

type Config struct {
	// BridgeURL defaults to a random public bridge
	BridgeURL string
	// ReadTimeout bounds every wait for the wallet, including the user's
	// time to scan and approve
	ReadTimeout time.Duration
	Meta        ClientMeta
	// ChainID requested from the wallet; 0 lets the wallet choose
	ChainID int64
}

// Client is one pairing with one wallet. A Client connects once; create a
// new one to pair again.
type Client struct {
	cfg    Config
	logger *zap.Logger

	handshakeTopic string
	clientID       string
	key            []byte

	nextID       atomic.Int64
	connectCount atomic.Int64

	// mu serializes request/response exchanges on conn
	mu      sync.Mutex
	conn    *websocket.Conn
	session *Session
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BridgeURL == "" {
		cfg.BridgeURL = RandomBridgeURL()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	key, err := randomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	c := &Client{
		cfg:            cfg,
		logger:         logger.With(zap.String("component", "walletconnect")),
		handshakeTopic: uuid.NewString(),
		clientID:       uuid.NewString(),
		key:            key,
	}
	c.nextID.Store(time.Now().UnixMicro())
	return c, nil
}

// URI is the wc: pairing URI the wallet scans
func (c *Client) URI() string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s",
		c.handshakeTopic, url.QueryEscape(c.cfg.BridgeURL), hex.EncodeToString(c.key))
}

// QRCode renders the pairing URI as a PNG
func (c *Client) QRCode(size int) ([]byte, error) {
	png, err := qrcode.Encode(c.URI(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode pairing qr code: %w", err)
	}
	return png, nil
}

// QRText renders the pairing URI for a terminal
func (c *Client) QRText() (string, error) {
	q, err := qrcode.New(c.URI(), qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("encode pairing qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}

// Session returns the approved session, or nil before Connect succeeds
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	cp := *c.session
	cp.Accounts = append([]string(nil), c.session.Accounts...)
	return &cp
}

// Connect dials the bridge, publishes a session request, shows the pairing
// URI through display and waits for the wallet to approve.
func (c *Client) Connect(ctx context.Context, display DisplayFn) (*Session, error) {
	if !c.connectCount.CompareAndSwap(0, 1) {
		return nil, errClientUsed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wsURL, err := websocketURL(c.cfg.BridgeURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial walletconnect bridge: %w", err)
	}
	c.conn = conn

	session, err := c.handshake(ctx, display)
	if err != nil {
		c.closeConn()
		return nil, err
	}
	c.session = session

	c.logger.Info("walletconnect session approved",
		zap.String("peer", session.PeerMeta.Name),
		zap.Int64("chain_id", session.ChainID),
		zap.Strings("accounts", session.Accounts),
	)

	cp := *session
	return &cp, nil
}

func (c *Client) handshake(ctx context.Context, display DisplayFn) (*Session, error) {
	// 1. subscribe to our own topic for responses
	if err := c.send(&wcMessage{Topic: c.clientID, Type: "sub", Silent: true}); err != nil {
		return nil, err
	}

	// 2. session request on the handshake topic
	var chainID *int64
	if c.cfg.ChainID != 0 {
		chainID = &c.cfg.ChainID
	}
	req := newJSONRPCRequest(c.nextID.Inc(), "wc_sessionRequest", peer{
		PeerID:   c.clientID,
		PeerMeta: c.cfg.Meta,
		ChainID:  chainID,
	})
	if err := c.publish(c.handshakeTopic, req); err != nil {
		return nil, err
	}

	// 3. show pairing uri
	if display != nil {
		qr, err := c.QRText()
		if err != nil {
			return nil, err
		}
		if err := display(c.URI(), qr); err != nil {
			return nil, fmt.Errorf("display pairing uri: %w", err)
		}
	}

	// 4. wait for approval
	resp, err := c.awaitResponse(ctx, req.ID)
	if errors.Is(err, ErrSessionClosed) {
		return nil, ErrSessionRejected
	}
	if err != nil {
		return nil, err
	}
	if e := resp.Get("error"); e.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrSessionRejected, e.Get("message").String())
	}

	result := resp.Get("result")
	if !result.Get("approved").Bool() {
		return nil, ErrSessionRejected
	}

	session := &Session{
		PeerID:  result.Get("peerId").String(),
		ChainID: result.Get("chainId").Int(),
	}
	for _, a := range result.Get("accounts").Array() {
		session.Accounts = append(session.Accounts, a.String())
	}
	if meta := result.Get("peerMeta"); meta.IsObject() {
		if err := json.Unmarshal([]byte(meta.Raw), &session.PeerMeta); err != nil {
			return nil, fmt.Errorf("decode peer meta: %w", err)
		}
	}
	if session.PeerID == "" {
		return nil, errors.New("walletconnect: session response has no peer id")
	}
	return session, nil
}

// PersonalSign asks the wallet to sign message with EIP-191 personal_sign.
// The returned signature has V in {27, 28}.
func (c *Client) PersonalSign(ctx context.Context, address, message string) ([]byte, error) {
	result, err := c.request(ctx, "personal_sign", hexutil.Encode([]byte(message)), address)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(result.String())
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("walletconnect: signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return sig, nil
}

// SignTransaction asks the wallet to sign tx and returns the raw signed
// transaction bytes
func (c *Client) SignTransaction(ctx context.Context, tx TxRequest) ([]byte, error) {
	result, err := c.request(ctx, "eth_signTransaction", tx)
	if err != nil {
		return nil, err
	}
	raw, err := hexutil.Decode(result.String())
	if err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return raw, nil
}

// Disconnect tells the wallet the session is over and closes the bridge
// connection. Calling it on a closed client is a no-op.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	var err error
	if c.session != nil {
		req := newJSONRPCRequest(c.nextID.Inc(), "wc_sessionUpdate", map[string]any{
			"approved": false,
			"chainId":  nil,
			"accounts": nil,
		})
		err = c.publish(c.session.PeerID, req)
	}
	c.closeConn()
	return err
}

// ============================================================================
// Transport
// ============================================================================

func (c *Client) request(ctx context.Context, method string, params ...any) (gjson.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.session == nil {
		return gjson.Result{}, ErrNotConnected
	}

	req := newJSONRPCRequest(c.nextID.Inc(), method, params...)
	if err := c.publish(c.session.PeerID, req); err != nil {
		return gjson.Result{}, err
	}

	resp, err := c.awaitResponse(ctx, req.ID)
	if err != nil {
		return gjson.Result{}, err
	}
	if e := resp.Get("error"); e.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s: %s", ErrRequestRejected, method, e.Get("message").String())
	}
	return resp.Get("result"), nil
}

func (c *Client) publish(topic string, req *jsonRPCRequest) error {
	payload, err := encryptJSON(req, c.key)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", req.Method, err)
	}
	c.logger.Debug("publish", zap.String("method", req.Method), zap.Int64("id", req.ID))
	return c.send(&wcMessage{
		Topic:   topic,
		Type:    "pub",
		Payload: payload,
		Silent:  req.silent(),
	})
}

func (c *Client) send(msg *wcMessage) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, msg.marshal()); err != nil {
		return fmt.Errorf("write bridge message: %w", err)
	}
	return nil
}

// awaitResponse reads bridge messages until the JSON-RPC response with id
// arrives. A canceled ctx breaks the read and the connection with it.
func (c *Client) awaitResponse(ctx context.Context, id int64) (gjson.Result, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return gjson.Result{}, fmt.Errorf("set read deadline: %w", err)
	}
	conn := c.conn
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeConn()
			if ctx.Err() != nil {
				return gjson.Result{}, context.Cause(ctx)
			}
			return gjson.Result{}, fmt.Errorf("read bridge message: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg wcMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "pub" {
			continue
		}
		if err := c.send(&wcMessage{Topic: msg.Topic, Type: "ack", Silent: true}); err != nil {
			return gjson.Result{}, err
		}

		var payload wcMessagePayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			c.logger.Warn("undecodable bridge payload", zap.Error(err))
			continue
		}
		plain, err := decryptPayload(&payload, c.key)
		if err != nil {
			c.logger.Warn("dropping bridge payload", zap.Error(err))
			continue
		}

		body := gjson.ParseBytes(plain)
		if body.Get("method").String() == "wc_sessionUpdate" && !body.Get("params.0.approved").Bool() {
			c.logger.Warn("wallet closed the session")
			c.closeConn()
			return gjson.Result{}, ErrSessionClosed
		}
		if body.Get("id").Int() != id {
			c.logger.Debug("skipping unrelated message", zap.Int64("id", body.Get("id").Int()))
			continue
		}
		return body, nil
	}
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.session = nil
}
