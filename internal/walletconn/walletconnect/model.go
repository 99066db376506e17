package walletconnect

import (
	"encoding/json"
	"strings"
)

// ClientMeta describes a peer to the other side of the session
type ClientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

// Session is the wallet side of an approved WalletConnect session
type Session struct {
	PeerID   string
	PeerMeta ClientMeta
	ChainID  int64
	Accounts []string
}

// bridge message envelope
type wcMessage struct {
	Topic string `json:"topic"`
	// pub, sub or ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func (m *wcMessage) marshal() []byte {
	b, _ := json.Marshal(m)
	return b
}

// encrypted JSON-RPC body carried in wcMessage.Payload
type wcMessagePayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

type peer struct {
	PeerID   string     `json:"peerId"`
	PeerMeta ClientMeta `json:"peerMeta"`
	ChainID  *int64     `json:"chainId"`
}

type jsonRPCRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newJSONRPCRequest(id int64, method string, params ...any) *jsonRPCRequest {
	if params == nil {
		params = []any{}
	}
	return &jsonRPCRequest{
		ID:      id,
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// silent reports whether the wallet should handle the request without
// showing the user anything
func (r *jsonRPCRequest) silent() bool {
	return strings.HasPrefix(r.Method, "wc_")
}

// TxRequest is the eth_signTransaction parameter object. Quantities are
// 0x-prefixed hex strings.
type TxRequest struct {
	From                 string `json:"from"`
	To                   string `json:"to,omitempty"`
	Data                 string `json:"data,omitempty"`
	Gas                  string `json:"gas,omitempty"`
	MaxFeePerGas         string `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas,omitempty"`
	Value                string `json:"value,omitempty"`
	Nonce                string `json:"nonce,omitempty"`
	ChainID              string `json:"chainId,omitempty"`
}
