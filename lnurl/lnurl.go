package lnurl

// Tag identifies a LNURL sub-protocol.
type Tag string

const (
	TagChannelRequest  Tag = "channelRequest"
	TagPayRequest      Tag = "payRequest"
	TagWithdrawRequest Tag = "withdrawRequest"
	TagAuth            Tag = "auth"
)

func (t Tag) Valid() bool {
	switch t {
	case TagChannelRequest, TagPayRequest, TagWithdrawRequest, TagAuth:
		return true
	default:
		return false
	}
}

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// ChannelRequestResponse is served on the channel request entry point.
type ChannelRequestResponse struct {
	Status   string `json:"status"`
	Tag      Tag    `json:"tag"`
	Uri      string `json:"uri"`
	K1       string `json:"k1"`
	Callback string `json:"callback"`
}

// ChannelResultResponse is the answer to a redeemed channel request.
type ChannelResultResponse struct {
	Status string      `json:"status"`
	Result interface{} `json:"result"`
}

// PayResponse is the payment offer of a LNURL-pay service. Metadata is
// the raw serialized metadata, exactly the bytes the invoice description
// hash commits to.
type PayResponse struct {
	Callback    string `json:"callback"`
	MaxSendable uint64 `json:"maxSendable"`
	MinSendable uint64 `json:"minSendable"`
	Metadata    string `json:"metadata"`
	Tag         Tag    `json:"tag"`
}

// InvoiceResponse carries a bech32-serialized lightning invoice. Routes
// is always an empty array.
type InvoiceResponse struct {
	PaymentRequest string        `json:"pr"`
	Routes         []interface{} `json:"routes"`
}

func NewInvoiceResponse(pr string) *InvoiceResponse {
	return &InvoiceResponse{
		PaymentRequest: pr,
		Routes:         []interface{}{},
	}
}

type WithdrawResponse struct {
	Status             string `json:"status"`
	Tag                Tag    `json:"tag"`
	Callback           string `json:"callback"`
	K1                 string `json:"k1"`
	MinWithdrawable    uint64 `json:"minWithdrawable"`
	MaxWithdrawable    uint64 `json:"maxWithdrawable"`
	DefaultDescription string `json:"defaultDescription"`
	Amount             uint64 `json:"amount"`
}

type AuthResponse struct {
	Status  string `json:"status"`
	Tag     Tag    `json:"tag"`
	K1      string `json:"k1"`
	UserId  string `json:"user_id"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed LNURL call.
type ErrorResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func NewErrorResponse(reason string) *ErrorResponse {
	return &ErrorResponse{
		Status: StatusError,
		Reason: reason,
	}
}
