package mobilemoney

import "encoding/json"

// Provider status strings
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
	StatusExpired    = "EXPIRED"
)

type createPaymentRequest struct {
	TxRef       string `json:"tx_ref"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
	ReturnURL   string `json:"return_url,omitempty"`
	Description string `json:"description,omitempty"`
}

type refundRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
}

// envelope is the response wrapper of every API call
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type paymentData struct {
	Reference      string `json:"reference"`
	TxRef          string `json:"tx_ref"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	CheckoutURL    string `json:"checkout_url"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
}

type refundData struct {
	RefundReference string `json:"refund_reference"`
	Status          string `json:"status"`
}

type webhookPayload struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data paymentData `json:"data"`
}
