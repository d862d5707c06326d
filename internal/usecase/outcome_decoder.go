package usecase

import (
	"encoding/json"
	"strconv"
	"strings"

	"event-billing/internal/domain/model"
)

// Gateway payloads changed shape between integration versions. Each logical
// value is looked up by an ordered alias list; the first non-empty match wins.
var (
	paymentIDAliases = []string{
		"PaymentId", "paymentId", "PaymentID", "paymentID", "payment_id",
	}
	transactionIDAliases = []string{
		"TransactionId", "transactionId", "TransactionID", "transactionID", "transaction_id",
		"TrxId", "trxId",
	}
	retrievalReferenceAliases = []string{
		"RetrievalReferenceNumber", "retrievalReferenceNumber",
		"RetrievalReference", "retrievalReference", "retrieval_reference",
		"RRN", "rrn",
	}
	responseCodeAliases = []string{
		"ResponseCode", "responseCode", "response_code", "ErrorCode", "errorCode", "Code", "code",
	}
	responseMessageAliases = []string{
		"ResponseMessage", "responseMessage", "response_message",
		"ErrorMessage", "errorMessage", "Message", "message", "Reason", "reason",
	}

	// payloadContainers are searched in order; "" is the top level.
	payloadContainers = []string{
		"", "data", "Data", "response", "Response", "result", "Result", "transaction", "Transaction",
	}
)

const defaultFailureReason = "payment declined"

// DecodeSuccess normalizes a success payload. A missing payment id falls back
// to the transaction id.
func DecodeSuccess(raw map[string]any) model.PaymentSuccess {
	s := model.PaymentSuccess{
		PaymentID:          lookupField(raw, paymentIDAliases),
		TransactionID:      lookupField(raw, transactionIDAliases),
		RetrievalReference: lookupField(raw, retrievalReferenceAliases),
		Raw:                raw,
	}
	if s.PaymentID == "" {
		s.PaymentID = s.TransactionID
	}
	return s
}

// DecodeFailure builds the user-visible reason from code and message.
func DecodeFailure(raw map[string]any) model.PaymentFailure {
	code := lookupField(raw, responseCodeAliases)
	msg := lookupField(raw, responseMessageAliases)

	reason := defaultFailureReason
	switch {
	case code != "" && msg != "":
		reason = code + ": " + msg
	case msg != "":
		reason = msg
	case code != "":
		reason = "response code " + code
	}
	return model.PaymentFailure{Reason: reason, Raw: raw}
}

func lookupField(raw map[string]any, aliases []string) string {
	for _, c := range payloadContainers {
		m := raw
		if c != "" {
			nested, ok := raw[c].(map[string]any)
			if !ok {
				continue
			}
			m = nested
		}
		for _, a := range aliases {
			if v, ok := scalarString(m[a]); ok {
				return v
			}
		}
	}
	return ""
}

// scalarString renders JSON scalars. Objects, arrays, nulls and blank strings
// do not count as a match.
func scalarString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	return s, s != ""
}
