package sweep

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Event is a confirmed inbound token transfer reported by the deposit
// indexer, already filtered to the configured mint.
type Event struct {
	Signature string
	From      string
	To        string
	Amount    decimal.Decimal
}

type indexedTransaction struct {
	Signature        string          `json:"signature"`
	TransactionError json.RawMessage `json:"transactionError"`
	TokenTransfers   []tokenTransfer `json:"tokenTransfers"`
}

type tokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	Mint            string          `json:"mint"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
}

// ParseEvents decodes an indexer webhook body into deposit events. The body
// is a batch of enhanced transactions; failed transactions and transfers of
// other mints are dropped. A malformed body is an error, an empty batch is
// not.
func ParseEvents(body []byte, mint string) ([]Event, error) {
	var batch []indexedTransaction
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	var events []Event
	for _, tx := range batch {
		if tx.Signature == "" {
			continue
		}
		if len(tx.TransactionError) > 0 && string(tx.TransactionError) != "null" {
			continue
		}
		for _, transfer := range tx.TokenTransfers {
			if transfer.Mint != mint || !transfer.TokenAmount.IsPositive() {
				continue
			}
			events = append(events, Event{
				Signature: tx.Signature,
				From:      transfer.FromUserAccount,
				To:        transfer.ToUserAccount,
				Amount:    transfer.TokenAmount,
			})
		}
	}
	return events, nil
}
