package underlying

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
)

// rippleEpoch is 2000-01-01T00:00:00Z in unix seconds; ledger close times count from it.
const rippleEpoch = 946_684_800

const xrpSuccess = "tesSUCCESS"

// XRPClient reads validated ledgers from a rippled JSON-RPC endpoint.
type XRPClient struct {
	*node
}

type xrpLedgerRequest struct {
	LedgerIndex  any  `json:"ledger_index"`
	Transactions bool `json:"transactions,omitempty"`
	Expand       bool `json:"expand,omitempty"`
}

type xrpLedgerResult struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
	LedgerIndex  uint64 `json:"ledger_index"`
	Ledger       struct {
		LedgerHash   string  `json:"ledger_hash"`
		CloseTime    uint64  `json:"close_time"`
		Transactions []xrpTx `json:"transactions"`
	} `json:"ledger"`
}

type xrpTx struct {
	Hash            string          `json:"hash"`
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	Memos           []struct {
		Memo struct {
			MemoData string `json:"MemoData"`
		} `json:"Memo"`
	} `json:"Memos"`
	Meta *struct {
		TransactionResult string `json:"TransactionResult"`
	} `json:"metaData"`
}

func (c *XRPClient) ledger(ctx context.Context, req xrpLedgerRequest) (*xrpLedgerResult, error) {
	var res xrpLedgerResult
	if err := c.call(ctx, &res, "ledger", req); err != nil {
		return nil, err
	}
	if res.Status == "error" || res.Error != "" {
		return nil, fmt.Errorf("rippled ledger %v: %s %s", req.LedgerIndex, res.Error, res.ErrorMessage)
	}
	return &res, nil
}

// BlockHeight returns the index of the latest validated ledger.
func (c *XRPClient) BlockHeight(ctx context.Context) (uint64, error) {
	res, err := c.ledger(ctx, xrpLedgerRequest{LedgerIndex: "validated"})
	if err != nil {
		return 0, err
	}
	return res.LedgerIndex, nil
}

// Block returns the ledger at height with its successful payments.
func (c *XRPClient) Block(ctx context.Context, height uint64) (*Block, error) {
	res, err := c.ledger(ctx, xrpLedgerRequest{LedgerIndex: height, Transactions: true, Expand: true})
	if err != nil {
		return nil, err
	}

	block := &Block{
		Height:    height,
		Hash:      res.Ledger.LedgerHash,
		Timestamp: res.Ledger.CloseTime + rippleEpoch,
	}

	for _, tx := range res.Ledger.Transactions {
		if tx.TransactionType != "Payment" {
			continue
		}
		if tx.Meta != nil && tx.Meta.TransactionResult != xrpSuccess {
			continue
		}

		payment := Transaction{
			Hash:   tx.Hash,
			Source: tx.Account,
			Target: tx.Destination,
			Amount: xrpDrops(tx.Amount),
		}
		for _, m := range tx.Memos {
			if ref := referenceFromHex(m.Memo.MemoData); ref != nil {
				payment.PaymentReference = ref
				break
			}
		}

		block.Transactions = append(block.Transactions, payment)
	}

	return block, nil
}

// xrpDrops returns native XRP amounts in drops; issued currency amounts are objects and yield nil.
func xrpDrops(raw json.RawMessage) *big.Int {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10) //nolint:mnd
	if !ok {
		return nil
	}
	return v
}
