package underlying

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

const (
	satoshiPerCoin = 100_000_000
	// OP_RETURN followed by a 32 byte push
	opReturnReferencePrefix = "6a20"
)

// DogeClient reads blocks from a dogecoind JSON-RPC endpoint.
type DogeClient struct {
	*node
}

type dogeBlock struct {
	Hash   string   `json:"hash"`
	Height uint64   `json:"height"`
	Time   uint64   `json:"time"`
	Tx     []string `json:"tx"`
}

type dogeTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		Value        json.Number `json:"value"`
		ScriptPubKey struct {
			Hex       string   `json:"hex"`
			Type      string   `json:"type"`
			Addresses []string `json:"addresses"`
		} `json:"scriptPubKey"`
	} `json:"vout"`
}

// BlockHeight returns the height of the node's best block.
func (c *DogeClient) BlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.call(ctx, &height, "getblockcount"); err != nil {
		return 0, err
	}
	return height, nil
}

// Block returns the block at height with the transactions carrying an OP_RETURN
// payment reference. The first non-reference output is taken as the payment.
func (c *DogeClient) Block(ctx context.Context, height uint64) (*Block, error) {
	var hash string
	if err := c.call(ctx, &hash, "getblockhash", height); err != nil {
		return nil, err
	}

	var raw dogeBlock
	if err := c.call(ctx, &raw, "getblock", hash, true); err != nil {
		return nil, err
	}

	block := &Block{Height: height, Hash: raw.Hash, Timestamp: raw.Time}

	for _, txid := range raw.Tx {
		var tx dogeTx
		if err := c.call(ctx, &tx, "getrawtransaction", txid, true); err != nil {
			return nil, fmt.Errorf("failed to get doge transaction %s: %w", txid, err)
		}

		payment, ok := dogePayment(tx)
		if ok {
			block.Transactions = append(block.Transactions, payment)
		}
	}

	return block, nil
}

func dogePayment(tx dogeTx) (Transaction, bool) {
	payment := Transaction{Hash: tx.TxID}

	for _, out := range tx.Vout {
		script := strings.ToLower(out.ScriptPubKey.Hex)
		if out.ScriptPubKey.Type == "nulldata" && strings.HasPrefix(script, opReturnReferencePrefix) {
			if payment.PaymentReference == nil {
				payment.PaymentReference = referenceFromHex(script[len(opReturnReferencePrefix):])
			}
			continue
		}

		if payment.Target == "" && len(out.ScriptPubKey.Addresses) > 0 {
			payment.Target = out.ScriptPubKey.Addresses[0]
			payment.Amount = dogeSatoshi(out.Value)
		}
	}

	return payment, payment.PaymentReference != nil
}

func dogeSatoshi(v json.Number) *big.Int {
	r, ok := new(big.Rat).SetString(v.String())
	if !ok {
		return nil
	}
	r.Mul(r, new(big.Rat).SetInt64(satoshiPerCoin))
	if !r.IsInt() {
		return nil
	}
	return new(big.Int).Set(r.Num())
}
