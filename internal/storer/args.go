package storer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/FAssetIndexor/pkg/indexer"
)

func arg[T any](ev *indexer.Event, name string) (T, error) {
	var zero T

	raw, ok := ev.Args[name]
	if !ok {
		return zero, fmt.Errorf("%s: missing argument %s", ev.Name, name)
	}

	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%s: argument %s has type %T, want %T", ev.Name, name, raw, zero)
	}

	return v, nil
}

// argReader collects the first decoding error so handlers can read every
// argument before checking once.
type argReader struct {
	ev  *indexer.Event
	err error
}

func (r *argReader) address(name string) common.Address {
	v, err := arg[common.Address](r.ev, name)
	r.keep(err)
	return v
}

func (r *argReader) big(name string) *big.Int {
	v, err := arg[*big.Int](r.ev, name)
	r.keep(err)
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (r *argReader) string(name string) string {
	v, err := arg[string](r.ev, name)
	r.keep(err)
	return v
}

func (r *argReader) bytes32(name string) common.Hash {
	v, err := arg[[32]byte](r.ev, name)
	r.keep(err)
	return common.Hash(v)
}

func (r *argReader) uint32(name string) uint32 {
	v, err := arg[uint32](r.ev, name)
	r.keep(err)
	return v
}

func (r *argReader) keep(err error) {
	if r.err == nil {
		r.err = err
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
