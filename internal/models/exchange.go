package models

import (
	"strings"

	"github.com/pkg/errors"
)

// Exchange identifies a supported venue.
type Exchange string

const (
	ExchangeBitmex  Exchange = "bitmex"
	ExchangeBinance Exchange = "binance"
	ExchangeFtx     Exchange = "ftx"
)

var ErrUnknownExchange = errors.New("--exchange argument missing or invalid")

// Exchanges lists the enumerated set in a stable order.
func Exchanges() []Exchange {
	return []Exchange{ExchangeBitmex, ExchangeBinance, ExchangeFtx}
}

func ParseExchange(s string) (Exchange, error) {
	id := Exchange(strings.ToLower(strings.TrimSpace(s)))
	for _, e := range Exchanges() {
		if e == id {
			return e, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownExchange, "%q", s)
}

func (e Exchange) String() string { return string(e) }
