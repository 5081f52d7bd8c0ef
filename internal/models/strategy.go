package models

// Side как на бирже: "buy"/"sell".
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradingState — состояние автомата монитора.
type TradingState uint8

const (
	StateDefault TradingState = iota
	StateOverbought
	StateOversold
	StateSellIndicated
	StateBuyIndicated
	StateSell
	StateBuy
)

var stateNames = [...]string{
	StateDefault:       "DEFAULT",
	StateOverbought:    "OVERBOUGHT",
	StateOversold:      "OVERSOLD",
	StateSellIndicated: "SELL_INDICATED",
	StateBuyIndicated:  "BUY_INDICATED",
	StateSell:          "SELL",
	StateBuy:           "BUY",
}

func (s TradingState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}
