package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind — тег варианта сообщения.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindHistoricalDataRequest
	KindHistoricalDataResponse
	KindTickerResponse
	KindAccountBalanceRequest
	KindAccountBalanceResponse
	KindBuyOrderRequest
	KindBuyOrderResponse
	KindSellOrderRequest
	KindSellOrderResponse
	KindCandleUpdate
	KindShutdown
)

var kindNames = map[Kind]string{
	KindHistoricalDataRequest:  "HistoricalDataRequest",
	KindHistoricalDataResponse: "HistoricalDataResponse",
	KindTickerResponse:         "TickerResponse",
	KindAccountBalanceRequest:  "AccountBalanceRequest",
	KindAccountBalanceResponse: "AccountBalanceResponse",
	KindBuyOrderRequest:        "BuyOrderRequest",
	KindBuyOrderResponse:       "BuyOrderResponse",
	KindSellOrderRequest:       "SellOrderRequest",
	KindSellOrderResponse:      "SellOrderResponse",
	KindCandleUpdate:           "CandleUpdate",
	KindShutdown:               "Shutdown",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Mailbox — адрес актора: идентичность + входящая очередь.
// Отвечающий актор кладёт ответ прямо в ящик отправителя.
type Mailbox interface {
	ID() string
	Enqueue(msg Message)
}

// Payload — закрытое множество вариантов сообщения.
type Payload interface {
	Kind() Kind
	sealed()
}

// Message неизменяемо после создания: поля закрыты, наружу только геттеры.
type Message struct {
	sender    Mailbox
	recipient string
	payload   Payload
}

func NewMessage(sender Mailbox, recipient string, payload Payload) Message {
	return Message{sender: sender, recipient: recipient, payload: payload}
}

func (m Message) Kind() Kind {
	if m.payload == nil {
		return KindUnknown
	}
	return m.payload.Kind()
}

func (m Message) Sender() Mailbox   { return m.sender }
func (m Message) Recipient() string { return m.recipient }
func (m Message) Payload() Payload  { return m.payload }

// SenderID безопасен для nil-отправителя (системные сообщения).
func (m Message) SenderID() string {
	if m.sender == nil {
		return "system"
	}
	return m.sender.ID()
}

func (m Message) String() string {
	return fmt.Sprintf("(%s --%s--> %s)", m.SenderID(), m.Kind(), m.recipient)
}

// ===== варианты =====

type HistoricalDataRequest struct {
	Market      string
	Granularity time.Duration
	Start       time.Time // zero — отдать последние строки
	End         time.Time
}

type HistoricalDataResponse struct {
	Market      string
	Granularity time.Duration
	Rows        []Rate // по возрастанию времени
	ReceivedAt  time.Time
}

type TickerResponse struct {
	Tick Tick
}

type AccountBalanceRequest struct{}

type AccountBalanceResponse struct {
	Balances []Balance
}

type BuyOrderRequest struct {
	Market string
	Funds  decimal.Decimal // в котируемой валюте
}

type BuyOrderResponse struct {
	Order OrderResult
}

type SellOrderRequest struct {
	Market string
	Size   decimal.Decimal // в базовой валюте
}

type SellOrderResponse struct {
	Order OrderResult
}

type CandleUpdate struct {
	Candle  Candle
	Pattern Pattern
}

type Shutdown struct{}

func (HistoricalDataRequest) Kind() Kind  { return KindHistoricalDataRequest }
func (HistoricalDataResponse) Kind() Kind { return KindHistoricalDataResponse }
func (TickerResponse) Kind() Kind         { return KindTickerResponse }
func (AccountBalanceRequest) Kind() Kind  { return KindAccountBalanceRequest }
func (AccountBalanceResponse) Kind() Kind { return KindAccountBalanceResponse }
func (BuyOrderRequest) Kind() Kind        { return KindBuyOrderRequest }
func (BuyOrderResponse) Kind() Kind       { return KindBuyOrderResponse }
func (SellOrderRequest) Kind() Kind       { return KindSellOrderRequest }
func (SellOrderResponse) Kind() Kind      { return KindSellOrderResponse }
func (CandleUpdate) Kind() Kind           { return KindCandleUpdate }
func (Shutdown) Kind() Kind               { return KindShutdown }

func (HistoricalDataRequest) sealed()  {}
func (HistoricalDataResponse) sealed() {}
func (TickerResponse) sealed()         {}
func (AccountBalanceRequest) sealed()  {}
func (AccountBalanceResponse) sealed() {}
func (BuyOrderRequest) sealed()        {}
func (BuyOrderResponse) sealed()       {}
func (SellOrderRequest) sealed()       {}
func (SellOrderResponse) sealed()      {}
func (CandleUpdate) sealed()           {}
func (Shutdown) sealed()               {}
