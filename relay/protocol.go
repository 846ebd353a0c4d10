// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"
	"strings"
)

// Session roles.
const (
	RoleMaster   = "master"
	RoleReceiver = "receiver"
)

// Client-to-server message types.
const (
	TypeRegisterMaster   = "register-master"
	TypeRegisterReceiver = "register-receiver"
	TypeTradeSignal      = "trade-signal"
	TypeLivenessPing     = "liveness-ping"
)

// Server-to-client message types. TypeTradeSignal is shared: the
// server echoes relayed trades under the same type.
const (
	TypeRegistered       = "registered"
	TypeRejected         = "rejected"
	TypeConnectionUpdate = "connection-update"
	TypeReceiverUpdate   = "receiver-update"
	TypePong             = "pong"
)

// AccountInfo is optional trading-account metadata a master reports at
// registration.
type AccountInfo struct {
	Name     string  `cbor:"name,omitempty" json:"name,omitempty"`
	Broker   string  `cbor:"broker,omitempty" json:"broker,omitempty"`
	Balance  float64 `cbor:"balance,omitempty" json:"balance,omitempty"`
	Currency string  `cbor:"currency,omitempty" json:"currency,omitempty"`
}

// TradeOrder is the payload of a trade signal. StopLoss and TakeProfit
// are optional price levels; nil means the order carries none.
// LicenseKey optionally attributes the trade to a subscription for the
// durable trade history.
type TradeOrder struct {
	Symbol     string   `cbor:"symbol" json:"symbol"`
	Action     string   `cbor:"action" json:"action"`
	Volume     float64  `cbor:"volume" json:"volume"`
	StopLoss   *float64 `cbor:"sl,omitempty" json:"sl,omitempty"`
	TakeProfit *float64 `cbor:"tp,omitempty" json:"tp,omitempty"`
	LicenseKey string   `cbor:"license_key,omitempty" json:"license_key,omitempty"`
}

// Validate rejects orders that cannot be acted on. Symbol and action
// are required and volume must be positive. The action set is open:
// terminals send BUY/SELL plus close and partial-close variants in
// whatever casing they use, and the relay passes them through
// unchanged.
func (t TradeOrder) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade order: missing symbol")
	}
	if strings.TrimSpace(t.Action) == "" {
		return fmt.Errorf("trade order: missing action")
	}
	if t.Volume <= 0 {
		return fmt.Errorf("trade order: non-positive volume %v", t.Volume)
	}
	return nil
}

// ClientMessage is one client-to-server protocol message. Type selects
// which of the optional fields are meaningful.
type ClientMessage struct {
	Type       string       `cbor:"type"`
	APIKey     string       `cbor:"api_key,omitempty"`
	LicenseKey string       `cbor:"license_key,omitempty"`
	RiskMode   string       `cbor:"risk_mode,omitempty"`
	Account    *AccountInfo `cbor:"account,omitempty"`
	Trade      *TradeOrder  `cbor:"trade,omitempty"`
}

// ServerMessage is one server-to-client protocol message.
type ServerMessage struct {
	Type          string      `cbor:"type"`
	SessionID     string      `cbor:"session_id,omitempty"`
	Reason        string      `cbor:"reason,omitempty"`
	Trade         *TradeOrder `cbor:"trade,omitempty"`
	Timestamp     int64       `cbor:"timestamp,omitempty"`
	MasterCount   int         `cbor:"master_count,omitempty"`
	ReceiverCount int         `cbor:"receiver_count,omitempty"`
}
