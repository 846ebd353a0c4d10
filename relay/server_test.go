// Copyright 2026 The Tradewire Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/tradewire-project/tradewire/lib/apikey"
	"github.com/tradewire-project/tradewire/lib/clock"
	"github.com/tradewire-project/tradewire/lib/codec"
	"github.com/tradewire-project/tradewire/lib/testutil"
)

func startTestServer(t *testing.T, oracle *fakeOracle, sink *fakeSink) (string, *Registry) {
	t.Helper()
	registry := NewRegistry()
	clk := clock.Real()
	logger := testLogger()
	broadcaster := NewBroadcaster(registry, sink, clk, logger)
	verifier := verifierFunc(func(credential string) bool {
		return credential == "good-key"
	})
	server := NewServer(ServerConfig{
		Registry:        registry,
		Admission:       NewAdmission(verifier, oracle, clk, logger),
		Broadcaster:     broadcaster,
		Sink:            sink,
		Clock:           clk,
		Logger:          logger,
		MaxMessageBytes: 64 * 1024,
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx, listener); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "server did not shut down")
	})
	return listener.Addr().String(), registry
}

// testClient is a protocol-speaking client over a real TCP connection.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	encoder *codec.Encoder
	decoder *codec.Decoder
}

func dialRelay(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dialing relay: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{
		t:       t,
		conn:    conn,
		encoder: codec.NewEncoder(conn),
		decoder: codec.NewDecoder(conn),
	}
}

func (c *testClient) send(msg ClientMessage) {
	c.t.Helper()
	if err := c.encoder.Encode(msg); err != nil {
		c.t.Fatalf("sending %s: %v", msg.Type, err)
	}
}

// sendRaw writes arbitrary bytes onto the stream.
func (c *testClient) sendRaw(data []byte) {
	c.t.Helper()
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("writing raw bytes: %v", err)
	}
}

func (c *testClient) recv() ServerMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ServerMessage
	if err := c.decoder.Decode(&msg); err != nil {
		c.t.Fatalf("receiving: %v", err)
	}
	return msg
}

// recvType drains messages until one of the wanted type arrives.
// Peer-count updates interleave with everything else, so most tests
// skip past them.
func (c *testClient) recvType(wanted string) ServerMessage {
	c.t.Helper()
	for range 16 {
		msg := c.recv()
		if msg.Type == wanted {
			return msg
		}
	}
	c.t.Fatalf("no %s message within 16 messages", wanted)
	return ServerMessage{}
}

// expectClosed asserts the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ServerMessage
	if err := c.decoder.Decode(&msg); err == nil {
		c.t.Fatalf("connection still open, received %+v", msg)
	}
}

func (c *testClient) registerMaster(key string) string {
	c.t.Helper()
	c.send(ClientMessage{
		Type:   TypeRegisterMaster,
		APIKey: key,
		Account: &AccountInfo{
			Name: "acct", Broker: "TestBroker", Balance: 5000, Currency: "USD",
		},
	})
	return c.recvType(TypeRegistered).SessionID
}

func (c *testClient) registerReceiver(licenseKey string) string {
	c.t.Helper()
	c.send(ClientMessage{Type: TypeRegisterReceiver, LicenseKey: licenseKey})
	return c.recvType(TypeRegistered).SessionID
}

func activeLicense(key string) LicenseInfo {
	return LicenseInfo{Key: key, Active: true, Expiry: time.Now().Add(time.Hour)}
}

func TestServerMasterRegistration(t *testing.T) {
	sink := &fakeSink{}
	addr, registry := startTestServer(t, newFakeOracle(), sink)

	client := dialRelay(t, addr)
	sessionID := client.registerMaster("good-key")
	if sessionID == "" {
		t.Fatal("registered message carried no session ID")
	}

	// Registration announces peer counts to the new master too.
	update := client.recvType(TypeReceiverUpdate)
	if update.ReceiverCount != 0 {
		t.Errorf("receiver count = %d, want 0", update.ReceiverCount)
	}

	session, ok := registry.Get(sessionID)
	if !ok {
		t.Fatal("session not in registry")
	}
	if session.Role != RoleMaster || session.Account().Broker != "TestBroker" {
		t.Errorf("unexpected session: role=%s account=%+v", session.Role, session.Account())
	}

	// The raw API key must not leak past admission: the session and
	// the sink record carry its fingerprint instead.
	want := apikey.Fingerprint("good-key")
	if session.Credential != want {
		t.Errorf("session credential = %q, want fingerprint %q", session.Credential, want)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.openedRecords()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	records := sink.openedRecords()
	if len(records) != 1 || records[0].Credential != want {
		t.Errorf("mirrored records = %+v, want one with credential %q", records, want)
	}
}

func TestServerRejectsInvalidKey(t *testing.T) {
	sink := &fakeSink{}
	addr, registry := startTestServer(t, newFakeOracle(), sink)

	client := dialRelay(t, addr)
	client.send(ClientMessage{Type: TypeRegisterMaster, APIKey: "wrong"})

	msg := client.recv()
	if msg.Type != TypeRejected || msg.Reason != "invalid API key" {
		t.Errorf("got %+v, want rejected with reason %q", msg, "invalid API key")
	}
	client.expectClosed()
	if n := registry.CountByRole(RoleMaster); n != 0 {
		t.Errorf("master count = %d, want 0", n)
	}

	// The rejection leaves a durable audit entry.
	deadline := time.Now().Add(2 * time.Second)
	for len(sink.logEntries()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if entries := sink.logEntries(); len(entries) != 1 || entries[0] != "warn: admission rejected" {
		t.Errorf("audit entries = %v, want [warn: admission rejected]", entries)
	}
}

func TestServerRejectsExpiredLicense(t *testing.T) {
	oracle := newFakeOracle()
	oracle.licenses["LIC-OLD"] = LicenseInfo{
		Key: "LIC-OLD", Active: true, Expiry: time.Now().Add(-time.Hour),
	}
	addr, _ := startTestServer(t, oracle, &fakeSink{})

	client := dialRelay(t, addr)
	client.send(ClientMessage{Type: TypeRegisterReceiver, LicenseKey: "LIC-OLD"})

	msg := client.recv()
	if msg.Type != TypeRejected || msg.Reason != "invalid or expired license" {
		t.Errorf("got %+v, want rejected with reason %q", msg, "invalid or expired license")
	}
	client.expectClosed()
}

func TestServerTradeFanout(t *testing.T) {
	oracle := newFakeOracle()
	oracle.licenses["DEMO-1"] = activeLicense("DEMO-1")
	sink := &fakeSink{}
	addr, _ := startTestServer(t, oracle, sink)

	receiver := dialRelay(t, addr)
	receiver.registerReceiver("DEMO-1")

	master := dialRelay(t, addr)
	master.registerMaster("good-key")

	stopLoss := 1.0850
	master.send(ClientMessage{
		Type: TypeTradeSignal,
		Trade: &TradeOrder{
			Symbol: "EURUSD", Action: "buy", Volume: 0.10,
			StopLoss: &stopLoss, LicenseKey: "DEMO-1",
		},
	})

	msg := receiver.recvType(TypeTradeSignal)
	if msg.Trade == nil || msg.Trade.Symbol != "EURUSD" || msg.Trade.Volume != 0.10 {
		t.Fatalf("received trade = %+v", msg.Trade)
	}
	if msg.Trade.StopLoss == nil || *msg.Trade.StopLoss != stopLoss {
		t.Errorf("stop loss = %v, want %v", msg.Trade.StopLoss, stopLoss)
	}
	if msg.Timestamp == 0 {
		t.Error("relayed trade carries no server timestamp")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.recordedTrades()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	trades := sink.recordedTrades()
	if len(trades) != 1 || trades[0].licenseKey != "DEMO-1" {
		t.Errorf("persisted trades = %+v, want one under DEMO-1", trades)
	}
}

func TestServerRelaysCloseSignals(t *testing.T) {
	oracle := newFakeOracle()
	oracle.licenses["DEMO-1"] = activeLicense("DEMO-1")
	addr, _ := startTestServer(t, oracle, &fakeSink{})

	receiver := dialRelay(t, addr)
	receiver.registerReceiver("DEMO-1")

	master := dialRelay(t, addr)
	master.registerMaster("good-key")

	// Close and partial-close actions pass through untouched; the
	// relay does not own the action vocabulary.
	for _, action := range []string{"CLOSE_BUY", "CLOSE_SELL", "CloseBuy", "partial-close"} {
		master.send(ClientMessage{
			Type:  TypeTradeSignal,
			Trade: &TradeOrder{Symbol: "EURUSD", Action: action, Volume: 0.05},
		})
		msg := receiver.recvType(TypeTradeSignal)
		if msg.Trade == nil || msg.Trade.Action != action {
			t.Fatalf("relayed trade = %+v, want action %q", msg.Trade, action)
		}
	}
}

func TestServerPing(t *testing.T) {
	addr, registry := startTestServer(t, newFakeOracle(), &fakeSink{})

	client := dialRelay(t, addr)
	sessionID := client.registerMaster("good-key")

	before, _ := registry.Get(sessionID)
	lastSeen := before.LastSeen()

	time.Sleep(5 * time.Millisecond)
	client.send(ClientMessage{Type: TypeLivenessPing})
	pong := client.recvType(TypePong)
	if pong.Timestamp == 0 {
		t.Error("pong carries no timestamp")
	}

	session, _ := registry.Get(sessionID)
	if !session.LastSeen().After(lastSeen) {
		t.Error("ping did not advance last-seen time")
	}
}

func TestServerUnknownTypeKeepsSessionAlive(t *testing.T) {
	addr, _ := startTestServer(t, newFakeOracle(), &fakeSink{})

	client := dialRelay(t, addr)
	client.registerMaster("good-key")

	client.send(ClientMessage{Type: "set-risk-profile"})
	client.send(ClientMessage{Type: TypeLivenessPing})
	client.recvType(TypePong)
}

func TestServerMalformedPayloadKeepsLoopRunning(t *testing.T) {
	addr, _ := startTestServer(t, newFakeOracle(), &fakeSink{})

	client := dialRelay(t, addr)
	client.registerMaster("good-key")

	// A well-formed CBOR item that is not a protocol map.
	raw, err := codec.Marshal(42)
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	client.sendRaw(raw)

	// Trade signals with broken payloads are dropped, not fatal.
	client.send(ClientMessage{
		Type:  TypeTradeSignal,
		Trade: &TradeOrder{Symbol: "EURUSD", Action: "buy", Volume: -1},
	})

	client.send(ClientMessage{Type: TypeLivenessPing})
	client.recvType(TypePong)
}

func TestServerDisconnectCleanup(t *testing.T) {
	oracle := newFakeOracle()
	oracle.licenses["DEMO-1"] = activeLicense("DEMO-1")
	sink := &fakeSink{}
	addr, registry := startTestServer(t, oracle, sink)

	receiver := dialRelay(t, addr)
	receiver.registerReceiver("DEMO-1")

	master := dialRelay(t, addr)
	masterID := master.registerMaster("good-key")

	// The receiver hears about the master arriving...
	for {
		update := receiver.recvType(TypeConnectionUpdate)
		if update.MasterCount == 1 {
			break
		}
	}

	// ...and about it leaving.
	master.conn.Close()
	for {
		update := receiver.recvType(TypeConnectionUpdate)
		if update.MasterCount == 0 {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := registry.Get(masterID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("master session still registered after disconnect")
		}
		time.Sleep(time.Millisecond)
	}

	closed := sink.waitForClosed(t, 1)
	if closed[0] != masterID {
		t.Errorf("sink saw closure of %q, want %q", closed[0], masterID)
	}
}
