package intake

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wireconv/internal/protocol"
	"github.com/danmuck/wireconv/internal/protocol/frame"
	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/testutil/testlog"
)

type parserDecoder struct {
	p *protocol.Parser
}

func (d parserDecoder) Decode(_ string, msg string) (protocol.Result, error) {
	return d.p.ParseResult(msg)
}

func newDecoder(t *testing.T) Decoder {
	t.Helper()
	reg := schema.NewRegistry()
	specs := []schema.FieldSpec{
		{TypeCode: "SDL_101", Order: 1, Name: "MsgLen", Length: 6, Kind: schema.KindNumber},
		{TypeCode: "SDL_101", Order: 2, Name: "Filler", Length: 129, Kind: schema.KindText},
		{TypeCode: "SDL_101", Order: 3, Name: "ApiSvcCd", Length: 20, Kind: schema.KindText},
		{TypeCode: "SDL_101", Order: 4, Name: "Amt", Length: 4, Kind: schema.KindNumber},
	}
	if err := reg.Load(specs, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	return parserDecoder{p: protocol.NewParser(reg)}
}

func message(code, body string) string {
	rest := fmt.Sprintf("%-129s%-20s%s", "HDR", code, body)
	return fmt.Sprintf("%06d%s", 6+len([]rune(rest)), rest)
}

func startServer(t *testing.T, cfg Config) (string, *Server, context.CancelFunc, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(cfg, newDecoder(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Errorf("serve did not stop")
		}
	})
	return ln.Addr().String(), srv, cancel, done
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	return conn, bufio.NewReader(conn)
}

func TestIntakeDecodesFramesInOrder(t *testing.T) {
	testlog.Start(t)
	addr, _, _, _ := startServer(t, Config{Service: "test", Limits: frame.DefaultLimits()})
	conn, r := dial(t, addr)

	if _, err := conn.Write([]byte(message("SDL_101", "0042") + message("SDL_101", "0007"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !strings.HasSuffix(first.Message, `"ApiSvcCd":"SDL_101","Amt":42}`) {
		t.Fatalf("unexpected first reply: %q", first.Message)
	}
	second, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !strings.HasSuffix(second.Message, `"Amt":7}`) {
		t.Fatalf("unexpected second reply: %q", second.Message)
	}
}

func TestIntakeDecodeErrorKeepsConnection(t *testing.T) {
	testlog.Start(t)
	addr, _, _, _ := startServer(t, Config{Service: "test", Limits: frame.DefaultLimits()})
	conn, r := dial(t, addr)

	if _, err := conn.Write([]byte(message("NOPE", "0042"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Message != `000043{"error":"no field specs registered"}` {
		t.Fatalf("unexpected error reply: %q", reply.Message)
	}

	if _, err := conn.Write([]byte(message("SDL_101", "0001"))); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	ok, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil || !strings.HasSuffix(ok.Message, `"Amt":1}`) {
		t.Fatalf("expected decode after error, got %q err=%v", ok.Message, err)
	}
}

func TestIntakeFramingErrorClosesConnection(t *testing.T) {
	testlog.Start(t)
	addr, _, _, _ := startServer(t, Config{Service: "test", Limits: frame.DefaultLimits()})
	conn, r := dial(t, addr)

	if _, err := conn.Write([]byte("ABCDEF")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(reply.Message, "not numeric") {
		t.Fatalf("unexpected framing reply: %q", reply.Message)
	}
	if _, err := frame.ReadFrame(r, frame.DefaultLimits()); err == nil {
		t.Fatalf("expected connection to be closed after framing error")
	}
}

func TestIntakeShutdownClosesClients(t *testing.T) {
	testlog.Start(t)
	addr, srv, cancel, done := startServer(t, Config{Service: "test", Limits: frame.DefaultLimits()})
	_, r := dial(t, addr)

	deadline := time.Now().Add(time.Second)
	for srv.Active() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if srv.Active() != 1 {
		t.Fatalf("expected one active client, got %d", srv.Active())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
	done <- nil
	if _, err := r.ReadByte(); err == nil {
		t.Fatalf("expected client connection to be closed")
	}
}
