package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bufbuild/connect-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/PolybrainAI/polybrain-core/internal/bridge"
	"github.com/PolybrainAI/polybrain-core/internal/rpc"
	"github.com/PolybrainAI/polybrain-core/internal/rpc/connectjson"
)

// echoServer answers the opening frame with the transport name and token.
type echoServer struct{}

func (echoServer) Serve(ctx context.Context, name string, t bridge.Transport) error {
	frame, err := t.Receive(ctx)
	if err != nil {
		return err
	}
	return t.Send(ctx, rpc.ServerFrame{SessionID: name + ":" + frame.UserToken})
}

func TestLineTransportFraming(t *testing.T) {
	srv, cli := net.Pipe()
	t.Cleanup(func() { _ = srv.Close(); _ = cli.Close() })
	transport := NewLineTransport(srv)

	go func() {
		_, _ = cli.Write([]byte("\r\n{\n  \"user_token\": \"tok\",\n  \"onshape_document_id\": \"doc\"\n}\r\n"))
	}()
	frame, err := transport.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, rpc.ClientFrame{UserToken: "tok", DocumentID: "doc"}, frame)

	read := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(cli).ReadString('\n')
		read <- line
	}()
	require.NoError(t, transport.Send(context.Background(), rpc.ServerFrame{SessionID: "s-1"}))
	require.Equal(t, "{\"session_id\":\"s-1\"}\r\n", <-read)
}

func TestLineTransportRejectsBadFrame(t *testing.T) {
	srv, cli := net.Pipe()
	t.Cleanup(func() { _ = srv.Close(); _ = cli.Close() })
	transport := NewLineTransport(srv)

	reply := make(chan string, 1)
	go func() {
		_, _ = cli.Write([]byte("not json\r\n"))
		line, _ := bufio.NewReader(cli).ReadString('\n')
		reply <- line
	}()

	_, err := transport.Receive(context.Background())
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Contains(t, <-reply, `"name":"RequestError"`)
}

func TestLineTransportEOF(t *testing.T) {
	srv, cli := net.Pipe()
	t.Cleanup(func() { _ = srv.Close() })
	transport := NewLineTransport(srv)
	require.NoError(t, cli.Close())

	_, err := transport.Receive(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestLineTransportReceiveHonorsCancel(t *testing.T) {
	srv, cli := net.Pipe()
	t.Cleanup(func() { _ = srv.Close(); _ = cli.Close() })
	transport := NewLineTransport(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := transport.Receive(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not return after cancel")
	}
}

func TestScanCRLF(t *testing.T) {
	adv, tok, err := scanCRLF([]byte("{\"a\":\n1}\r\nrest"), false)
	require.NoError(t, err)
	require.Equal(t, 10, adv)
	require.Equal(t, "{\"a\":\n1}", string(tok))

	adv, tok, err = scanCRLF([]byte("partial"), false)
	require.NoError(t, err)
	require.Zero(t, adv)
	require.Nil(t, tok)

	_, _, err = scanCRLF([]byte("partial"), true)
	require.Error(t, err)
}

func TestLineServerServesSessions(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open listener in sandbox: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- (&LineServer{Server: echoServer{}}).Serve(ctx, ln)
	}()

	conn, err := net.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"user_token":"abc"}` + "\r\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "{\"session_id\":\"line:abc\"}\r\n", line)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("line server did not stop")
	}
}

func TestConnectHandlerServesSession(t *testing.T) {
	path, handler := NewConnectHandler(echoServer{}, nil)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open listener in sandbox: %v", err)
	}

	server := httptest.NewUnstartedServer(h2c.NewHandler(mux, &http2.Server{}))
	server.Listener = ln
	server.Start()
	t.Cleanup(server.Close)

	client := connect.NewClient[rpc.ClientFrame, rpc.ServerFrame](
		&http.Client{
			Transport: &http2.Transport{
				AllowHTTP: true,
				DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, network, addr)
				},
			},
		},
		server.URL+path,
		connect.WithCodec(connectjson.Codec{}),
	)

	stream := client.CallBidiStream(context.Background())
	require.NoError(t, stream.Send(&rpc.ClientFrame{UserToken: "tok", DocumentID: "doc"}))

	var frames []rpc.ServerFrame
	for {
		frame, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, *frame)
	}
	require.NoError(t, stream.CloseRequest())
	require.NoError(t, stream.CloseResponse())
	require.Equal(t, []rpc.ServerFrame{{SessionID: "connect:tok"}}, frames)
}
