package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/PolybrainAI/polybrain-core/internal/rpc"
	"github.com/PolybrainAI/polybrain-core/internal/rpc/connectjson"
	sessionrpc "github.com/PolybrainAI/polybrain-core/internal/rpc/session"
	"github.com/PolybrainAI/polybrain-core/internal/version"
)

// tokenEnv supplies --token when the flag is empty.
const tokenEnv = "POLYBRAIN_USER_TOKEN"

// sessionStream is the client side of the bidirectional session stream.
type sessionStream interface {
	Send(*rpc.ClientFrame) error
	Receive() (*rpc.ServerFrame, error)
	CloseRequest() error
	CloseResponse() error
}

// NewRunCmd opens a modeling session with the daemon and relays its
// questions to the terminal.
func NewRunCmd(opts *Options) *cobra.Command {
	var (
		addr     string
		token    string
		document string
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "run [\"<request>\"]",
		Short: "Describe a model and answer the daemon's questions until it is built",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig(opts)
				if err != nil {
					return err
				}
				addr = cfg.Server.Addr
			}
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			if strings.TrimSpace(token) == "" {
				return fmt.Errorf("a user token is required (--token or %s)", tokenEnv)
			}
			if strings.TrimSpace(document) == "" {
				return errors.New("--document is required")
			}

			var request string
			if len(args) == 1 {
				request = args[0]
			}

			var term terminal
			if plain {
				term = newPlainTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
			} else {
				term = &teaTerminal{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), st: newStyles()}
			}

			client := connect.NewClient[rpc.ClientFrame, rpc.ServerFrame](
				buildH2CClient(),
				daemonURL(addr)+sessionrpc.ConverseProcedure,
				connect.WithCodec(connectjson.Codec{}),
			)
			ctx := cmd.Context()
			stream := client.CallBidiStream(ctx)
			stream.RequestHeader().Set("User-Agent", version.UserAgent())

			c := &conversation{
				stream: stream,
				term:   term,
				out:    cmd.OutOrStdout(),
				st:     newStyles(),
			}
			return c.run(ctx, token, document, request)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon address (default: server.addr from config)")
	cmd.Flags().StringVar(&token, "token", "", "User token identifying your credential bundle (env "+tokenEnv+")")
	cmd.Flags().StringVar(&document, "document", "", "CAD document to build the model in")
	cmd.Flags().BoolVar(&plain, "plain", false, "Read answers line by line instead of the interactive prompt")
	return cmd
}

// conversation drives one session from the client side.
type conversation struct {
	stream sessionStream
	term   terminal
	out    io.Writer
	st     styles
}

func (c *conversation) run(ctx context.Context, token, document, request string) (err error) {
	defer func() {
		_ = c.stream.CloseRequest()
		if cerr := c.stream.CloseResponse(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := c.stream.Send(&rpc.ClientFrame{UserToken: token, DocumentID: document}); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	opening, err := c.receive(ctx)
	if err != nil {
		return err
	}
	if opening.Error != nil {
		return c.fail(opening.Error)
	}
	fmt.Fprintln(c.out, c.st.session.Render("session "+opening.SessionID))

	if strings.TrimSpace(request) == "" {
		fmt.Fprintln(c.out, c.st.query.Render("What would you like to build?"))
		request, err = c.term.Ask(ctx, "What would you like to build?")
		if err != nil {
			return err
		}
	}
	if err := c.stream.Send(&rpc.ClientFrame{Contents: request}); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	for {
		frame, err := c.receive(ctx)
		if err != nil {
			return err
		}
		switch {
		case frame.Error != nil:
			return c.fail(frame.Error)
		case frame.IsQuery():
			fmt.Fprintln(c.out, c.st.query.Render(frame.Query))
			answer, err := c.term.Ask(ctx, frame.Query)
			if err != nil {
				return err
			}
			if err := c.stream.Send(&rpc.ClientFrame{Response: &answer}); err != nil {
				return fmt.Errorf("send answer: %w", err)
			}
		case frame.ResponseType == rpc.ResponseFinal:
			fmt.Fprintln(c.out, c.st.final.Render(frame.Content))
			return nil
		default:
			fmt.Fprintln(c.out, c.st.info.Render(frame.Content))
		}
	}
}

func (c *conversation) receive(ctx context.Context) (*rpc.ServerFrame, error) {
	var frame *rpc.ServerFrame
	err := c.term.Wait(ctx, "Polybrain is working...", func() error {
		var err error
		frame, err = c.stream.Receive()
		return err
	})
	if errors.Is(err, io.EOF) {
		return nil, errors.New("daemon closed the session without a final message")
	}
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return frame, nil
}

func (c *conversation) fail(e *rpc.ErrorFrame) error {
	fmt.Fprintln(c.out, c.st.failure.Render(e.Message))
	return fmt.Errorf("daemon error: %w", e)
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
