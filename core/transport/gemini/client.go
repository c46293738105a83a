package gemini

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/velalabs/vela-core/core/audio"
	"github.com/velalabs/vela-core/core/transport"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultModel = "models/gemini-2.0-flash-live-001"

	defaultHandshakeTimeout = 15 * time.Second
	defaultCloseGracePeriod = 3 * time.Second
)

// Client dials duplex voice sessions against a Gemini Live endpoint.
type Client struct {
	dialer *websocket.Dialer
}

func NewClient() *Client {
	return &Client{dialer: &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}}
}

// Connect opens the websocket, performs the setup handshake and returns a
// live session. The returned session already has its read and write pumps
// running; register a handler with [Session.OnMessage] to start delivery.
func (c *Client) Connect(ctx context.Context, opts ...transport.ConnectOption) (transport.Session, error) {
	options := transport.ConnectOptions{
		Endpoint:         defaultEndpoint,
		Model:            defaultModel,
		CaptureEncoding:  audio.DefaultCaptureEncoding(),
		TranscribeInput:  true,
		TranscribeOutput: true,
		CloseGracePeriod: defaultCloseGracePeriod,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "connect live session")
	defer span.End()

	conn, err := c.dial(ctx, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := awaitSetup(conn, options); err != nil {
		conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return newSession(conn, options), nil
}

func (c *Client) dial(ctx context.Context, options transport.ConnectOptions) (*websocket.Conn, error) {
	apiKey := options.APIKey
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("GEMINI_API_KEY"); !ok {
			return nil, fmt.Errorf("%w: gemini api key not found", transport.ErrConnection)
		}
	}

	endpoint, err := url.Parse(options.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", transport.ErrConnection, err)
	}
	queryParams := endpoint.Query()
	queryParams.Set("key", apiKey)
	endpoint.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrConnection, err)
	}
	return conn, nil
}

// awaitSetup sends the session configuration and blocks until the service
// acknowledges it. Anything other than an acknowledgement fails the
// handshake.
func awaitSetup(conn *websocket.Conn, options transport.ConnectOptions) error {
	if err := conn.WriteJSON(newSetupMessage(options)); err != nil {
		return fmt.Errorf("%w: failed to send setup: %v", transport.ErrConnection, err)
	}

	conn.SetReadDeadline(time.Now().Add(defaultHandshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: setup not acknowledged: %v", transport.ErrConnection, err)
	}

	var msg serverMessage
	if err := unmarshalServerMessage(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrConnection, err)
	}
	if msg.Error != nil {
		return fmt.Errorf("%w: setup rejected: %v", transport.ErrConnection, msg.Error)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("%w: expected setup acknowledgement, got something else", transport.ErrConnection)
	}

	return nil
}
