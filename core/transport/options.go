package transport

import (
	"time"

	"github.com/velalabs/vela-core/core/audio"
)

// Tool declares a client function the model may call. Parameters is any
// struct whose JSON schema describes the call arguments; backends reflect
// it into their wire format.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

type ConnectOptions struct {
	Endpoint      string
	Model         string
	APIKey        string
	SystemContext string

	// SearchGrounding lets the model augment responses with web search.
	SearchGrounding bool
	Tools           []Tool

	CaptureEncoding audio.EncodingInfo

	TranscribeInput  bool
	TranscribeOutput bool

	// CloseGracePeriod bounds how long Close waits for the remote to
	// confirm shutdown before closure is synthesized locally.
	CloseGracePeriod time.Duration
}

type ConnectOption func(*ConnectOptions)

func WithEndpoint(endpoint string) ConnectOption {
	return func(o *ConnectOptions) {
		o.Endpoint = endpoint
	}
}

func WithModel(model string) ConnectOption {
	return func(o *ConnectOptions) {
		o.Model = model
	}
}

func WithAPIKey(apiKey string) ConnectOption {
	return func(o *ConnectOptions) {
		o.APIKey = apiKey
	}
}

func WithSystemContext(text string) ConnectOption {
	return func(o *ConnectOptions) {
		o.SystemContext = text
	}
}

func WithSearchGrounding() ConnectOption {
	return func(o *ConnectOptions) {
		o.SearchGrounding = true
	}
}

func WithTools(tools ...Tool) ConnectOption {
	return func(o *ConnectOptions) {
		o.Tools = append(o.Tools, tools...)
	}
}

func WithCaptureEncoding(encoding audio.EncodingInfo) ConnectOption {
	return func(o *ConnectOptions) {
		o.CaptureEncoding = encoding
	}
}

func WithTranscription(input, output bool) ConnectOption {
	return func(o *ConnectOptions) {
		o.TranscribeInput = input
		o.TranscribeOutput = output
	}
}

func WithCloseGracePeriod(period time.Duration) ConnectOption {
	return func(o *ConnectOptions) {
		o.CloseGracePeriod = period
	}
}
