package gemini

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/velalabs/vela-core/core/audio"
	"github.com/velalabs/vela-core/core/transport"
)

// Wire framing for the BidiGenerateContent websocket protocol. Every frame
// in either direction is a JSON object with exactly one of the top-level
// fields set.

type clientMessage struct {
	Setup         *setupPayload         `json:"setup,omitempty"`
	RealtimeInput *realtimeInputPayload `json:"realtimeInput,omitempty"`
}

type setupPayload struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	Tools                    []toolPayload     `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type content struct {
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolPayload struct {
	GoogleSearch         *struct{}             `json:"googleSearch,omitempty"`
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type realtimeInputPayload struct {
	Audio *blob `json:"audio,omitempty"`
}

type serverMessage struct {
	SetupComplete *struct{}       `json:"setupComplete,omitempty"`
	ServerContent *serverContent  `json:"serverContent,omitempty"`
	GoAway        json.RawMessage `json:"goAway,omitempty"`
	UsageMetadata json.RawMessage `json:"usageMetadata,omitempty"`
	Error         *serverError    `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type serverError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (e *serverError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Message
}

func newSetupMessage(options transport.ConnectOptions) clientMessage {
	setup := setupPayload{
		Model:            options.Model,
		GenerationConfig: &generationConfig{ResponseModalities: []string{"AUDIO"}},
	}

	if options.SystemContext != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: options.SystemContext}}}
	}
	if options.SearchGrounding {
		setup.Tools = append(setup.Tools, toolPayload{GoogleSearch: &struct{}{}})
	}
	if len(options.Tools) > 0 {
		setup.Tools = append(setup.Tools, toolPayload{
			FunctionDeclarations: declareFunctions(options.Tools),
		})
	}
	if options.TranscribeInput {
		setup.InputAudioTranscription = &struct{}{}
	}
	if options.TranscribeOutput {
		setup.OutputAudioTranscription = &struct{}{}
	}

	return clientMessage{Setup: &setup}
}

func declareFunctions(tools []transport.Tool) []functionDeclaration {
	reflector := jsonschema.Reflector{DoNotReference: true}

	declarations := make([]functionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declaration := functionDeclaration{Name: tool.Name, Description: tool.Description}
		if tool.Parameters != nil {
			if reflect.TypeOf(tool.Parameters).Kind() == reflect.Ptr {
				declaration.Parameters = reflector.ReflectFromType(reflect.TypeOf(tool.Parameters).Elem())
			} else {
				declaration.Parameters = reflector.Reflect(tool.Parameters)
			}
		}
		declarations = append(declarations, declaration)
	}
	return declarations
}

func newAudioMessage(chunk audio.Chunk) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInputPayload{
		Audio: &blob{
			MIMEType: chunk.Encoding.MIMEType(),
			Data:     base64.StdEncoding.EncodeToString(chunk.Data),
		},
	}}
}

func unmarshalServerMessage(data []byte, msg *serverMessage) error {
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal server message: %w", err)
	}
	return nil
}

// decodeServerMessage turns one inbound frame into protocol messages,
// preserving intra-frame causality: transcription fragments first, then
// synthesized audio, then interruption and turn-completion signals.
// Audio parts that fail to decode are skipped and counted in dropped;
// everything else in the frame, the interruption and turn-completion
// flags included, still emits.
func decodeServerMessage(data []byte, nextSeq func() uint64) (messages []transport.Message, dropped int, err error) {
	var msg serverMessage
	if err := unmarshalServerMessage(data, &msg); err != nil {
		return nil, 0, err
	}

	if msg.Error != nil {
		return []transport.Message{transport.SessionError{Reason: msg.Error}}, 0, nil
	}

	sc := msg.ServerContent
	if sc == nil {
		// setupComplete, goAway and usageMetadata frames carry nothing the
		// session consumers act on.
		return nil, 0, nil
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		messages = append(messages, transport.TranscriptFragment{
			Speaker: transport.SpeakerUser,
			Text:    sc.InputTranscription.Text,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		messages = append(messages, transport.TranscriptFragment{
			Speaker: transport.SpeakerModel,
			Text:    sc.OutputTranscription.Text,
		})
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil {
				continue
			}

			chunk, err := decodeInlineAudio(*p.InlineData, nextSeq)
			if err != nil {
				dropped++
				logger.Warn("dropped undecodable audio part", "error", err)
				continue
			}
			messages = append(messages, transport.AudioData{Chunk: chunk})
		}
	}

	if sc.Interrupted {
		messages = append(messages, transport.Interrupted{})
	}
	if sc.TurnComplete {
		messages = append(messages, transport.TurnComplete{})
	}

	return messages, dropped, nil
}

func decodeInlineAudio(data blob, nextSeq func() uint64) (audio.Chunk, error) {
	encoding, err := audio.ParseMIMEType(data.MIMEType)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("%w: %s", audio.ErrMalformedAudioData, err)
	}

	pcm, err := base64.StdEncoding.DecodeString(data.Data)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("%w: invalid base64 payload", audio.ErrMalformedAudioData)
	}

	return audio.Chunk{Data: pcm, Encoding: encoding, Seq: nextSeq()}, nil
}
