package gemini

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/velalabs/vela-core/core/audio"
	"github.com/velalabs/vela-core/core/transport"
)

func testSeq() func() uint64 {
	var next uint64
	return func() uint64 {
		seq := next
		next++
		return seq
	}
}

func TestDecodeServerMessagePreservesIntraFrameCausality(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0x00, 0x10})
	frame := `{"serverContent":{` +
		`"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}}]},` +
		`"inputTranscription":{"text":"hello"},` +
		`"outputTranscription":{"text":"hi there"},` +
		`"turnComplete":true}}`

	messages, dropped, err := decodeServerMessage([]byte(frame), testSeq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("expected no dropped parts, got %d", dropped)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %#v", len(messages), messages)
	}

	user, ok := messages[0].(transport.TranscriptFragment)
	if !ok || user.Speaker != transport.SpeakerUser || user.Text != "hello" {
		t.Errorf("expected user fragment first, got %#v", messages[0])
	}
	model, ok := messages[1].(transport.TranscriptFragment)
	if !ok || model.Speaker != transport.SpeakerModel || model.Text != "hi there" {
		t.Errorf("expected model fragment second, got %#v", messages[1])
	}
	audioData, ok := messages[2].(transport.AudioData)
	if !ok {
		t.Fatalf("expected audio data third, got %#v", messages[2])
	}
	if audioData.Chunk.Encoding.SampleRate != 24000 || audioData.Chunk.Seq != 0 {
		t.Errorf("expected 24kHz chunk with seq 0, got %+v", audioData.Chunk)
	}
	if _, ok := messages[3].(transport.TurnComplete); !ok {
		t.Errorf("expected turn complete last, got %#v", messages[3])
	}
}

func TestDecodeServerMessageInterrupted(t *testing.T) {
	messages, _, err := decodeServerMessage([]byte(`{"serverContent":{"interrupted":true}}`), testSeq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if _, ok := messages[0].(transport.Interrupted); !ok {
		t.Fatalf("expected Interrupted, got %#v", messages[0])
	}
}

func TestDecodeServerMessageAssignsMonotonicSequenceNumbers(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0x00, 0x10})
	frame := `{"serverContent":{"modelTurn":{"parts":[` +
		`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}},` +
		`{"text":"thinking..."},` +
		`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}}]}}}`

	messages, _, err := decodeServerMessage([]byte(frame), testSeq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected text part skipped and 2 audio messages, got %d", len(messages))
	}
	for i, msg := range messages {
		chunk := msg.(transport.AudioData).Chunk
		if chunk.Seq != uint64(i) {
			t.Errorf("expected chunk %d to have seq %d, got %d", i, i, chunk.Seq)
		}
	}
}

func TestDecodeServerMessageAbsorbsMalformedAudio(t *testing.T) {
	pcm := base64.StdEncoding.EncodeToString([]byte{0x00, 0x10})
	frame := `{"serverContent":{` +
		`"inputTranscription":{"text":"kept"},` +
		`"modelTurn":{"parts":[` +
		`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"!!!not-base64!!!"}},` +
		`{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + pcm + `"}}]},` +
		`"interrupted":true,"turnComplete":true}}`

	messages, dropped, err := decodeServerMessage([]byte(frame), testSeq())
	if err != nil {
		t.Fatalf("expected the bad part absorbed without a frame error, got %v", err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped part, got %d", dropped)
	}
	if len(messages) != 4 {
		t.Fatalf("expected transcript, surviving audio and both flags, got %d messages: %#v",
			len(messages), messages)
	}
	if _, ok := messages[0].(transport.TranscriptFragment); !ok {
		t.Errorf("expected transcript fragment first, got %#v", messages[0])
	}
	if _, ok := messages[1].(transport.AudioData); !ok {
		t.Errorf("expected the audio part after the bad one to survive, got %#v", messages[1])
	}
	if _, ok := messages[2].(transport.Interrupted); !ok {
		t.Errorf("expected interruption preserved, got %#v", messages[2])
	}
	if _, ok := messages[3].(transport.TurnComplete); !ok {
		t.Errorf("expected turn completion preserved, got %#v", messages[3])
	}
}

func TestDecodeServerMessageError(t *testing.T) {
	messages, _, err := decodeServerMessage([]byte(`{"error":{"code":8,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`), testSeq())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	sessionErr, ok := messages[0].(transport.SessionError)
	if !ok {
		t.Fatalf("expected SessionError, got %#v", messages[0])
	}
	if sessionErr.Reason == nil || sessionErr.Reason.Error() != "RESOURCE_EXHAUSTED: quota exhausted" {
		t.Errorf("unexpected reason: %v", sessionErr.Reason)
	}
}

func TestNewSetupMessage(t *testing.T) {
	type lookupArgs struct {
		Query string `json:"query"`
	}

	msg := newSetupMessage(transport.ConnectOptions{
		Model:            "models/test-live",
		SystemContext:    "You are a helpful assistant.",
		SearchGrounding:  true,
		Tools:            []transport.Tool{{Name: "lookup", Description: "Look something up", Parameters: lookupArgs{}}},
		TranscribeInput:  true,
		TranscribeOutput: true,
	})

	setup := msg.Setup
	if setup == nil {
		t.Fatal("expected setup payload")
	}
	if setup.Model != "models/test-live" {
		t.Errorf("unexpected model: %q", setup.Model)
	}
	if setup.GenerationConfig == nil || len(setup.GenerationConfig.ResponseModalities) != 1 ||
		setup.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Errorf("expected AUDIO response modality, got %+v", setup.GenerationConfig)
	}
	if setup.SystemInstruction == nil || len(setup.SystemInstruction.Parts) != 1 {
		t.Errorf("expected system instruction, got %+v", setup.SystemInstruction)
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Error("expected both transcription directions enabled")
	}
	if len(setup.Tools) != 2 {
		t.Fatalf("expected grounding tool plus function declarations, got %d", len(setup.Tools))
	}
	if setup.Tools[0].GoogleSearch == nil {
		t.Error("expected google search grounding tool first")
	}
	declarations := setup.Tools[1].FunctionDeclarations
	if len(declarations) != 1 || declarations[0].Name != "lookup" || declarations[0].Parameters == nil {
		t.Errorf("unexpected function declarations: %+v", declarations)
	}
}

func TestNewAudioMessage(t *testing.T) {
	chunk := audio.Chunk{Data: []byte{0x01, 0x02}, Encoding: audio.DefaultCaptureEncoding(), Seq: 7}

	raw, err := json.Marshal(newAudioMessage(chunk))
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	var decoded struct {
		RealtimeInput struct {
			Audio struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"audio"`
		} `json:"realtimeInput"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unexpected unmarshal error: %v", err)
	}
	if decoded.RealtimeInput.Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("unexpected mime type: %q", decoded.RealtimeInput.Audio.MIMEType)
	}
	if decoded.RealtimeInput.Audio.Data != base64.StdEncoding.EncodeToString(chunk.Data) {
		t.Errorf("unexpected payload: %q", decoded.RealtimeInput.Audio.Data)
	}
}
