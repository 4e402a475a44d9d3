package live

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client messages.

type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setupMessage struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Tools             []tool           `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []Modality    `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks,omitempty"`
	Text        string `json:"text,omitempty"`
}

type toolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// Shared.

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Server messages.

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCall        `json:"toolCall,omitempty"`
}

type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

type toolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

func newSetupMessage(s Setup) clientMessage {
	model := s.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	modality := s.ResponseModality
	if modality == "" {
		modality = ModalityAudio
	}

	msg := &setupMessage{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []Modality{modality},
		},
	}
	if s.Voice != "" {
		msg.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: s.Voice}},
		}
	}
	if s.SystemInstruction != "" {
		msg.SystemInstruction = &content{Parts: []part{{Text: s.SystemInstruction}}}
	}
	if len(s.Tools) > 0 {
		msg.Tools = []tool{{FunctionDeclarations: s.Tools}}
	}
	return clientMessage{Setup: msg}
}

func newAudioMessage(payload, mimeType string) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []blob{{MimeType: mimeType, Data: payload}},
	}}
}

func newTextMessage(text string) clientMessage {
	return clientMessage{RealtimeInput: &realtimeInput{Text: text}}
}

func newToolResponseMessage(responses []FunctionResponse) clientMessage {
	return clientMessage{ToolResponse: &toolResponse{FunctionResponses: responses}}
}

// parseServerMessage decodes one frame. setup reports a setupComplete.
// Within a server content message, an interruption is reported before any
// audio and turn completion after it.
func parseServerMessage(data []byte) (events []Event, setup bool, err error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if msg.SetupComplete != nil {
		setup = true
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			events = append(events, Interrupted{})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				if !strings.HasPrefix(p.InlineData.MimeType, "audio/pcm") {
					continue
				}
				events = append(events, Audio{Payload: p.InlineData.Data, MimeType: p.InlineData.MimeType})
			}
		}
		if sc.TurnComplete {
			events = append(events, TurnComplete{})
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		events = append(events, ToolCall{Calls: msg.ToolCall.FunctionCalls})
	}
	return events, setup, nil
}
