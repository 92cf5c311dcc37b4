package telephony

import (
	"encoding/xml"
	"fmt"
)

const (
	voiceName     = "Polly.Joanna"
	voiceLanguage = "en-US"

	greetingTemplate = "Hello. You are being connected for a warm transfer. " +
		"Here's a summary of the conversation so far: %s " +
		"Please wait while we connect you to the call."
)

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     voiceSay
	Connect voiceConnect
}

type voiceSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr"`
	Language string   `xml:"language,attr"`
	Text     string   `xml:",chardata"`
}

type voiceConnect struct {
	XMLName xml.Name `xml:"Connect"`
	Room    voiceRoom
}

type voiceRoom struct {
	XMLName  xml.Name `xml:"Room"`
	Identity string   `xml:"participantIdentity,attr"`
	Name     string   `xml:",chardata"`
}

// BuildVoiceScript renders the script executed when the callee picks
// up: read the handoff summary aloud, then bridge them into the room
// under the given identity. Marshaling handles XML escaping, so
// summaries and room names may contain arbitrary text.
func BuildVoiceScript(summary, room, identity string) (string, error) {
	script := voiceResponse{
		Say: voiceSay{
			Voice:    voiceName,
			Language: voiceLanguage,
			Text:     fmt.Sprintf(greetingTemplate, summary),
		},
		Connect: voiceConnect{
			Room: voiceRoom{Identity: identity, Name: room},
		},
	}
	out, err := xml.Marshal(script)
	if err != nil {
		return "", fmt.Errorf("telephony: rendering voice script: %w", err)
	}
	return string(out), nil
}
