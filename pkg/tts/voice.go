package tts

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Voice is one of the provider's preset Korean voices.
type Voice string

const (
	VoiceSia    Voice = "시아"
	VoiceHyoeun Voice = "효은"
	VoiceHuiung Voice = "희웅"
	VoiceSeonu  Voice = "선우"
)

// Voices lists every supported preset voice.
var Voices = []Voice{VoiceSia, VoiceHyoeun, VoiceHuiung, VoiceSeonu}

// Valid reports whether v is a supported preset.
func (v Voice) Valid() bool {
	for _, candidate := range Voices {
		if v == candidate {
			return true
		}
	}
	return false
}

func (v Voice) String() string {
	return string(v)
}

// ParseVoice converts a stored voice name into a Voice.
func ParseVoice(name string) (Voice, error) {
	voice := Voice(strings.TrimSpace(name))
	if !voice.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVoice, name)
	}
	return voice, nil
}

// RandomVoice picks a preset uniformly.
func RandomVoice() Voice {
	return Voices[rand.IntN(len(Voices))]
}
