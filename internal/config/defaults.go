package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	cuePlayer := "pw-play --media-role Notification"

	return Config{
		Gateway: GatewayConfig{
			BaseURL:     "http://127.0.0.1:8080",
			ChatPath:    "/chat",
			HistoryPath: "/get_conversation_history",
			TokenEnv:    "PARLEY_GATEWAY_TOKEN",
			TimeoutMS:   60000,
		},
		Recognizer: RecognizerConfig{
			Endpoint:      "wss://api.deepgram.com/v1/listen",
			APIKeyEnv:     "DEEPGRAM_API_KEY",
			Model:         "nova-3",
			Language:      "en",
			Punctuate:     true,
			SampleRate:    16000,
			DialTimeoutMS: 3000,
		},
		Synthesizer: SynthesizerConfig{
			Enable:     true,
			Endpoint:   "wss://api.elevenlabs.io",
			APIKeyEnv:  "ELEVENLABS_API_KEY",
			VoiceID:    "21m00Tcm4TlvDq8ikWAM",
			ModelID:    "eleven_flash_v2_5",
			SampleRate: 16000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
			Output:   "default",
		},
		PTT: PTTConfig{
			StartMode:     "voice",
			FlushGraceMS:  300,
			StopTimeoutMS: 3000,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "parley-indicator",
			SoundEnable:    true,
			CuePlayer:      mustParseCommand(cuePlayer),
			ErrorTimeoutMS: 1600,
		},
		Vocab: VocabConfig{
			GlobalSets: nil,
			Sets:       map[string]VocabSet{},
			MaxPhrases: 256,
		},
		Debug: DebugConfig{LogLevel: "info"},
	}
}
