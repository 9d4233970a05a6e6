// Package config resolves, parses, validates, and defaults parley configuration.
package config

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Gateway     GatewayConfig
	Recognizer  RecognizerConfig
	Synthesizer SynthesizerConfig
	Audio       AudioConfig
	PTT         PTTConfig
	Indicator   IndicatorConfig
	Vocab       VocabConfig
	Metrics     MetricsConfig
	Debug       DebugConfig
}

// GatewayConfig locates the chat backend that receives utterances.
type GatewayConfig struct {
	BaseURL     string
	ChatPath    string
	HistoryPath string
	TokenEnv    string
	TimeoutMS   int
}

// RecognizerConfig controls the streaming speech recognizer.
type RecognizerConfig struct {
	Endpoint      string
	APIKeyEnv     string
	Model         string
	Language      string
	Punctuate     bool
	SampleRate    int
	DialTimeoutMS int
	// HealthGRPC is an optional grpc.health.v1 endpoint checked by doctor.
	HealthGRPC string
}

// SynthesizerConfig controls spoken replies in voice mode.
type SynthesizerConfig struct {
	Enable     bool
	Endpoint   string
	APIKeyEnv  string
	VoiceID    string
	ModelID    string
	SampleRate int
}

// AudioConfig controls input-source selection and the reply sink.
type AudioConfig struct {
	Input    string
	Fallback string
	Output   string
}

// PTTConfig controls push-to-talk session timing and the initial mode.
type PTTConfig struct {
	StartMode     string
	FlushGraceMS  int
	StopTimeoutMS int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	Backend           string
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundCancelFile   string
	CuePlayer         CommandConfig
	ErrorTimeoutMS    int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled keyword sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// MetricsConfig controls the Prometheus scrape endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string
}

// DebugConfig controls log verbosity and optional debug artifact output.
type DebugConfig struct {
	LogLevel             string
	EnableAudioDump      bool
	EnableTranscriptDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized keyword payload sent to the recognizer.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
