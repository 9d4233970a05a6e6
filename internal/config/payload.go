package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// filePayload is the on-disk shape shared by the JSONC and YAML formats.
// Pointer fields distinguish "unset" from zero values.
type filePayload struct {
	Gateway     *fileGateway     `json:"gateway" yaml:"gateway"`
	Recognizer  *fileRecognizer  `json:"recognizer" yaml:"recognizer"`
	Synthesizer *fileSynthesizer `json:"synthesizer" yaml:"synthesizer"`
	Audio       *fileAudio       `json:"audio" yaml:"audio"`
	PTT         *filePTT         `json:"ptt" yaml:"ptt"`
	Indicator   *fileIndicator   `json:"indicator" yaml:"indicator"`
	Vocab       *fileVocab       `json:"vocab" yaml:"vocab"`
	Metrics     *fileMetrics     `json:"metrics" yaml:"metrics"`
	Debug       *fileDebug       `json:"debug" yaml:"debug"`
}

type fileGateway struct {
	BaseURL     *string `json:"base_url" yaml:"base_url"`
	ChatPath    *string `json:"chat_path" yaml:"chat_path"`
	HistoryPath *string `json:"history_path" yaml:"history_path"`
	TokenEnv    *string `json:"token_env" yaml:"token_env"`
	TimeoutMS   *int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type fileRecognizer struct {
	Endpoint      *string `json:"endpoint" yaml:"endpoint"`
	APIKeyEnv     *string `json:"api_key_env" yaml:"api_key_env"`
	Model         *string `json:"model" yaml:"model"`
	Language      *string `json:"language" yaml:"language"`
	Punctuate     *bool   `json:"punctuate" yaml:"punctuate"`
	SampleRate    *int    `json:"sample_rate" yaml:"sample_rate"`
	DialTimeoutMS *int    `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	HealthGRPC    *string `json:"health_grpc" yaml:"health_grpc"`
}

type fileSynthesizer struct {
	Enable     *bool   `json:"enable" yaml:"enable"`
	Endpoint   *string `json:"endpoint" yaml:"endpoint"`
	APIKeyEnv  *string `json:"api_key_env" yaml:"api_key_env"`
	VoiceID    *string `json:"voice_id" yaml:"voice_id"`
	ModelID    *string `json:"model_id" yaml:"model_id"`
	SampleRate *int    `json:"sample_rate" yaml:"sample_rate"`
}

type fileAudio struct {
	Input    *string `json:"input" yaml:"input"`
	Fallback *string `json:"fallback" yaml:"fallback"`
	Output   *string `json:"output" yaml:"output"`
}

type filePTT struct {
	StartMode     *string `json:"start_mode" yaml:"start_mode"`
	FlushGraceMS  *int    `json:"flush_grace_ms" yaml:"flush_grace_ms"`
	StopTimeoutMS *int    `json:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

type fileIndicator struct {
	Enable            *bool   `json:"enable" yaml:"enable"`
	Backend           *string `json:"backend" yaml:"backend"`
	DesktopAppName    *string `json:"desktop_app_name" yaml:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable" yaml:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file" yaml:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file" yaml:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file" yaml:"sound_complete_file"`
	SoundCancelFile   *string `json:"sound_cancel_file" yaml:"sound_cancel_file"`
	CuePlayerCmd      *string `json:"cue_player_cmd" yaml:"cue_player_cmd"`
	ErrorTimeoutMS    *int    `json:"error_timeout_ms" yaml:"error_timeout_ms"`
}

type fileVocab struct {
	Global     *stringList             `json:"global" yaml:"global"`
	MaxPhrases *int                    `json:"max_phrases" yaml:"max_phrases"`
	Sets       map[string]fileVocabSet `json:"sets" yaml:"sets"`
}

type fileVocabSet struct {
	Boost   *float64 `json:"boost" yaml:"boost"`
	Phrases []string `json:"phrases" yaml:"phrases"`
}

type fileMetrics struct {
	Listen *string `json:"listen" yaml:"listen"`
}

type fileDebug struct {
	LogLevel       *string `json:"log_level" yaml:"log_level"`
	AudioDump      *bool   `json:"audio_dump" yaml:"audio_dump"`
	TranscriptDump *bool   `json:"transcript_dump" yaml:"transcript_dump"`
}

// stringList accepts either a list or a comma-delimited string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitCommaList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	case yaml.ScalarNode:
		*l = splitCommaList(node.Value)
		return nil
	default:
		return fmt.Errorf("line %d: expected string list or comma-delimited string", node.Line)
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload filePayload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if g := payload.Gateway; g != nil {
		setString(&cfg.Gateway.BaseURL, g.BaseURL)
		setString(&cfg.Gateway.ChatPath, g.ChatPath)
		setString(&cfg.Gateway.HistoryPath, g.HistoryPath)
		setString(&cfg.Gateway.TokenEnv, g.TokenEnv)
		setInt(&cfg.Gateway.TimeoutMS, g.TimeoutMS)
	}

	if r := payload.Recognizer; r != nil {
		setString(&cfg.Recognizer.Endpoint, r.Endpoint)
		setString(&cfg.Recognizer.APIKeyEnv, r.APIKeyEnv)
		setString(&cfg.Recognizer.Model, r.Model)
		setString(&cfg.Recognizer.Language, r.Language)
		setBool(&cfg.Recognizer.Punctuate, r.Punctuate)
		setInt(&cfg.Recognizer.SampleRate, r.SampleRate)
		setInt(&cfg.Recognizer.DialTimeoutMS, r.DialTimeoutMS)
		setString(&cfg.Recognizer.HealthGRPC, r.HealthGRPC)
	}

	if s := payload.Synthesizer; s != nil {
		setBool(&cfg.Synthesizer.Enable, s.Enable)
		setString(&cfg.Synthesizer.Endpoint, s.Endpoint)
		setString(&cfg.Synthesizer.APIKeyEnv, s.APIKeyEnv)
		setString(&cfg.Synthesizer.VoiceID, s.VoiceID)
		setString(&cfg.Synthesizer.ModelID, s.ModelID)
		setInt(&cfg.Synthesizer.SampleRate, s.SampleRate)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setString(&cfg.Audio.Output, a.Output)
	}

	if p := payload.PTT; p != nil {
		setString(&cfg.PTT.StartMode, p.StartMode)
		setInt(&cfg.PTT.FlushGraceMS, p.FlushGraceMS)
		setInt(&cfg.PTT.StopTimeoutMS, p.StopTimeoutMS)
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.Backend, i.Backend)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundStartFile, i.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, i.SoundStopFile)
		setString(&cfg.Indicator.SoundCompleteFile, i.SoundCompleteFile)
		setString(&cfg.Indicator.SoundCancelFile, i.SoundCancelFile)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
		if i.CuePlayerCmd != nil {
			cmd, err := ParseCommand(*i.CuePlayerCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid indicator.cue_player_cmd: %w", err)
			}
			cfg.Indicator.CuePlayer = cmd
		}
	}

	if v := payload.Vocab; v != nil {
		if v.Global != nil {
			cfg.Vocab.GlobalSets = cfg.Vocab.GlobalSets[:0]
			for _, name := range *v.Global {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
			}
		}
		setInt(&cfg.Vocab.MaxPhrases, v.MaxPhrases)
		if v.Sets != nil {
			if cfg.Vocab.Sets == nil {
				cfg.Vocab.Sets = make(map[string]VocabSet)
			}
			for name, set := range v.Sets {
				trimmedName := strings.TrimSpace(name)
				if trimmedName == "" {
					return nil, fmt.Errorf("vocab.sets contains an empty set name")
				}

				entry := VocabSet{Name: trimmedName, Phrases: append([]string(nil), set.Phrases...)}
				if set.Boost != nil {
					entry.Boost = *set.Boost
				}
				cfg.Vocab.Sets[trimmedName] = entry
			}
		}
	}

	if m := payload.Metrics; m != nil {
		setString(&cfg.Metrics.Listen, m.Listen)
	}

	if d := payload.Debug; d != nil {
		setString(&cfg.Debug.LogLevel, d.LogLevel)
		setBool(&cfg.Debug.EnableAudioDump, d.AudioDump)
		setBool(&cfg.Debug.EnableTranscriptDump, d.TranscriptDump)
	}

	return warnings, nil
}

// finish validates an applied config and merges warnings.
func finish(cfg Config, warnings []Warning) (Config, []Warning, error) {
	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validatedWarnings...), nil
}
