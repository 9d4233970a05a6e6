package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateGateway(cfg.Gateway); err != nil {
		return nil, err
	}
	if err := validateWebsocketURL("recognizer.endpoint", cfg.Recognizer.Endpoint); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Recognizer.Language) == "" {
		return nil, fmt.Errorf("recognizer.language must not be empty")
	}
	if cfg.Recognizer.SampleRate <= 0 {
		return nil, fmt.Errorf("recognizer.sample_rate must be > 0")
	}
	if cfg.Recognizer.DialTimeoutMS < 0 {
		return nil, fmt.Errorf("recognizer.dial_timeout_ms must be >= 0")
	}
	if strings.TrimSpace(cfg.Recognizer.APIKeyEnv) == "" {
		warnings = append(warnings, Warning{Message: "recognizer.api_key_env is empty; connecting without credentials"})
	}

	if cfg.Synthesizer.Enable {
		if err := validateWebsocketURL("synthesizer.endpoint", cfg.Synthesizer.Endpoint); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.Synthesizer.VoiceID) == "" {
			return nil, fmt.Errorf("synthesizer.voice_id must not be empty when synthesizer.enable=true")
		}
		if cfg.Synthesizer.SampleRate <= 0 {
			return nil, fmt.Errorf("synthesizer.sample_rate must be > 0")
		}
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.PTT.StartMode))
	if mode != "voice" && mode != "text" {
		return nil, fmt.Errorf("ptt.start_mode must be one of: voice, text")
	}
	if cfg.PTT.FlushGraceMS <= 0 {
		return nil, fmt.Errorf("ptt.flush_grace_ms must be > 0")
	}
	if cfg.PTT.StopTimeoutMS <= 0 {
		return nil, fmt.Errorf("ptt.stop_timeout_ms must be > 0")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if cfg.Indicator.CuePlayer.Raw != "" && len(cfg.Indicator.CuePlayer.Argv) == 0 {
		return nil, fmt.Errorf("indicator.cue_player_cmd is configured but empty")
	}

	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return nil, fmt.Errorf("metrics.listen %q must be host:port: %w", listen, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Debug.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("debug.log_level must be one of: debug, info, warn, error")
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

func validateGateway(cfg GatewayConfig) error {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return fmt.Errorf("gateway.base_url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("gateway.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.base_url must use http or https")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.ChatPath), "/") {
		return fmt.Errorf("gateway.chat_path must start with '/'")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.HistoryPath), "/") {
		return fmt.Errorf("gateway.history_path must start with '/'")
	}
	if cfg.TimeoutMS <= 0 {
		return fmt.Errorf("gateway.timeout_ms must be > 0")
	}
	return nil
}

func validateWebsocketURL(field string, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s must use ws or wss", field)
	}
	return nil
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic keyword payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}

// Keywords renders speech phrases in the recognizer's "phrase:boost" form.
func Keywords(phrases []SpeechPhrase) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p.Boost == 0 {
			out = append(out, p.Phrase)
			continue
		}
		out = append(out, fmt.Sprintf("%s:%g", p.Phrase, p.Boost))
	}
	return out
}
