package indicator

import (
	"os"
	"strings"

	"github.com/rbright/parley/internal/session"
)

type locale string

const (
	localeEnglish locale = "en"
	localeFrench  locale = "fr"
)

type severity int

const (
	severityInfo severity = iota
	severityError
)

type messages struct {
	recording string
	errorText string
	reply     string

	// status carries one template per status kind; %s receives the detail.
	status map[session.StatusKind]string
}

func indicatorMessagesFromEnv() messages {
	lang := os.Getenv("LC_MESSAGES")
	if strings.TrimSpace(lang) == "" {
		lang = os.Getenv("LANG")
	}
	return indicatorMessages(resolveLocale(lang))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "fr") {
		return localeFrench
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeFrench:
		return messages{
			recording: "Enregistrement…",
			errorText: "Erreur de reconnaissance vocale",
			reply:     "Assistant : %s",
			status: map[session.StatusKind]string{
				session.StatusSending:         "Envoi…",
				session.StatusNoText:          "Aucun texte reconnu",
				session.StatusRecognized:      "Reconnu : %s",
				session.StatusCanceled:        "Reconnaissance annulée : %s",
				session.StatusStopped:         "Reconnaissance arrêtée",
				session.StatusStartFailed:     "Impossible de démarrer la reconnaissance : %s",
				session.StatusStopFailed:      "Impossible d'arrêter la reconnaissance : %s",
				session.StatusDispatchFailed:  "Échec de l'envoi : %s",
				session.StatusListening:       "Écoute…",
				session.StatusVoiceMode:       "Mode vocal",
				session.StatusTextMode:        "Mode texte",
				session.StatusRecognizerReady: "Reconnaissance prête",
			},
		}
	default:
		return messages{
			recording: "Recording…",
			errorText: "Speech recognition error",
			reply:     "Assistant: %s",
			status: map[session.StatusKind]string{
				session.StatusSending:         "Sending…",
				session.StatusNoText:          "No speech recognized",
				session.StatusRecognized:      "Heard: %s",
				session.StatusCanceled:        "Recognition canceled: %s",
				session.StatusStopped:         "Recognition stopped",
				session.StatusStartFailed:     "Could not start recognition: %s",
				session.StatusStopFailed:      "Could not stop recognition: %s",
				session.StatusDispatchFailed:  "Send failed: %s",
				session.StatusListening:       "Listening…",
				session.StatusVoiceMode:       "Voice mode",
				session.StatusTextMode:        "Text mode",
				session.StatusRecognizerReady: "Recognizer ready",
			},
		}
	}
}

// render returns the localized text for st. ok is false for kinds that
// have no standalone notification.
func (m messages) render(st session.Status) (string, severity, bool) {
	template, ok := m.status[st.Kind]
	if !ok {
		return "", severityInfo, false
	}

	text := template
	if strings.Contains(template, "%s") {
		detail := strings.TrimSpace(st.Detail)
		if detail == "" {
			text = strings.TrimSpace(strings.ReplaceAll(template, "%s", ""))
			text = strings.TrimSpace(strings.TrimSuffix(text, ":"))
		} else {
			text = strings.ReplaceAll(template, "%s", detail)
		}
	}

	switch st.Kind {
	case session.StatusCanceled, session.StatusStartFailed, session.StatusStopFailed, session.StatusDispatchFailed:
		return text, severityError, true
	}
	return text, severityInfo, true
}
