package session

import (
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/transcript"
)

// onRecognition routes one recognizer callback on the controller loop.
func (c *Controller) onRecognition(ev RecognitionEvent) {
	switch ev.Kind {
	case RecognitionFinal:
		c.onFinal(ev)
	case RecognitionPartial:
		c.onPartial(ev)
	case RecognitionCanceled:
		detail := ""
		if ev.Err != nil {
			detail = ev.Err.Error()
			c.logger.Warn("recognition canceled", "error", detail)
		}
		c.onStreamEnded(StatusCanceled, detail)
	case RecognitionStopped:
		c.onStreamEnded(StatusStopped, "")
	default:
		c.logger.Debug("ignoring recognizer event", "kind", string(ev.Kind))
	}
}

func (c *Controller) onFinal(ev RecognitionEvent) {
	if !ev.OK {
		return
	}

	switch c.State() {
	case fsm.StateActive, fsm.StateFlushing:
		cur := c.cur
		if cur == nil || cur.reading {
			c.logger.Debug("dropping final after utterance was read")
			return
		}
		if c.buffer.Offer(ev.Text) {
			c.metrics.RecordSegment(c.runCtx, false)
		} else if transcript.Key(ev.Text) != "" {
			cur.duplicates++
			c.metrics.RecordSegment(c.runCtx, true)
		}
		if c.State() == fsm.StateActive {
			c.indicator.UpdatePreview(c.runCtx, c.buffer.Preview())
		}
	case fsm.StateIdle:
		if !c.listening {
			return
		}
		clean := transcript.Normalize(ev.Text)
		if clean == "" {
			return
		}
		c.status(StatusRecognized, clean)
		c.dispatchStandalone(clean)
	}
}

func (c *Controller) onPartial(ev RecognitionEvent) {
	if ev.Text == "" || c.cur == nil {
		return
	}
	c.buffer.UpdatePartial(ev.Text)
	if c.State() == fsm.StateActive {
		c.indicator.UpdatePreview(c.runCtx, c.buffer.Preview())
	}
}

// onStreamEnded marks recognition stopped. It never clears the session; a
// flush waiting on the stream to drain proceeds to read the utterance.
func (c *Controller) onStreamEnded(kind StatusKind, detail string) {
	c.recognizing = false
	c.status(kind, detail)

	cur := c.cur
	if cur == nil || !cur.finalizing {
		return
	}
	cur.drained = true
	if cur.stopResolved && !cur.reading && c.State() == fsm.StateFlushing {
		c.readUtterance()
	}
}
