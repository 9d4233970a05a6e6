package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/transcript"
)

// beginFlush moves a held session to flushing and stops the recognizer. The
// utterance is read once stop has resolved and the stream has drained, or
// the grace window has passed.
func (c *Controller) beginFlush(event fsm.Event) bool {
	cur := c.cur
	cur.finalizing = true
	if err := c.transition(event); err != nil {
		cur.finalizing = false
		return false
	}

	cur.releasedAt = time.Now()
	c.indicator.Hide(c.runCtx)
	c.indicator.CueStop(c.runCtx)
	c.logger.Debug("ptt session flushing", "session", cur.id, "trigger", string(event))

	ctx := c.runCtx
	stopTimeout := c.stopTimeout
	go func() {
		<-cur.startDone
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		err := c.recognizer.Stop(stopCtx)
		cancel()
		c.post(func() { c.onStopResolved(cur.id, err) })
	}()
	return true
}

func (c *Controller) onStopResolved(id uint64, err error) {
	cur := c.cur
	if cur == nil || cur.id != id || c.State() != fsm.StateFlushing {
		return
	}
	cur.stopResolved = true
	c.recognizing = false

	if err != nil {
		// Best effort: whatever was buffered before the failure is still sent.
		c.logger.Warn("recognizer stop failed", "session", id, "error", err.Error())
		c.status(StatusStopFailed, err.Error())
	}

	if cur.drained {
		c.readUtterance()
		return
	}

	grace := c.flushGrace
	cur.grace = time.AfterFunc(grace, func() {
		c.post(func() { c.onGraceElapsed(id) })
	})
}

func (c *Controller) onGraceElapsed(id uint64) {
	cur := c.cur
	if cur == nil || cur.id != id || cur.reading || c.State() != fsm.StateFlushing {
		return
	}
	c.logger.Debug("flush grace elapsed before stream drained", "session", id)
	c.readUtterance()
}

// readUtterance reads the buffer exactly once and dispatches it.
func (c *Controller) readUtterance() {
	cur := c.cur
	if cur.reading {
		return
	}
	cur.reading = true
	if cur.grace != nil {
		cur.grace.Stop()
	}
	c.metrics.RecordFlush(c.runCtx, time.Since(cur.releasedAt))

	text := strings.TrimSpace(c.buffer.Text())
	if text == "" {
		c.status(StatusNoText, "")
		result := c.resultFor(cur, ErrNoText)
		_ = c.transition(fsm.EventFlushed)
		c.finish(result, observe.OutcomeEmpty)
		return
	}

	utterance := transcript.SquashDuplicateHalf(text)
	cur.utterance = utterance
	c.status(StatusSending, "")

	ctx := c.runCtx
	go func() {
		started := time.Now()
		err := c.dispatch.Dispatch(ctx, utterance)
		c.metrics.RecordDispatch(ctx, time.Since(started), err)
		c.post(func() { c.onDispatched(cur.id, err) })
	}()
}

func (c *Controller) onDispatched(id uint64, err error) {
	cur := c.cur
	if cur == nil || cur.id != id {
		return
	}

	result := c.resultFor(cur, nil)
	outcome := observe.OutcomeDispatched
	if err != nil {
		c.logger.Error("utterance dispatch failed", "session", id, "error", err.Error())
		c.status(StatusDispatchFailed, err.Error())
		result.Err = fmt.Errorf("dispatch utterance: %w", err)
		outcome = observe.OutcomeDispatchFailed
	} else {
		result.Dispatched = true
		c.indicator.CueComplete(c.runCtx)
	}

	_ = c.transition(fsm.EventFlushed)
	c.finish(result, outcome)
}

// dispatchStandalone sends text outside any push-to-talk session.
func (c *Controller) dispatchStandalone(text string) {
	ctx := c.runCtx
	go func() {
		started := time.Now()
		err := c.dispatch.Dispatch(ctx, text)
		c.metrics.RecordDispatch(ctx, time.Since(started), err)
		if err == nil {
			return
		}
		c.post(func() {
			c.logger.Error("message dispatch failed", "error", err.Error())
			c.status(StatusDispatchFailed, err.Error())
		})
	}()
}
