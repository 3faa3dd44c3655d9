package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/ylol-app/ylol/internal/domain"
)

const bubbleDelimiter = "\n\n"

// SplitBubbles cuts a raw reply into paragraphs, trimmed, empties dropped.
func SplitBubbles(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var out []string
	for _, part := range strings.Split(raw, bubbleDelimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// deliver reveals bubbles one at a time. The typing flag is already set when
// it starts. It stops as soon as epoch is superseded or ctx is canceled.
func (c *Conversation) deliver(ctx context.Context, epoch uint64, bubbles []string) {
	log := c.log.With("epoch", epoch, "bubbles", len(bubbles))

	for i, text := range bubbles {
		last := i == len(bubbles)-1

		if err := c.clock.Sleep(ctx, c.timings.thinkDelay(utf8.RuneCountInString(text), c.jitter())); err != nil {
			log.Debug("delivery interrupted while typing", "bubble", i)
			return
		}
		if !c.apply(epoch, func(s *State) { s.IsDelivering = false }) {
			return
		}

		if err := c.clock.Sleep(ctx, c.timings.Settle); err != nil {
			log.Debug("delivery interrupted while settling", "bubble", i)
			return
		}
		ok := c.apply(epoch, func(s *State) {
			c.appendLocked(domain.NewMessage(domain.AuthorAssistant, text, c.now()))
		})
		if !ok {
			return
		}
		c.metrics.bubbleDelivered(ctx)

		if !last {
			if !c.apply(epoch, func(s *State) { s.IsDelivering = true }) {
				return
			}
		}
	}

	c.apply(epoch, func(s *State) {
		s.IsDelivering = false
		s.IsAwaitingResponse = false
		s.Phase = PhaseIdle
	})
	log.Info("delivery completed")
}
