package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/pkg/models"
)

const (
	defaultCharDelay = 20 * time.Millisecond
	defaultWordDelay = 30 * time.Millisecond

	// punctuation pauses are a multiple of the base delay.
	punctuationFactor = 3
)

// sendAssistantMessage emits assistant text, streamed according to the
// configured mode. All chunks of one message share a payload-level message
// id; the terminal event is non-partial and carries the full content.
func (l *Loop) sendAssistantMessage(ctx context.Context, content string) {
	if content == "" {
		return
	}
	switch l.cfg.StreamMode {
	case "char":
		l.streamChunks(ctx, content, splitChars(content), l.charDelay())
	case "word":
		l.streamChunks(ctx, content, splitWords(content), l.wordDelay())
	default:
		l.publish(&models.Event{
			Type:      models.EventAIMessage,
			AIMessage: &models.AIMessagePayload{Content: content},
		})
	}
}

func (l *Loop) charDelay() time.Duration {
	if l.cfg.CharDelay != 0 {
		return l.cfg.CharDelay
	}
	return defaultCharDelay
}

func (l *Loop) wordDelay() time.Duration {
	if l.cfg.WordDelay != 0 {
		return l.cfg.WordDelay
	}
	return defaultWordDelay
}

// streamChunks emits the partial sequence then the terminal full message.
// Cancellation cuts pacing short but the terminal event is still sent so
// the client always holds the complete text.
func (l *Loop) streamChunks(ctx context.Context, full string, chunks []string, delay time.Duration) {
	messageID := uuid.NewString()
	var sent strings.Builder
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		sent.WriteString(chunk)
		progress := float64(i+1) / float64(len(chunks))
		l.publish(&models.Event{
			Type:     models.EventAIMessage,
			Progress: &progress,
			AIMessage: &models.AIMessagePayload{
				Content:   sent.String(),
				IsPartial: true,
				Progress:  progress,
				MessageID: messageID,
			},
		})
		if delay > 0 && i < len(chunks)-1 {
			pause := delay
			if endsWithPause(chunk) {
				pause *= punctuationFactor
			}
			select {
			case <-time.After(pause):
			case <-ctx.Done():
			}
		}
	}
	l.publish(&models.Event{
		Type: models.EventAIMessage,
		AIMessage: &models.AIMessagePayload{
			Content:   full,
			MessageID: messageID,
		},
	})
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

// splitWords keeps trailing whitespace with each word so concatenation
// reproduces the original text.
func splitWords(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if inSpace && !isSpace {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func endsWithPause(chunk string) bool {
	trimmed := strings.TrimRight(chunk, " \n\t")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ',', ';', ':':
		return true
	default:
		return false
	}
}
