package channel

import (
	"testing"

	"github.com/conductorhq/conductor/pkg/protocol"
)

func newStreamFixture(t *testing.T) (*Manager, *captureSender, *Stream) {
	t.Helper()
	sender := newCaptureSender()
	m := NewManager(sender)
	m.RegisterConnection("c1", "")
	m.JoinConversation("c1", "conv-1")
	return m, sender, m.BeginStream("conv-1", "Infrastructure")
}

func TestStreamSequenceStartsAtOne(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("a")
	s.Write("b")
	s.Write("c")
	s.Complete()

	msgs := sender.messages("c1")
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 3 chunks + 1 final", len(msgs))
	}
	for i := 0; i < 3; i++ {
		m := msgs[i]
		if m.Type != protocol.TypeStreamChunk || !m.IsStreaming || m.IsFinal {
			t.Errorf("chunk %d flags wrong: %+v", i, m)
		}
		seq, _ := m.Metadata["sequence"].(int)
		if seq != i+1 {
			t.Errorf("chunk %d sequence = %v, want %d", i, m.Metadata["sequence"], i+1)
		}
	}
}

func TestStreamCompleteCarriesBufferAndCount(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("hello ")
	s.Write("world")
	s.Complete()

	msgs := sender.messages("c1")
	final := msgs[len(msgs)-1]
	if final.Type != protocol.TypeAgentResponse || final.IsStreaming || !final.IsFinal {
		t.Errorf("final flags wrong: %+v", final)
	}
	if final.Content != "hello world" {
		t.Errorf("final content = %q", final.Content)
	}
	if count, _ := final.Metadata["chunk_count"].(int); count != 2 {
		t.Errorf("chunk_count = %v, want 2", final.Metadata["chunk_count"])
	}
	if final.AgentName != "Infrastructure" {
		t.Errorf("agent name = %q", final.AgentName)
	}
}

func TestStreamCompleteIdempotent(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("x")
	s.Complete()
	s.Complete()
	s.Complete()

	msgs := sender.messages("c1")
	finals := 0
	for _, m := range msgs {
		if m.IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("terminal messages = %d, want exactly 1", finals)
	}
}

func TestStreamAbortIsTerminalAndExclusive(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("partial")
	s.Abort("model failed")
	s.Complete() // must be a no-op
	s.Abort("again")

	msgs := sender.messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 1 chunk + 1 abort", len(msgs))
	}
	terminal := msgs[1]
	if terminal.Type != protocol.TypeError || terminal.Content != "model failed" {
		t.Errorf("terminal = %+v", terminal)
	}
}

func TestStreamWriteAfterTerminalIsNoOp(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("a")
	s.Complete()
	s.Write("late")

	msgs := sender.messages("c1")
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2 (late write dropped)", len(msgs))
	}
}

func TestStreamCloseAutoCompletes(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	s.Write("a")
	s.Close()

	msgs := sender.messages("c1")
	final := msgs[len(msgs)-1]
	if !final.IsFinal || final.Type != protocol.TypeAgentResponse {
		t.Errorf("Close did not auto-complete: %+v", final)
	}
	s.Close() // idempotent
	if len(sender.messages("c1")) != 2 {
		t.Error("second Close emitted another terminal")
	}
}

func TestStreamWriteJSON(t *testing.T) {
	_, sender, s := newStreamFixture(t)
	if err := s.WriteJSON(map[string]string{"step": "plan"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	s.Complete()

	msgs := sender.messages("c1")
	if msgs[0].Content != `{"step":"plan"}` {
		t.Errorf("chunk content = %q", msgs[0].Content)
	}
}
