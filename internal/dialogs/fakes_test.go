package dialogs_test

import "github.com/omochice/dialog-session/pkg/protocol"

// fakeSender records outbound messages; it drops them while offline.
type fakeSender struct {
	offline bool
	sent    []protocol.Message
}

func (f *fakeSender) Send(msg protocol.Message) bool {
	if f.offline {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeSender) last() protocol.Message {
	if len(f.sent) == 0 {
		return protocol.Message{}
	}
	return f.sent[len(f.sent)-1]
}
