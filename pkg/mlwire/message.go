package mlwire

import "strings"

// Known coordinator <-> worker command names (spec.md §6).
const (
	CmdRequestManifest  = "request_manifest"
	CmdResponseManifest = "response_manifest"
	CmdExecute          = "execute"
	CmdDone             = "done"
	CmdExit             = "exit"
)

const (
	fieldSeparator = "\r\n"
	argSeparator   = "%"
)

// Message is one framed coordinator<->worker message: a sender id, a
// command name, and a flat list of string arguments. No escaping is
// performed on the wire — argument values must not themselves contain the
// field or argument separators, checked at encode time.
type Message struct {
	SenderID string
	Cmd      string
	Args     []string
}

// New builds a Message, validating that no field contains a reserved
// separator.
func New(senderID, cmd string, args ...string) (Message, error) {
	m := Message{SenderID: senderID, Cmd: cmd, Args: args}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks that SenderID, Cmd, and every arg are free of the
// reserved field separator ("\r\n") and, for args, the argument separator
// ("%").
func (m Message) Validate() error {
	if strings.Contains(m.SenderID, fieldSeparator) {
		return ErrInvalidArgument.Wrap("sender id contains a field separator")
	}
	if strings.Contains(m.Cmd, fieldSeparator) {
		return ErrInvalidArgument.Wrap("command contains a field separator")
	}
	for i, a := range m.Args {
		if strings.Contains(a, fieldSeparator) || strings.Contains(a, argSeparator) {
			return ErrInvalidArgument.Wrapf("arg %d contains a reserved separator", i)
		}
	}
	return nil
}

// Encode renders the message body (without the 4-byte length prefix):
// "<sender_id>\r\n<cmd>\r\n<arg1>%<arg2>%...".
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	body := m.SenderID + fieldSeparator + m.Cmd + fieldSeparator + strings.Join(m.Args, argSeparator)
	return []byte(body), nil
}

// Decode parses a message body previously produced by Encode.
func Decode(body []byte) (Message, error) {
	s := string(body)
	parts := strings.SplitN(s, fieldSeparator, 3)
	if len(parts) != 3 {
		return Message{}, ErrMalformedFrame.Wrapf("expected sender/cmd/args fields, got %d", len(parts))
	}
	senderID, cmd, argBlob := parts[0], parts[1], parts[2]
	var args []string
	if argBlob != "" {
		args = strings.Split(argBlob, argSeparator)
	}
	return Message{SenderID: senderID, Cmd: cmd, Args: args}, nil
}
