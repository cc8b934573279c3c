package wire

import "github.com/pkg/errors"

// ReplyKind identifies a numeric reply the server can emit.
type ReplyKind int

const (
	ReplyWelcome ReplyKind = iota
	ReplyList
	ReplyListEnd
	ReplyNoTopic
	ReplyNamReply
	ReplyEndOfNames
	ReplyNoSuchNick
	ReplyNicknameInUse
	ReplyNeedMoreParams
	ReplyAlreadyRegistered
)

type numericReply struct {
	code string
	text string
}

// replies is the fixed table mapping a reply identifier to its numeric
// code and default human text. Kinds with an empty text field carry their
// human-readable portion in the caller-supplied arguments instead.
var replies = map[ReplyKind]numericReply{
	ReplyWelcome:           {"001", ""},
	ReplyList:              {"322", ""},
	ReplyListEnd:           {"323", "End of LIST"},
	ReplyNoTopic:           {"331", "No topic is set"},
	ReplyNamReply:          {"353", ""},
	ReplyEndOfNames:        {"366", "End of NAMES list"},
	ReplyNoSuchNick:        {"401", "No such nick/channel"},
	ReplyNicknameInUse:     {"433", "Nickname is already in use"},
	ReplyNeedMoreParams:    {"461", "Not enough parameters"},
	ReplyAlreadyRegistered: {"462", "You may not reregister"},
}

// Reply builds the on-wire frame for kind addressed to recipient:
// `<code> <recipient> <args...> :<default text>`. Unknown kinds yield
// ErrUnknownReply so a bad dispatch table entry surfaces immediately.
func Reply(prefix string, kind ReplyKind, recipient string, args ...string) ([]byte, error) {
	nr, ok := replies[kind]
	if !ok {
		return nil, ErrUnknownReply
	}
	params := make([]string, 0, len(args)+2)
	params = append(params, recipient)
	params = append(params, args...)
	params = append(params, nr.text)
	return Encode(prefix, nr.code, params...), nil
}

// ErrUnknownReply is returned for a reply kind missing from the table.
var ErrUnknownReply = errors.New("unknown reply kind")
