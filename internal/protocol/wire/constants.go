package wire

// MagicByte is the fixed sentinel that starts every frame.
const MagicByte = 0x1D

// OpCode identifies the operation a frame carries. The numeric values are
// part of the wire format and consumed by both ends; they must never be
// renumbered.
type OpCode uint8

const (
	OpCreateAccountUsername OpCode = 0
	OpCreateAccountPassword OpCode = 1
	OpLogin                 OpCode = 2
	OpRetrieveUnreadCount   OpCode = 3
	OpSendMessage           OpCode = 4
	OpReadMessage           OpCode = 5
	OpLoadUnreadMessages    OpCode = 6
	OpLoadReadMessages      OpCode = 7
	OpDeleteMessages        OpCode = 8
	OpDeleteAccount         OpCode = 9
	OpListAccounts          OpCode = 10
	OpQuit                  OpCode = 11
	OpRefreshRequest        OpCode = 12
	OpError                 OpCode = 13
	OpExists                OpCode = 14
	OpOk                    OpCode = 15
)

// maxOpCode bounds the op-code table for decode validation.
const maxOpCode = OpOk

var opCodeNames = [...]string{
	OpCreateAccountUsername: "create_account_username",
	OpCreateAccountPassword: "create_account_password",
	OpLogin:                 "login",
	OpRetrieveUnreadCount:   "retrieve_unread_count",
	OpSendMessage:           "send_message",
	OpReadMessage:           "read_message",
	OpLoadUnreadMessages:    "load_unread_messages",
	OpLoadReadMessages:      "load_read_messages",
	OpDeleteMessages:        "delete_messages",
	OpDeleteAccount:         "delete_account",
	OpListAccounts:          "list_accounts",
	OpQuit:                  "quit",
	OpRefreshRequest:        "refresh_request",
	OpError:                 "error",
	OpExists:                "exists",
	OpOk:                    "ok",
}

func (op OpCode) String() string {
	if int(op) < len(opCodeNames) {
		return opCodeNames[op]
	}
	return "unknown"
}

// Valid reports whether op is part of the protocol's op-code table.
func (op OpCode) Valid() bool {
	return op <= maxOpCode
}
