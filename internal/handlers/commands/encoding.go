package commands

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const menuSeparator = "|"

var errMalformedMenuData = errors.New("malformed menu callback data")

// menuAction is the payload of a settings menu button:
// menu|{chat}|{section}[|{op}|{arg}].
type menuAction struct {
	ChatID  int64
	Section string
	Op      string
	Arg     string
}

func (a menuAction) encode() string {
	parts := []string{strings.TrimSuffix(callbackMenu, menuSeparator), encodeChatID(a.ChatID), a.Section}
	if a.Op != "" {
		parts = append(parts, a.Op, a.Arg)
	}
	return strings.Join(parts, menuSeparator)
}

// parseMenuAction reads the payload that follows the menu prefix.
func parseMenuAction(data string) (menuAction, error) {
	parts := strings.Split(data, menuSeparator)
	if len(parts) != 2 && len(parts) != 4 {
		return menuAction{}, errMalformedMenuData
	}
	chatID, err := decodeChatID(parts[0])
	if err != nil {
		return menuAction{}, err
	}
	a := menuAction{ChatID: chatID, Section: parts[1]}
	if len(parts) == 4 {
		a.Op, a.Arg = parts[2], parts[3]
	}
	return a, nil
}

// encodeChatID packs a chat id into 11 or 12 characters to keep callback
// data under the platform limit.
func encodeChatID(chatID int64) string {
	negative := chatID < 0
	if negative {
		chatID = -chatID
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(chatID))
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	if negative {
		return "~" + encoded
	}
	return encoded
}

func decodeChatID(value string) (int64, error) {
	value, negative := strings.CutPrefix(value, "~")
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, errors.Wrap(err, "invalid chat id")
	}
	if len(data) != 8 {
		return 0, errors.New("invalid chat id length")
	}
	id := int64(binary.BigEndian.Uint64(data))
	if negative {
		return -id, nil
	}
	return id, nil
}
