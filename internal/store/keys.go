package store

import "fmt"

const (
	KeyBotGeneral     = "bot:general"
	KeyBannedGroups   = "bot:bannedGroups"
	KeyGroupsList     = "groups_list"
	FieldStatBan      = "ban"
	FieldStatKick     = "kick"
	FieldStatMessages = "messages"
)

func ChatSettingsKey(chatID int64) string {
	return chatKey(chatID, "settings")
}

func ChatFloodKey(chatID int64) string {
	return chatKey(chatID, "flood")
}

func ChatCharKey(chatID int64) string {
	return chatKey(chatID, "char")
}

func ChatMediaKey(chatID int64) string {
	return chatKey(chatID, "media")
}

func ChatTextLengthKey(chatID int64) string {
	return chatKey(chatID, "antitextlength")
}

func ChatWarnSettingsKey(chatID int64) string {
	return chatKey(chatID, "warnsettings")
}

func ChatWarnsKey(chatID int64) string {
	return chatKey(chatID, "warns")
}

// ChatWatchKey is the set of members exempt from content checks.
func ChatWatchKey(chatID int64) string {
	return chatKey(chatID, "watch")
}

func ChatMutedKey(chatID int64) string {
	return chatKey(chatID, "muted")
}

// ChatWelcomeKey holds the greeting text and optional media of the group.
func ChatWelcomeKey(chatID int64) string {
	return chatKey(chatID, "welcome")
}

// ChatWelcomeSentKey is the set of posted greeting message ids.
func ChatWelcomeSentKey(chatID int64) string {
	return chatKey(chatID, "welcomeSent")
}

func ChatDetailsKey(chatID int64) string {
	return chatKey(chatID, "details")
}

func GroupRegistrationsKey(chatID int64) string {
	return fmt.Sprintf("group_registrations:%d", chatID)
}

func GroupAttendanceKey(chatID int64) string {
	return fmt.Sprintf("group_registrations_attendance:%d", chatID)
}

func GroupInfoKey(chatID int64) string {
	return fmt.Sprintf("group_info:%d", chatID)
}

func UserInfoKey(userID int64) string {
	return fmt.Sprintf("user_info:%d", userID)
}

func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// SpammerKey marks a user banned from the bot by the burst detector.
func SpammerKey(userID int64) string {
	return fmt.Sprintf("spammer:%d", userID)
}

// FloodKey is the short-lived per-member message counter.
func FloodKey(chatID, userID int64) string {
	return fmt.Sprintf("spam:%d:%d", chatID, userID)
}

func TempBanKey(chatID, userID int64) string {
	return fmt.Sprintf("tempban:%d:%d", chatID, userID)
}

func chatKey(chatID int64, suffix string) string {
	return fmt.Sprintf("chat:%d:%s", chatID, suffix)
}
