package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsGroupAdmin is any administrator or the creator, regardless of granted rights.
func IsGroupAdmin(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

// CanModerate reports whether the member may restrict, ban and delete.
func CanModerate(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if IsManager(member) {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers && member.CanDeleteMessages
}

// ContainsUser reports whether userID is among the listed members.
func ContainsUser(members []api.ChatMember, userID int64) bool {
	for i := range members {
		if members[i].User != nil && members[i].User.ID == userID {
			return true
		}
	}
	return false
}
