package domain

// Room ids form a closed namespace: user:<id> for personal inboxes,
// group:<id> for group broadcasts, call:<id> for ephemeral call sessions.

func UserRoom(userID string) string {
	return "user:" + userID
}

func GroupRoom(groupID string) string {
	return "group:" + groupID
}

func CallRoom(callID string) string {
	return "call:" + callID
}
