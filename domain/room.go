package domain

import "fmt"

// ChatRoomKey builds the deterministic room key for a doctor/patient pair.
// The key is order-independent so both sides resolve the same room.
func ChatRoomKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("chat:%s:%s", userA, userB)
}

// RoleRoomKey is the broadcast group for every connected user of a role.
func RoleRoomKey(role Role) string {
	return fmt.Sprintf("role:%s", role)
}
