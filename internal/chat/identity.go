package chat

// ChatID derives the canonical conversation id for two participants: the
// ids sorted ascending, joined with "_". Both argument orders collapse onto
// one record, which is what makes conversation creation idempotent. Equal
// ids are not rejected, so a user messaging themself gets a deterministic
// single-participant-style id.
func ChatID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "_" + userB
}
