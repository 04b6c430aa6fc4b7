package toolsurface

// NewDefaultRegistry builds the full claudima tool surface: chat
// actions, admin actions, archive/member queries, scratch memory,
// reminders, trust management, tracked-signals management, and the
// terminal sentinels.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []*Spec{
		sendMessageSpec,
		addReactionSpec,
		sendPhotoSpec,
		sendVoiceSpec,

		deleteMessageSpec,
		muteUserSpec,
		banUserSpec,
		kickUserSpec,

		getUserInfoSpec,
		getChatAdminsSpec,
		getMembersSpec,
		querySQLSpec,
		youtubeInfoSpec,
		reportBugSpec,

		createMemorySpec,
		readMemorySpec,
		editMemorySpec,
		listMemoriesSpec,
		searchMemoriesSpec,
		deleteMemorySpec,

		setReminderSpec,
		listRemindersSpec,
		cancelReminderSpec,

		addTrustedUserSpec,
		removeTrustedUserSpec,

		addSignalSpec,
		updateSignalSpec,
		listSignalsSpec,
		notifyPeerSpec,

		noopSpec,
		doneSpec,
	} {
		r.Register(s)
	}
	return r
}
