package phrases

func defaultPhrases() map[Category][]string {
	return map[Category][]string{
		Restriction: {
			"can't create a meeting",
			"contact your system administrator",
			"you can't create meetings",
			"administrator for more information",
			"your organization doesn't allow",
		},
		Waiting: {
			"waiting for the host",
			"ask to join",
			"waiting for someone to let you in",
		},
		Ended: {
			"meeting ended",
			"you left the meeting",
			"meeting has ended",
		},
		Disconnect: {
			"you left the meeting",
			"you were removed",
			"meeting ended",
			"meeting has ended",
		},
	}
}
