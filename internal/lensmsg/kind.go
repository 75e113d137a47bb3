package lensmsg

// Kind identifies the type of an Event on the push connection.
type Kind string

const (
	KindSystem          Kind = "system"
	KindRescanStarted   Kind = "rescan-started"
	KindRescanCompleted Kind = "rescan-completed"
	KindFileChanged     Kind = "file-changed"
	KindSettingsChanged Kind = "settings-changed"
)

// Kinds lists every defined event kind. The invalidation mapping on the
// client must stay total over this list.
func Kinds() []Kind {
	return []Kind{
		KindSystem,
		KindRescanStarted,
		KindRescanCompleted,
		KindFileChanged,
		KindSettingsChanged,
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindSystem, KindRescanStarted, KindRescanCompleted, KindFileChanged, KindSettingsChanged:
		return true
	}
	return false
}
