package policy

type (
	MediaKind   string
	MediaStatus string
)

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaDocument  MediaKind = "document"
	MediaSticker   MediaKind = "sticker"
	MediaVideoNote MediaKind = "videonote"
	MediaContact   MediaKind = "contact"
	MediaLocation  MediaKind = "location"
	MediaVenue     MediaKind = "venue"
	MediaPoll      MediaKind = "poll"
	MediaGame      MediaKind = "game"
	MediaAPK       MediaKind = "apk"
	MediaDice      MediaKind = "dice"
	MediaAnimation MediaKind = "animation"
	MediaURL       MediaKind = "url"

	MediaAllowed MediaStatus = "allowed"
	MediaBlocked MediaStatus = "blocked"
)

// MediaKinds lists every kind with a per-group status, in menu order.
var MediaKinds = []MediaKind{
	MediaPhoto, MediaVideo, MediaAudio, MediaVoice,
	MediaDocument, MediaSticker, MediaVideoNote, MediaContact,
	MediaLocation, MediaVenue, MediaPoll, MediaGame,
	MediaAPK, MediaDice, MediaAnimation, MediaURL,
}

func ParseMediaKind(s string) (MediaKind, bool) {
	for _, kind := range MediaKinds {
		if string(kind) == s {
			return kind, true
		}
	}
	return "", false
}

// Toggle flips the status; anything unrecognised counts as allowed.
func (s MediaStatus) Toggle() MediaStatus {
	if s == MediaBlocked {
		return MediaAllowed
	}
	return MediaBlocked
}
