package entities

// Emotion is the categorical tag attached to assistant replies and visual
// analysis, used to select the synthesized-voice style.
type Emotion string

const (
	EmotionHappy        Emotion = "happy"
	EmotionSad          Emotion = "sad"
	EmotionAngry        Emotion = "angry"
	EmotionSurprised    Emotion = "surprised"
	EmotionFearful      Emotion = "fearful"
	EmotionDisgusted    Emotion = "disgusted"
	EmotionAnxious      Emotion = "anxious"
	EmotionTired        Emotion = "tired"
	EmotionExcited      Emotion = "excited"
	EmotionHurry        Emotion = "hurry"
	EmotionDisappointed Emotion = "disappointed"
	EmotionNeutral      Emotion = "neutral"
)

// Voice identifiers of the fixed TTS voice set.
const (
	// VoiceFarid is the default voice, used for neutral, happy and calming
	// replies.
	VoiceFarid = "fa-IR-FaridNeural"
	// VoiceDilara is the softer voice used for sad replies.
	VoiceDilara = "fa-IR-DilaraNeural"
)

// voiceByEmotion holds the non-default entries of the voice mapping.
var voiceByEmotion = map[Emotion]string{
	EmotionSad:          VoiceDilara,
	EmotionDisappointed: VoiceDilara,
	// Angry and hurried users get the default voice on purpose: a calm
	// male voice to settle the tone.
	EmotionAngry: VoiceFarid,
	EmotionHurry: VoiceFarid,
}

// SelectVoice returns the TTS voice for an emotion tag. The mapping is total:
// unmapped tags resolve to the default voice.
func SelectVoice(tag Emotion) string {
	if v, ok := voiceByEmotion[tag]; ok {
		return v
	}
	return VoiceFarid
}
