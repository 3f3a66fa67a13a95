package stubserver

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"sync"

	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/entities"
)

// cannedReply is one scripted assistant answer.
type cannedReply struct {
	text    string
	emotion entities.Emotion
	learned []string
}

var cannedTranscripts = []string{
	"سلام، گرسنمه",
	"یه غذای ایرانی پیشنهاد بده",
	"قیمتش چنده؟",
	"همینو سفارش بده",
}

var cannedReplies = []cannedReply{
	{
		text:    "سلام! خوش اومدی. امروز چی دوست داری بخوری؟",
		emotion: entities.EmotionHappy,
	},
	{
		text:    "قورمه سبزی رستوران شاندیز امروز خیلی پرطرفداره، امتحانش کن!",
		emotion: entities.EmotionExcited,
		learned: []string{"غذای ایرانی دوست دارد"},
	},
	{
		text:    "قیمتش صد و هشتاد هزار تومنه و با ارسال رایگان.",
		emotion: entities.EmotionNeutral,
	},
	{
		text:    "سفارشت ثبت شد، نوش جان!",
		emotion: entities.EmotionHappy,
		learned: []string{"قورمه سبزی سفارش داد"},
	},
}

var cannedSuggestions = []string{
	"به نظر میاد خسته‌ای، یه سوپ گرم چطوره؟",
	"هوا سرده، یه آش رشته می‌چسبه!",
}

var cannedAnalyses = []domain.AnalysisData{
	{Emotion: "happy", EmotionFa: "خوشحال", EmotionConfidence: 0.91, Environment: "indoor", FoodSuggestion: "کباب کوبیده", FaceCount: 1},
	{Emotion: "tired", EmotionFa: "خسته", EmotionConfidence: 0.77, Environment: "indoor", FoodSuggestion: "سوپ جو", FaceCount: 1},
	{Emotion: "neutral", EmotionFa: "عادی", EmotionConfidence: 0.64, Environment: "outdoor", FoodSuggestion: "ساندویچ", FaceCount: 1},
}

// replyBook cycles through the scripted material. Safe for concurrent
// connections.
type replyBook struct {
	mu          sync.Mutex
	transcripts int
	replies     int
	suggestions int
	analyses    int
}

func newReplyBook() *replyBook {
	return &replyBook{}
}

func (b *replyBook) nextTranscript() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := cannedTranscripts[b.transcripts%len(cannedTranscripts)]
	b.transcripts++
	return t
}

func (b *replyBook) nextReply() cannedReply {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := cannedReplies[b.replies%len(cannedReplies)]
	b.replies++
	return r
}

func (b *replyBook) nextSuggestion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := cannedSuggestions[b.suggestions%len(cannedSuggestions)]
	b.suggestions++
	return s
}

func (b *replyBook) nextAnalysis() domain.AnalysisData {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := cannedAnalyses[b.analyses%len(cannedAnalyses)]
	b.analyses++
	return a
}

// historyCounter mints the numeric chat-history ids of the REST path.
type historyCounter struct {
	mu   sync.Mutex
	last int
}

func (c *historyCounter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// toneDataURI synthesizes a short sine tone as a WAV data URI. The duration
// scales with the text length so playback feels roughly proportional.
func toneDataURI(runes int) string {
	return "data:audio/wav;base64," + toneBase64(runes)
}

// toneBase64 is the raw base64 form used on the voice websocket path.
func toneBase64(runes int) string {
	const (
		sampleRate = 16000
		freq       = 440.0
	)
	millis := 300 + runes*40
	if millis > 4000 {
		millis = 4000
	}
	samples := sampleRate * millis / 1000

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(0.2 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(v))
	}

	wav := make([]byte, 0, 44+len(pcm))
	wav = append(wav, "RIFF"...)
	wav = binary.LittleEndian.AppendUint32(wav, uint32(36+len(pcm)))
	wav = append(wav, "WAVE"...)
	wav = append(wav, "fmt "...)
	wav = binary.LittleEndian.AppendUint32(wav, 16)
	wav = binary.LittleEndian.AppendUint16(wav, 1)
	wav = binary.LittleEndian.AppendUint16(wav, 1)
	wav = binary.LittleEndian.AppendUint32(wav, sampleRate)
	wav = binary.LittleEndian.AppendUint32(wav, sampleRate*2)
	wav = binary.LittleEndian.AppendUint16(wav, 2)
	wav = binary.LittleEndian.AppendUint16(wav, 16)
	wav = append(wav, "data"...)
	wav = binary.LittleEndian.AppendUint32(wav, uint32(len(pcm)))
	wav = append(wav, pcm...)

	return base64.StdEncoding.EncodeToString(wav)
}
