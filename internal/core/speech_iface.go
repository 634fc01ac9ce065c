package core

type Recognition struct {
	Text       string
	Confidence float64
	Final      bool
}

// RecognitionSink receives engine output. Implementations must not block.
type RecognitionSink interface {
	OnResult(Recognition)
	OnError(error)
}

// Recognizer is a continuous speech-recognition session.
// Stop must be safe to call on a stopped recognizer.
type Recognizer interface {
	Start(sink RecognitionSink) error
	Stop() error
}
