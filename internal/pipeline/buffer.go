package pipeline

import (
	"encoding/binary"
	"math"
	"time"
)

// FrameBuffer accumulates sequenced PCM16 chunks into one contiguous
// utterance and detects the end of the utterance from trailing silence.
//
// Every chunk is buffered in arrival order, so Close returns the exact
// concatenation of what the client sent. The energy-based endpointing
// heuristic runs alongside: silence before the first speech chunk is excluded
// from the speech-duration accounting, silence after speech accumulates, and
// once the accumulated trailing silence exceeds the configured duration the
// buffer reports end-of-utterance. The client may also end the utterance
// explicitly; both paths converge on Close.
//
// FrameBuffer is not safe for concurrent use; the owning pipeline serialises
// access under its own lock.
type FrameBuffer struct {
	energyThreshold float64
	bytesPerSecond  int
	silenceBytes    int

	buf          []byte
	nextSeq      uint64
	hadSpeech    bool
	leadBytes    int
	trailSilence int
	armed        bool
}

// NewFrameBuffer returns a disarmed buffer for little-endian PCM16 mono audio
// at the given sample rate. Call Reset to arm it before appending.
func NewFrameBuffer(sampleRate, energyThreshold int, silence time.Duration) *FrameBuffer {
	bytesPerSecond := sampleRate * 2
	if bytesPerSecond <= 0 {
		bytesPerSecond = 32000 // 16 kHz, mono, 16-bit
	}
	return &FrameBuffer{
		energyThreshold: float64(energyThreshold),
		bytesPerSecond:  bytesPerSecond,
		silenceBytes:    int(int64(bytesPerSecond) * silence.Milliseconds() / 1000),
	}
}

// Append adds one chunk to the buffer. seq must be exactly one past the
// previous chunk's sequence number; any gap fails with
// [OutOfOrderChunkError]. Appending to a disarmed buffer fails with
// [ErrBufferClosed].
//
// The returned endOfUtterance flag is true when the trailing-silence
// threshold has been reached after speech; the caller should then Close the
// buffer and submit the utterance.
func (b *FrameBuffer) Append(seq uint64, pcm []byte) (endOfUtterance bool, err error) {
	if !b.armed {
		return false, ErrBufferClosed
	}
	if seq != b.nextSeq {
		return false, &OutOfOrderChunkError{Expected: b.nextSeq, Got: seq}
	}
	b.nextSeq++
	b.buf = append(b.buf, pcm...)

	if computeRMS(pcm) < b.energyThreshold {
		if !b.hadSpeech {
			// Still waiting for speech; this chunk only moves the lead marker.
			b.leadBytes = len(b.buf)
			return false, nil
		}
		// Silence is tracked in bytes so that arbitrarily small chunks still
		// accumulate toward the threshold.
		b.trailSilence += len(pcm)
		return b.trailSilence >= b.silenceBytes, nil
	}

	b.hadSpeech = true
	b.trailSilence = 0
	return false, nil
}

// Close disarms the buffer and returns the accumulated utterance bytes.
// A second Close without an intervening Reset fails with [ErrAlreadyClosed].
func (b *FrameBuffer) Close() ([]byte, error) {
	if !b.armed {
		return nil, ErrAlreadyClosed
	}
	b.armed = false
	return b.buf, nil
}

// Reset discards all contents and the sequence counter and arms the buffer
// for a new utterance. Used on idle→listening and on interrupt.
func (b *FrameBuffer) Reset() {
	b.buf = nil
	b.nextSeq = 0
	b.hadSpeech = false
	b.leadBytes = 0
	b.trailSilence = 0
	b.armed = true
}

// HadSpeech reports whether any chunk above the energy threshold was buffered
// since the last Reset.
func (b *FrameBuffer) HadSpeech() bool { return b.hadSpeech }

// Duration returns the buffered audio length from the first speech chunk on;
// leading silence does not count toward the minimum-utterance check.
func (b *FrameBuffer) Duration() time.Duration {
	speech := len(b.buf) - b.leadBytes
	return time.Duration(speech) * time.Second / time.Duration(b.bytesPerSecond)
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer, in PCM sample units (0–32767). Returns 0 for
// buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
