// Package smoketest validates a ready worker end to end: one streaming
// TTS request over the worker's websocket API.
package smoketest

// textMessage asks the worker to synthesize text.
type textMessage struct {
	Type string `msgpack:"type"`
	Text string `msgpack:"text"`
}

// eosMessage tells the worker no more text is coming.
type eosMessage struct {
	Type string `msgpack:"type"`
}

// serverFrame is one inbound msgpack frame. The worker has shipped a
// few frame shapes over time; all fields are optional and decoded
// loosely.
type serverFrame struct {
	Type string `msgpack:"type"`
	Text string `msgpack:"text"`

	// Audio payload variants
	PCM     []float32 `msgpack:"pcm"`
	Data    []float32 `msgpack:"data"`
	Samples []float32 `msgpack:"samples"`
	PCMI16  []int16   `msgpack:"pcm_i16"`
}

// isAudio reports whether the frame carries audio samples.
func (f *serverFrame) isAudio() bool {
	switch f.Type {
	case "Audio", "Pcm", "AudioPcm", "AudioChunk", "AudioF32", "AudioI16":
		return true
	}
	return false
}

// isFinal reports whether the frame ends the stream.
func (f *serverFrame) isFinal() bool {
	switch f.Type {
	case "End", "Final", "Done", "Marker":
		return true
	}
	return false
}

// samples returns the frame's audio as float32, converting int16
// payloads when that is all the frame carries.
func (f *serverFrame) samples() []float32 {
	if len(f.PCM) > 0 {
		return f.PCM
	}
	if len(f.Data) > 0 {
		return f.Data
	}
	if len(f.Samples) > 0 {
		return f.Samples
	}
	if len(f.PCMI16) > 0 {
		out := make([]float32, len(f.PCMI16))
		for i, s := range f.PCMI16 {
			out[i] = float32(s) / 32768.0
		}
		return out
	}
	return nil
}
