package sink

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

const framesPerBuffer = 512

// Device plays chunks through PortAudio in callback mode. The callback is
// the consumer of the chunk queue; pausing keeps the stream open and feeds
// silence.
//
// The caller owns portaudio.Initialize / portaudio.Terminate.
type Device struct {
	stream     *portaudio.PaStream
	queue      chunkQueue
	sampleRate int
	channels   int

	paused atomic.Bool
	closed atomic.Bool
	volume atomic.Uint32 // float32 bits

	scratch []float32
}

// NewDevice opens a PortAudio output stream on the given device index and
// starts it paused.
func NewDevice(sampleRate, channels, deviceIndex int) (*Device, error) {
	d := &Device{
		sampleRate: sampleRate,
		channels:   channels,
		scratch:    make([]float32, framesPerBuffer*channels),
	}
	d.paused.Store(true)
	d.volume.Store(math.Float32bits(1.0))

	d.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  deviceIndex,
			ChannelCount: channels,
			SampleFormat: portaudio.SampleFmtFloat32,
		},
		SampleRate: float64(sampleRate),
	}

	if err := d.stream.OpenCallback(framesPerBuffer, d.audioCallback); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSinkUnavailable, err)
	}
	if err := d.stream.StartStream(); err != nil {
		d.stream.CloseCallback()
		return nil, fmt.Errorf("%w: %v", types.ErrSinkUnavailable, err)
	}

	return d, nil
}

// audioCallback runs on PortAudio's audio thread. It must not block: it
// drains whatever the queue holds, applies the volume, and pads with
// silence.
func (d *Device) audioCallback(
	_, output []byte,
	frameCount uint,
	_ *portaudio.StreamCallbackTimeInfo,
	_ portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {

	samplesNeeded := int(frameCount) * d.channels
	if samplesNeeded > len(d.scratch) {
		d.scratch = make([]float32, samplesNeeded)
	}
	buffer := d.scratch[:samplesNeeded]

	consumed := 0
	if !d.paused.Load() {
		consumed = d.queue.consume(buffer)
	}

	gain := math.Float32frombits(d.volume.Load())
	for i := 0; i < consumed; i++ {
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(buffer[i]*gain))
	}
	for i := consumed; i < samplesNeeded; i++ {
		binary.LittleEndian.PutUint32(output[i*4:], 0)
	}

	return portaudio.Continue
}

// Append queues a chunk, blocking while the queue is full.
func (d *Device) Append(samples []float32) {
	d.queue.push(samples, func() bool { return d.closed.Load() })
}

func (d *Device) Play() {
	d.paused.Store(false)
}

func (d *Device) Pause() {
	d.paused.Store(true)
}

func (d *Device) IsPaused() bool {
	return d.paused.Load()
}

func (d *Device) Clear() {
	d.queue.clear()
}

func (d *Device) Empty() bool {
	return d.queue.len() == 0
}

func (d *Device) Len() int {
	return d.queue.len()
}

func (d *Device) SetVolume(v float32) {
	d.volume.Store(math.Float32bits(clampVolume(v)))
}

func (d *Device) Volume() float32 {
	return math.Float32frombits(d.volume.Load())
}

// Close stops and closes the PortAudio stream.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	if err := d.stream.StopStream(); err != nil {
		return err
	}
	return d.stream.CloseCallback()
}
