package stream

import (
	"io"

	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
)

const (
	sampleRate = 48000
	channels   = 2
	// frameSize is 20 ms of audio per channel, the only size Discord takes.
	frameSize = 960
)

// Decoder demuxes and decodes a remote stream and resamples it to 48 kHz
// stereo s16, handing out frameSize-sample frames.
type Decoder struct {
	fc          *astiav.FormatContext
	dec         *astiav.CodecContext
	swr         *astiav.SoftwareResampleContext
	fifo        *astiav.AudioFifo
	pkt         *astiav.Packet
	decoded     *astiav.Frame
	resampled   *astiav.Frame
	out         *astiav.Frame
	streamIndex int
	eof         bool
}

// OpenDecoder opens inputURL. headers is passed to the HTTP protocol as-is.
func OpenDecoder(inputURL, headers string) (*Decoder, error) {
	d := &Decoder{
		fc:        astiav.AllocFormatContext(),
		pkt:       astiav.AllocPacket(),
		decoded:   astiav.AllocFrame(),
		resampled: astiav.AllocFrame(),
		out:       astiav.AllocFrame(),
	}
	if d.fc == nil {
		d.Close()
		return nil, errors.New("alloc format context")
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("reconnect", "1", 0)
	_ = opts.Set("reconnect_streamed", "1", 0)
	_ = opts.Set("reconnect_delay_max", "5", 0)
	_ = opts.Set("rw_timeout", "15000000", 0)
	if headers != "" {
		_ = opts.Set("headers", headers, 0)
	}

	if err := d.fc.OpenInput(inputURL, nil, opts); err != nil {
		d.fc.Free()
		d.fc = nil
		d.Close()
		return nil, errors.Wrap(err, "open input")
	}
	if err := d.fc.FindStreamInfo(nil); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "find stream info")
	}

	d.streamIndex = -1
	for _, s := range d.fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			d.streamIndex = s.Index()
			break
		}
	}
	if d.streamIndex < 0 {
		d.Close()
		return nil, errors.New("no audio stream")
	}

	params := d.fc.Streams()[d.streamIndex].CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		d.Close()
		return nil, errors.Newf("no decoder for codec %v", params.CodecID())
	}
	d.dec = astiav.AllocCodecContext(codec)
	if d.dec == nil {
		d.Close()
		return nil, errors.New("alloc decoder context")
	}
	if err := params.ToCodecContext(d.dec); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "decoder parameters")
	}
	if err := d.dec.Open(codec, nil); err != nil {
		d.Close()
		return nil, errors.Wrap(err, "open decoder")
	}

	d.swr = astiav.AllocSoftwareResampleContext()
	d.fifo = astiav.AllocAudioFifo(astiav.SampleFormatS16, channels, frameSize*2)
	if d.swr == nil || d.fifo == nil {
		d.Close()
		return nil, errors.New("alloc resampler")
	}
	return d, nil
}

// Next returns the next 20 ms frame. The frame is reused by the following
// call. A trailing partial frame is dropped; io.EOF marks the end.
func (d *Decoder) Next() (*astiav.Frame, error) {
	for d.fifo.Size() < frameSize {
		if d.eof {
			return nil, io.EOF
		}
		if err := d.fill(); err != nil {
			return nil, err
		}
	}

	d.out.Unref()
	d.out.SetNbSamples(frameSize)
	d.out.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.out.SetSampleFormat(astiav.SampleFormatS16)
	d.out.SetSampleRate(sampleRate)
	if err := d.out.AllocBuffer(0); err != nil {
		return nil, errors.Wrap(err, "alloc output frame")
	}
	if _, err := d.fifo.Read(d.out); err != nil {
		return nil, errors.Wrap(err, "read fifo")
	}
	return d.out, nil
}

// fill reads one packet and pushes whatever it decodes into the fifo.
func (d *Decoder) fill() error {
	d.pkt.Unref()
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			d.eof = true
			_ = d.dec.SendPacket(nil)
			return d.drain()
		}
		if errors.Is(err, astiav.ErrEagain) {
			return nil
		}
		return errors.Wrap(err, "read frame")
	}
	if d.pkt.StreamIndex() != d.streamIndex {
		return nil
	}
	if err := d.dec.SendPacket(d.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return errors.Wrap(err, "send packet")
	}
	return d.drain()
}

func (d *Decoder) drain() error {
	for {
		d.decoded.Unref()
		if err := d.dec.ReceiveFrame(d.decoded); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return errors.Wrap(err, "receive frame")
		}
		if err := d.resample(); err != nil {
			return err
		}
	}
}

func (d *Decoder) resample() error {
	d.resampled.Unref()
	d.resampled.SetChannelLayout(astiav.ChannelLayoutStereo)
	d.resampled.SetSampleFormat(astiav.SampleFormatS16)
	d.resampled.SetSampleRate(sampleRate)
	nb := int(astiav.RescaleQ(int64(d.decoded.NbSamples()),
		astiav.NewRational(1, d.decoded.SampleRate()), astiav.NewRational(1, sampleRate)))
	if nb <= 0 {
		return nil
	}
	d.resampled.SetNbSamples(nb)
	if err := d.resampled.AllocBuffer(0); err != nil {
		return errors.Wrap(err, "alloc resample frame")
	}
	if err := d.swr.ConvertFrame(d.decoded, d.resampled); err != nil {
		return errors.Wrap(err, "resample")
	}
	if _, err := d.fifo.Write(d.resampled); err != nil {
		return errors.Wrap(err, "write fifo")
	}
	return nil
}

func (d *Decoder) Close() {
	if d.fifo != nil {
		d.fifo.Free()
	}
	if d.swr != nil {
		d.swr.Free()
	}
	if d.dec != nil {
		d.dec.Free()
	}
	if d.fc != nil {
		d.fc.CloseInput()
		d.fc.Free()
	}
	for _, f := range []*astiav.Frame{d.decoded, d.resampled, d.out} {
		if f != nil {
			f.Free()
		}
	}
	if d.pkt != nil {
		d.pkt.Free()
	}
}
