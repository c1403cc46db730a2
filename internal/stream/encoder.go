package stream

import (
	"github.com/asticode/go-astiav"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

type OpusPacketHandler func(pkt []byte) error

// Encoder turns 20 ms s16 stereo frames into Opus packets with libopus.
type Encoder struct {
	cc     *astiav.CodecContext
	packet *astiav.Packet
	pts    int64
}

func NewEncoder(bitrate int) (*Encoder, error) {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		return nil, errors.New("libopus encoder not found (check ffmpeg installation)")
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("alloc opus codec context")
	}
	cc.SetSampleRate(sampleRate)
	cc.SetChannelLayout(astiav.ChannelLayoutStereo)
	cc.SetSampleFormat(astiav.SampleFormatS16)
	cc.SetTimeBase(astiav.NewRational(1, sampleRate))
	cc.SetBitRate(int64(bitrate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("application", "audio", 0)
	_ = opts.Set("vbr", "on", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, errors.Wrapf(err, "open opus encoder (bitrate=%d)", bitrate)
	}
	zlog.Debug().Int("sampleRate", cc.SampleRate()).Int64("bitrate", cc.BitRate()).Msg("opened opus encoder")

	pkt := astiav.AllocPacket()
	if pkt == nil {
		cc.Free()
		return nil, errors.New("alloc opus packet")
	}
	return &Encoder{cc: cc, packet: pkt}, nil
}

func (e *Encoder) Close() {
	if e.packet != nil {
		e.packet.Free()
	}
	if e.cc != nil {
		e.cc.Free()
	}
}

// Encode sends one frame and hands every packet it yields to onPacket.
// Packets are copied out of the codec's buffer first.
func (e *Encoder) Encode(frame *astiav.Frame, onPacket OpusPacketHandler) error {
	frame.SetPts(e.pts)
	e.pts += int64(frame.NbSamples())
	if err := e.cc.SendFrame(frame); err != nil {
		return errors.Wrap(err, "send frame to encoder")
	}
	return e.receive(onPacket)
}

func (e *Encoder) Flush(onPacket OpusPacketHandler) error {
	if err := e.cc.SendFrame(nil); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil
		}
		return errors.Wrap(err, "flush encoder")
	}
	return e.receive(onPacket)
}

func (e *Encoder) receive(onPacket OpusPacketHandler) error {
	for {
		e.packet.Unref()
		if err := e.cc.ReceivePacket(e.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return errors.Wrap(err, "receive opus packet")
		}
		data := e.packet.Data()
		buf := make([]byte, len(data))
		copy(buf, data)
		if err := onPacket(buf); err != nil {
			return err
		}
	}
}
