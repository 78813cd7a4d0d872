package wire

import (
	"fmt"

	"github.com/WebFirstLanguage/strandweave/pkg/config"
	"github.com/WebFirstLanguage/strandweave/pkg/ddml"
	"github.com/WebFirstLanguage/strandweave/pkg/ddmlerr"
)

// PCFPrelude is the fixed frame_type + frame_num pair that precedes every
// message's type-specific content (§3). Every current message type uses
// FrameFinal with FrameNum=1; INIT/INTER are reserved for future
// multi-frame payloads and are rejected on unwrap.
type PCFPrelude struct {
	FrameType uint8
	FrameNum  uint32 // 22 bits significant
}

// FinalPrelude is the prelude every message builder in this module emits.
var FinalPrelude = PCFPrelude{FrameType: config.FrameFinal, FrameNum: 1}

// WrapPCFPrelude absorbs frame_type and skips the 22-bit frame_num (3 bytes,
// high 2 bits zero).
func WrapPCFPrelude(w *ddml.Wrap, p PCFPrelude) {
	w.AbsorbUint8(p.FrameType)
	w.Skip(frameNumBytes(p.FrameNum))
}

// UnwrapPCFPrelude reads frame_type and frame_num, rejecting anything but
// FrameFinal (§9 Open Question: INIT/INTER are preserved in the layout but
// unsupported until multi-frame payloads are specified).
func UnwrapPCFPrelude(u *ddml.Unwrap) (PCFPrelude, error) {
	frameType, err := u.AbsorbUint8()
	if err != nil {
		return PCFPrelude{}, err
	}
	raw, err := u.Skip(3)
	if err != nil {
		return PCFPrelude{}, err
	}
	frameNum := uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])

	if frameType != config.FrameFinal {
		return PCFPrelude{}, fmt.Errorf("wire: %w: frame_type %d", ddmlerr.ErrUnsupportedFrame, frameType)
	}
	return PCFPrelude{FrameType: frameType, FrameNum: frameNum}, nil
}

func frameNumBytes(n uint32) []byte {
	return []byte{byte(n >> 16), byte(n >> 8), byte(n)}
}
