package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs physical signal values into a payload. Signals missing
// from values take their default; the checksum signal, if the frame has
// one, is computed last.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) ([]byte, uint32, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return nil, 0, err
	}
	if fd.DLC <= 0 || fd.DLC > 8 {
		return nil, 0, fmt.Errorf("frame %s has invalid DLC %d", fd.Name, fd.DLC)
	}

	var payload uint64
	checksumByte := -1

	for _, s := range fd.Signals {
		if s.Name == ChecksumSignal {
			checksumByte = s.StartBit / 8
			continue
		}
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, fmt.Errorf("frame %s signal %s: non-finite value %v", fd.Name, s.Name, v)
		}

		v = clamp(v, s.Min, s.Max)

		raw := int64(math.Round((v - s.Offset) / s.Factor))
		raw = clampRaw(raw, s.BitLength, s.Signed)

		payload = setBits(payload, s.StartBit, s.BitLength, rawToUnsigned(raw, s.BitLength))
	}

	out := payloadToBytes(payload, fd.DLC)
	if checksumByte >= 0 {
		out[checksumByte] = byteChecksum(fd.ID, out, checksumByte)
	}
	return out, fd.ID, nil
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameName string, values map[string]float64) (can.Frame, error) {
	payload, id, err := m.EncodeFrame(frameName, values)
	if err != nil {
		return can.Frame{}, err
	}

	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)

	return f, nil
}

func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, err
	}
	if len(data) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", frameID, fd.DLC, len(data))
	}

	payload := payloadFromBytes(data, fd.DLC)

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		u := getBits(payload, s.StartBit, s.BitLength)
		raw := unsignedToRawInt64(u, s.BitLength, s.Signed)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

// DecodeEinrideFrame decodes a received frame and names it.
func (m *CANMap) DecodeEinrideFrame(f can.Frame) (string, map[string]float64, error) {
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return "", nil, err
	}
	values, err := m.DecodeFrame(f.ID, f.Data[:f.Length])
	if err != nil {
		return "", nil, err
	}
	return fd.Name, values, nil
}

// ValidChecksum reports whether a received frame's checksum matches its
// payload. Frames without a checksum signal are always valid.
func (m *CANMap) ValidChecksum(f can.Frame) bool {
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return false
	}
	s, ok := fd.Signal(ChecksumSignal)
	if !ok {
		return true
	}
	data := f.Data[:f.Length]
	i := s.StartBit / 8
	if i >= len(data) {
		return false
	}
	return data[i] == byteChecksum(f.ID, data, i)
}
