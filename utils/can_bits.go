package utils

func bitMask(bitLen int) uint64 {
	if bitLen >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLen) - 1
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	return (payload >> startBit) & bitMask(bitLen)
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := bitMask(bitLen)
	payload &^= (mask << startBit)
	payload |= (value & mask) << startBit
	return payload
}

func unsignedToRawInt64(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if (u & signBit) == 0 {
		return int64(u)
	}
	return int64(u | ^bitMask(bitLen))
}

func rawToUnsigned(raw int64, bitLen int) uint64 {
	return uint64(raw) & bitMask(bitLen)
}

func clamp(v, lo, hi float64) float64 {
	if lo >= hi {
		// no range configured
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64(bitMask(bitLen))
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -int64(1) << (bitLen - 1)
	max := int64(1)<<(bitLen-1) - 1
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}

func payloadFromBytes(data []byte, dlc int) uint64 {
	var payload uint64
	for i := 0; i < dlc && i < 8 && i < len(data); i++ {
		payload |= uint64(data[i]) << (8 * i)
	}
	return payload
}

func payloadToBytes(payload uint64, dlc int) []byte {
	out := make([]byte, dlc)
	for i := 0; i < dlc; i++ {
		out[i] = byte((payload >> (8 * i)) & 0xFF)
	}
	return out
}

// byteChecksum is 0xFF minus the byte sum of the frame id and every payload
// byte except the one at skip.
func byteChecksum(id uint32, data []byte, skip int) byte {
	sum := int(id&0xFF) + int((id>>8)&0xFF)
	for i, b := range data {
		if i == skip {
			continue
		}
		sum += int(b)
	}
	return byte(0xFF - (sum & 0xFF))
}
