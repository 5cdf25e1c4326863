package node

// Channel masks are 64-bit sets indexed by channel. Channels past 63
// are never marked; masks saturate rather than overflow.

// SilenceMask marks channels whose buffers contain only zeros.
type SilenceMask uint64

// ConstantMask marks channels whose buffers hold a single repeated
// value (the first sample).
type ConstantMask uint64

// ConnectedMask marks ports that have at least one edge.
type ConnectedMask uint64

// SilenceMaskAll returns a mask with the first n channels silent.
func SilenceMaskAll(n int) SilenceMask {
	return SilenceMask(allBits(n))
}

// ConstantMaskAll returns a mask with the first n channels constant.
func ConstantMaskAll(n int) ConstantMask {
	return ConstantMask(allBits(n))
}

// ConnectedMaskAll returns a mask with the first n ports connected.
func ConnectedMaskAll(n int) ConnectedMask {
	return ConnectedMask(allBits(n))
}

func allBits(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

func bit(channel int) uint64 {
	if channel >= 64 {
		return 0
	}
	return uint64(1) << uint(channel)
}

// IsChannelSilent reports whether the channel is marked silent.
func (m SilenceMask) IsChannelSilent(channel int) bool {
	return uint64(m)&bit(channel) != 0
}

// WithChannel returns the mask with the channel marked or cleared.
func (m SilenceMask) WithChannel(channel int, silent bool) SilenceMask {
	if silent {
		return m | SilenceMask(bit(channel))
	}
	return m &^ SilenceMask(bit(channel))
}

// AllSilent reports whether the first n channels are all silent.
func (m SilenceMask) AllSilent(n int) bool {
	return uint64(m)&allBits(n) == allBits(n)
}

// And intersects two masks. A channel stays silent only if it is silent
// in both.
func (m SilenceMask) And(other SilenceMask) SilenceMask {
	return m & other
}

// IsChannelConstant reports whether the channel is marked constant.
func (m ConstantMask) IsChannelConstant(channel int) bool {
	return uint64(m)&bit(channel) != 0
}

// WithChannel returns the mask with the channel marked or cleared.
func (m ConstantMask) WithChannel(channel int, constant bool) ConstantMask {
	if constant {
		return m | ConstantMask(bit(channel))
	}
	return m &^ ConstantMask(bit(channel))
}

// And intersects two masks.
func (m ConstantMask) And(other ConstantMask) ConstantMask {
	return m & other
}

// IsPortConnected reports whether the port has at least one edge.
func (m ConnectedMask) IsPortConnected(port int) bool {
	return uint64(m)&bit(port) != 0
}

// WithPort returns the mask with the port marked connected.
func (m ConnectedMask) WithPort(port int) ConnectedMask {
	return m | ConnectedMask(bit(port))
}
