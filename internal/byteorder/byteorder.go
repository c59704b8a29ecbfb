// Package byteorder converts integers between host and network (big-endian)
// byte order. The host order is probed once at startup and the swap itself is
// plain shifting, so no platform byte-swap intrinsic is needed.
package byteorder

import "encoding/binary"

var hostBigEndian = probeBigEndian()

func probeBigEndian() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 0x0102)
	return b[0] == 0x01
}

// Swap32 reverses the byte order of x.
func Swap32(x uint32) uint32 {
	return x>>24 | (x>>8)&0x0000ff00 | (x<<8)&0x00ff0000 | x<<24
}

// Swap64 reverses the byte order of x. It swaps each 32-bit half and exchanges them.
func Swap64(x uint64) uint64 {
	hi := Swap32(uint32(x >> 32))
	lo := Swap32(uint32(x))
	return uint64(lo)<<32 | uint64(hi)
}

func HostToNetwork32(x uint32) uint32 {
	if hostBigEndian {
		return x
	}
	return Swap32(x)
}

func NetworkToHost32(x uint32) uint32 { return HostToNetwork32(x) }

func HostToNetwork64(x uint64) uint64 {
	if hostBigEndian {
		return x
	}
	return Swap64(x)
}

func NetworkToHost64(x uint64) uint64 { return HostToNetwork64(x) }

// PutUint32 stores x into b[:4] in network order.
func PutUint32(b []byte, x uint32) {
	binary.NativeEndian.PutUint32(b, HostToNetwork32(x))
}

// PutUint64 stores x into b[:8] in network order.
func PutUint64(b []byte, x uint64) {
	binary.NativeEndian.PutUint64(b, HostToNetwork64(x))
}

// Uint32 decodes a network-order value from b[:4].
func Uint32(b []byte) uint32 {
	return NetworkToHost32(binary.NativeEndian.Uint32(b))
}

// Uint64 decodes a network-order value from b[:8].
func Uint64(b []byte) uint64 {
	return NetworkToHost64(binary.NativeEndian.Uint64(b))
}
