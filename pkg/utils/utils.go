package utils

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
)

type Uint interface {
	uint8 | uint16 | uint32 | uint64
}

func CountrZero[T Uint](n T) int {
	switch any(n).(type) {
	case uint8:
		return bits.TrailingZeros8(uint8(n))
	case uint16:
		return bits.TrailingZeros16(uint16(n))
	case uint32:
		return bits.TrailingZeros32(uint32(n))
	}
	return bits.TrailingZeros64(uint64(n))
}

func HasSingleBit(n uint64) bool {
	return n&(n-1) == 0
}

func Fatal(v any) {
	fmt.Fprintln(os.Stderr, "xld: "+"\033[0;1;31mfatal:\033[0m", fmt.Sprintf("%s", v))
	os.Exit(1)
}

// Info prints a progress line on stderr.
func Info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "xld: "+format+"\n", args...)
}

func AlignTo(val, align uint64) uint64 {
	if align == 0 {
		return val
	}
	return (val + align - 1) & ^(align - 1)
}

// Read decodes a little-endian T from the front of data.
func Read[T any](data []byte) (val T, err error) {
	_, err = binary.Decode(data, binary.LittleEndian, &val)
	return
}

// Write encodes e little-endian at the front of data. Nothing is written
// if data is too short.
func Write[T any](data []byte, e T) error {
	_, err := binary.Encode(data, binary.LittleEndian, e)
	return err
}

func RemoveIf[T any](elems []T, condition func(T) bool) []T {
	i := 0

	for _, elem := range elems {
		if condition(elem) {
			continue
		}
		elems[i] = elem
		i++
	}
	return elems[:i]
}
