package validation

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrInvalidAddr = errors.New("invalid listen address")
	ErrEmptyString = errors.New("value must not be empty")
	ErrOutOfRange  = errors.New("value out of range")
)

// ValidateAddr checks that addr parses as a TCP listen address, used by
// cmd/replaybufferd to validate --grpc-addr/--rest-addr/--observ-addr flags.
func ValidateAddr(addr string) error {
	if addr == "" {
		return ErrInvalidAddr
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return nil
}

// ValidateStringNonEmpty backs the table-name checks of InsertStream,
// SampleStream, MutatePriorities and Reset.
func ValidateStringNonEmpty(s string) error {
	if s == "" {
		return ErrEmptyString
	}
	return nil
}

// ValidateRangeInt reports whether v lies in [min,max]. SampleStream checks
// num_samples and flexible_batch_size inline and does not call it.
func ValidateRangeInt(v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, min, max)
	}
	return nil
}
