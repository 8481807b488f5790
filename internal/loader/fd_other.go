//go:build !unix

package loader

import "errors"

var errNoDescriptorInfo = errors.New("descriptor usage is not available on this platform")

func isSystemExhaustion(error) bool {
	return false
}

func descriptorLimit() (uint64, error) {
	return 0, errNoDescriptorInfo
}

func openDescriptors() (int, error) {
	return 0, errNoDescriptorInfo
}
