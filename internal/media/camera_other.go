//go:build !linux

package media

import (
	"context"
	"fmt"
	"runtime"
)

type unsupportedProvider struct{}

// NewProvider returns the platform camera provider.
func NewProvider() Provider { return &unsupportedProvider{} }

func (p *unsupportedProvider) Prime(context.Context) error {
	return fmt.Errorf("camera capture not supported on %s", runtime.GOOS)
}

func (p *unsupportedProvider) Enumerate(context.Context) ([]DeviceInfo, error) {
	return nil, nil
}

func (p *unsupportedProvider) Open(context.Context, Candidate) (Stream, error) {
	return nil, fmt.Errorf("camera capture not supported on %s", runtime.GOOS)
}
