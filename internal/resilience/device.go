package resilience

import (
	"errors"
	"sync"

	"github.com/MrWong99/audiosync/pkg/audio"
)

// ErrNotOpen is returned by [FailoverDevice.Submit] when no backend is open.
var ErrNotOpen = errors.New("resilience: no backend open")

// FailoverDevice is an [audio.Device] that opens the first healthy backend of
// a [FallbackGroup] and forwards every other call to it until Close.
type FailoverDevice struct {
	group *FallbackGroup[audio.Device]

	mu         sync.Mutex
	active     audio.Device
	activeName string
}

// NewFailoverDevice returns a device that tries group's entries in order on
// every Open.
func NewFailoverDevice(group *FallbackGroup[audio.Device]) *FailoverDevice {
	return &FailoverDevice{group: group}
}

// Open implements [audio.Device]. Any backend left open by an earlier Open
// is closed first.
func (d *FailoverDevice) Open(want audio.DeviceSpec) (audio.DeviceSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		_ = d.active.Close()
		d.active, d.activeName = nil, ""
	}

	var (
		got    audio.DeviceSpec
		opened audio.Device
	)
	name, err := d.group.Execute(func(dev audio.Device) error {
		spec, err := dev.Open(want)
		if err != nil {
			return err
		}
		got, opened = spec, dev
		return nil
	})
	if err != nil {
		return audio.DeviceSpec{}, err
	}
	d.active, d.activeName = opened, name
	return got, nil
}

// Active returns the name of the open backend, or "".
func (d *FailoverDevice) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeName
}

func (d *FailoverDevice) current() audio.Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Submit implements [audio.Device].
func (d *FailoverDevice) Submit(p []byte) error {
	dev := d.current()
	if dev == nil {
		return ErrNotOpen
	}
	return dev.Submit(p)
}

// QueuedBytes implements [audio.Device].
func (d *FailoverDevice) QueuedBytes() int {
	if dev := d.current(); dev != nil {
		return dev.QueuedBytes()
	}
	return 0
}

// Pause implements [audio.Device].
func (d *FailoverDevice) Pause() {
	if dev := d.current(); dev != nil {
		dev.Pause()
	}
}

// Resume implements [audio.Device].
func (d *FailoverDevice) Resume() {
	if dev := d.current(); dev != nil {
		dev.Resume()
	}
}

// Close implements [audio.Device].
func (d *FailoverDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	err := d.active.Close()
	d.active, d.activeName = nil, ""
	return err
}
