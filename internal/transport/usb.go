// USB bulk-endpoint backend, modeled directly on the teacher's
// internal/driver/device/usb_device.go (OpenUSBDevice / claimInterface /
// SendPacket / ReadPacket / Close), generalized from a single fixed
// VID/PID to the multi-device table spec.md §4.1 describes.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USBBackend is the raw-bulk-endpoint Backend (spec.md §4.1's default,
// compile-time-selected back-end).
type USBBackend struct {
	ctx       *gousb.Context
	device    *gousb.Device
	config    *gousb.Config
	intf      *gousb.Interface
	epOut     *gousb.OutEndpoint
	epIn      *gousb.InEndpoint
	vendorID  uint16
	productID uint16
}

// NewUSBBackend constructs a backend for the device matching vendorID/
// productID; Open() claims the first bulk in/out endpoint pair on
// interface 0 (spec.md §6 "the backend selects the first bulk-in/bulk-out
// pair on the matched interface").
func NewUSBBackend(vendorID, productID uint16) *USBBackend {
	return &USBBackend{vendorID: vendorID, productID: productID}
}

func (b *USBBackend) Open() error {
	ctx := gousb.NewContext()

	device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(b.vendorID), gousb.ID(b.productID))
	if err != nil {
		ctx.Close()
		return fmt.Errorf("open USB device %04x:%04x: %w", b.vendorID, b.productID, err)
	}
	if device == nil {
		ctx.Close()
		return fmt.Errorf("USB device not found (VID:0x%04x PID:0x%04x)", b.vendorID, b.productID)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return fmt.Errorf("set USB config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return fmt.Errorf("claim USB interface: %w", err)
	}

	epOut, err := firstOutEndpoint(intf)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return err
	}

	epIn, err := firstInEndpoint(intf)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return err
	}

	b.ctx = ctx
	b.device = device
	b.config = config
	b.intf = intf
	b.epOut = epOut
	b.epIn = epIn
	return nil
}

// firstOutEndpoint/firstInEndpoint scan the claimed interface's setting
// for the first bulk endpoint of the requested direction, rather than
// assuming a fixed address the way the teacher's fixed-hardware backend
// does — spec.md §6 only promises "the first bulk-in/bulk-out pair".
func firstOutEndpoint(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk {
			return intf.OutEndpoint(ep.Number)
		}
	}
	return nil, fmt.Errorf("no bulk OUT endpoint on claimed interface")
}

func firstInEndpoint(intf *gousb.Interface) (*gousb.InEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk {
			return intf.InEndpoint(ep.Number)
		}
	}
	return nil, fmt.Errorf("no bulk IN endpoint on claimed interface")
}

func (b *USBBackend) Close() error {
	if b.intf != nil {
		b.intf.Close()
	}
	if b.config != nil {
		b.config.Close()
	}
	if b.device != nil {
		b.device.Close()
	}
	if b.ctx != nil {
		b.ctx.Close()
	}
	return nil
}

func (b *USBBackend) WriteAll(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := b.epOut.Write(buf[written:])
		if err != nil {
			return fmt.Errorf("USB write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("USB write: no progress")
		}
		written += n
	}
	return nil
}

func (b *USBBackend) ReadExact(buf []byte, timeout time.Duration) (int, error) {
	read := 0
	for read < len(buf) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		n, err := b.epIn.ReadContext(ctx, buf[read:])
		cancel()
		if err != nil {
			return read, fmt.Errorf("USB read: %w", err)
		}
		if n == 0 {
			return read, fmt.Errorf("USB read: short read, got %d of %d bytes", read, len(buf))
		}
		read += n
	}
	return read, nil
}

func (b *USBBackend) Flush() error { return nil }

// GousbEnumerator implements Enumerator by listing every attached USB
// device via gousb, used by Discover (spec.md §4.1's scan).
type GousbEnumerator struct{}

func (GousbEnumerator) Enumerate() ([]USBDescriptor, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var out []USBDescriptor
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		out = append(out, USBDescriptor{
			VendorID:  uint16(desc.Vendor),
			ProductID: uint16(desc.Product),
		})
		return false // never actually open; we only want the descriptor
	})
	for _, d := range devices {
		d.Close()
	}
	if err != nil {
		return out, fmt.Errorf("enumerate USB devices: %w", err)
	}
	return out, nil
}
