package transport

// USBDescriptor is the minimal shape device discovery needs from a
// plugged USB device: its vendor/product id. Kept independent of any USB
// library's descriptor type so ClassifyDescriptor and Discover's matching
// logic stay testable with a mock transport (spec.md §8 scenario 1)
// without pulling in gousb.
type USBDescriptor struct {
	VendorID  uint16
	ProductID uint16
}

type vidPid struct {
	vendor, product uint16
}

// knownDevices is the vendor/product/mode table from spec.md §4.1.
var knownDevices = map[vidPid]ConnectionType{
	{0x0E8D, 0x0003}: Brom,
	{0x0E8D, 0x2001}: Da,
	{0x0E8D, 0x6000}: Preloader,
	{0x0E8D, 0x2000}: Preloader,
	{0x0E8D, 0x20FF}: Preloader,
	{0x0E8D, 0x3000}: Preloader,
	{0x1004, 0x6000}: Preloader,
	{0x22D9, 0x0006}: Preloader,
	{0x0FCE, 0xF200}: Brom,
	{0x0FCE, 0xD1E9}: Brom, // XA1
	{0x0FCE, 0xD1E2}: Brom,
	{0x0FCE, 0xD1EC}: Brom, // L1
	{0x0FCE, 0xD1DD}: Brom, // F3111
}

// ClassifyDescriptor matches d against the known vendor/product table,
// returning its implied ConnectionType.
func ClassifyDescriptor(d USBDescriptor) (ConnectionType, bool) {
	mode, ok := knownDevices[vidPid{d.VendorID, d.ProductID}]
	return mode, ok
}

// Enumerator lists currently attached USB devices; Discover scans its
// output against knownDevices. The real implementation is backed by
// gousb (see usb.go's GousbEnumerator); tests inject a fake.
type Enumerator interface {
	Enumerate() ([]USBDescriptor, error)
}

// Discover enumerates attached USB devices via e and returns the first
// one matching knownDevices along with its implied ConnectionType
// (spec.md §4.1).
func Discover(e Enumerator) (USBDescriptor, ConnectionType, bool, error) {
	descriptors, err := e.Enumerate()
	if err != nil {
		return USBDescriptor{}, 0, false, err
	}
	for _, d := range descriptors {
		if mode, ok := ClassifyDescriptor(d); ok {
			return d, mode, true, nil
		}
	}
	return USBDescriptor{}, 0, false, nil
}
