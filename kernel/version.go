package kernel

// Version information for the kernel synchronization layer.
const (
	// Version is the current version of the kernel layer.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides information about the kernel layer.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Primitives lists the object kinds the registry manages.
	Primitives []string

	// WaitOrder describes the default waiter release order.
	WaitOrder string
}

// GetInfo returns information about the kernel layer.
//
// Example:
//
//	info := kernel.GetInfo()
//	fmt.Printf("kernelsync %s (%s)\n", info.Version, info.WaitOrder)
func GetInfo() Info {
	return Info{
		Version: Version,
		Primitives: []string{
			"semaphore", "mutex", "lwmutex", "eventflag",
			"condvar", "lwcondvar", "timer",
		},
		WaitOrder: "priority, FIFO among equals",
	}
}
