package capture

import (
	"fmt"
	"sync"
)

var (
	ownersMu sync.Mutex
	owners   = map[string]string{}
)

// Acquire claims device for owner. The returned release func is idempotent.
func Acquire(device, owner string) (release func(), err error) {
	ownersMu.Lock()
	defer ownersMu.Unlock()

	if current, ok := owners[device]; ok {
		return nil, fmt.Errorf("%w: %s is used by %s", ErrDeviceBusy, device, current)
	}
	owners[device] = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			ownersMu.Lock()
			defer ownersMu.Unlock()
			if owners[device] == owner {
				delete(owners, device)
			}
		})
	}, nil
}

// Owner returns the current owner of device, if any.
func Owner(device string) (string, bool) {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	owner, ok := owners[device]
	return owner, ok
}
