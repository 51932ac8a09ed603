package host

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"muehle-agent/internal/domain"
)

// ReadString reads a UTF-8 string from the guest module's linear memory.
func ReadString(mod api.Module, ptr, size uint32) (string, error) {
	b, err := ReadBytes(mod, ptr, size)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes copies size bytes at ptr out of the guest module's linear memory.
func ReadBytes(mod api.Module, ptr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("%w: read ptr=%d len=%d", domain.ErrMemoryAccess, ptr, size)
	}
	out := make([]byte, size)
	copy(out, buf)
	return out, nil
}

// writeAt stores data at ptr, failing when the range leaves linear memory.
func writeAt(mod api.Module, ptr uint32, data []byte) error {
	if ptr == 0 {
		return fmt.Errorf("%w: allocate_vec_u8 returned a null pointer", domain.ErrMemoryAccess)
	}
	if !mod.Memory().Write(ptr, data) {
		return fmt.Errorf("%w: write ptr=%d len=%d", domain.ErrMemoryAccess, ptr, len(data))
	}
	return nil
}
