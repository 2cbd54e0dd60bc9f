package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// backing abstracts the two I/O modes the paged store supports:
// positional reads/writes against an *os.File, or a memory-mapped
// view. Both satisfy the same read/write/grow/sync/close contract so
// the rest of the store never branches on mode.
type backing interface {
	readAt(offset int64, buf []byte) (int, error)
	writeAt(offset int64, buf []byte) (int, error)
	size() int64
	grow(newSize int64) error
	sync() error
	close() error
}

// fileBacking is the default, positional-I/O mode, grounded on
// storage_engine/disk_manager's ReadAt/WriteAt use.
type fileBacking struct {
	file *os.File
}

func openFileBacking(path string) (*fileBacking, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &fileBacking{file: f}, nil
}

func (b *fileBacking) readAt(offset int64, buf []byte) (int, error) {
	n, err := b.file.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return 0, err
	}
	return n, nil
}

func (b *fileBacking) writeAt(offset int64, buf []byte) (int, error) {
	return b.file.WriteAt(buf, offset)
}

func (b *fileBacking) size() int64 {
	info, err := b.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (b *fileBacking) grow(newSize int64) error {
	if b.size() >= newSize {
		return nil
	}
	return b.file.Truncate(newSize)
}

func (b *fileBacking) sync() error { return b.file.Sync() }
func (b *fileBacking) close() error { return b.file.Close() }

// mmapBacking maps the whole file into memory. Grounded on
// 7thCode-BPTree's internal/mmap package: PROT_READ|PROT_WRITE,
// MAP_SHARED, grown by unmap-truncate-remap.
type mmapBacking struct {
	file *os.File
	data []byte
}

const mmapInitialSize = 1 << 20 // 1 MiB, matches 7thCode-BPTree's InitialFileSize

func openMmapBacking(path string) (*mmapBacking, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("mmap backing: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap backing: stat: %w", err)
	}
	size := info.Size()
	if size < mmapInitialSize {
		size = mmapInitialSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap backing: truncate: %w", err)
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap backing: mmap: %w", err)
	}
	return &mmapBacking{file: f, data: data}, nil
}

func (b *mmapBacking) readAt(offset int64, buf []byte) (int, error) {
	if offset+int64(len(buf)) > int64(len(b.data)) {
		return 0, fmt.Errorf("mmap backing: read past mapped size")
	}
	return copy(buf, b.data[offset:offset+int64(len(buf))]), nil
}

func (b *mmapBacking) writeAt(offset int64, buf []byte) (int, error) {
	if offset+int64(len(buf)) > int64(len(b.data)) {
		return 0, fmt.Errorf("mmap backing: write past mapped size")
	}
	return copy(b.data[offset:offset+int64(len(buf))], buf), nil
}

func (b *mmapBacking) size() int64 { return int64(len(b.data)) }

func (b *mmapBacking) grow(newSize int64) error {
	if newSize <= int64(len(b.data)) {
		return nil
	}
	target := int64(len(b.data))
	if target == 0 {
		target = mmapInitialSize
	}
	for target < newSize {
		target *= 2
	}
	if err := unix.Munmap(b.data); err != nil {
		return fmt.Errorf("mmap backing: munmap during grow: %w", err)
	}
	if err := b.file.Truncate(target); err != nil {
		return fmt.Errorf("mmap backing: truncate during grow: %w", err)
	}
	data, err := unix.Mmap(int(b.file.Fd()), 0, int(target), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap backing: remap during grow: %w", err)
	}
	b.data = data
	return nil
}

func (b *mmapBacking) sync() error {
	if b.data == nil {
		return nil
	}
	if err := unix.Msync(b.data, unix.MS_SYNC); err != nil {
		return err
	}
	return b.file.Sync()
}

func (b *mmapBacking) close() error {
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return err
		}
		b.data = nil
	}
	return b.file.Close()
}
