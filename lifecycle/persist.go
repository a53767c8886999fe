package lifecycle

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bobuhiro11/vmsr/topology"
)

// Snapshot file layout:
//
//	[4-byte magic "VMSR"][4-byte big-endian version][8-byte big-endian payload length][gob payload]
//
// The payload is a []fileEntry.
const (
	fileMagic   = "VMSR"
	fileVersion = 1

	// Far above catalog size x CPU count.
	maxPayload = 16 << 20
)

var (
	errBadMagic     = errors.New("not a snapshot file")
	errBadVersion   = errors.New("unsupported snapshot version")
	errPayloadSize  = errors.New("snapshot payload too large")
	errForeignEntry = errors.New("snapshot entry not valid on this node")
)

type fileEntry struct {
	Name    string
	Thread  int
	Core    int
	Package int
	Value   uint64
}

// WriteTo encodes the saved values to w.
func (c *Controller) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Saved {
		return 0, ErrNoSnapshotAvailable
	}

	entries := c.snap.Entries()
	payload := make([]fileEntry, len(entries))

	for i, e := range entries {
		payload[i] = fileEntry{
			Name:    e.Name,
			Thread:  e.Target.Thread,
			Core:    e.Target.Core,
			Package: e.Target.Package,
			Value:   e.Value,
		}
	}

	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}

	hdr := make([]byte, 16)
	copy(hdr[0:4], fileMagic)
	binary.BigEndian.PutUint32(hdr[4:8], fileVersion)
	binary.BigEndian.PutUint64(hdr[8:16], uint64(body.Len()))

	n, err := w.Write(hdr)
	if err != nil {
		return int64(n), fmt.Errorf("write header: %w", err)
	}

	m, err := body.WriteTo(w)
	if err != nil {
		return int64(n) + m, fmt.Errorf("write payload: %w", err)
	}

	return int64(n) + m, nil
}

// ReadFrom replaces the snapshot with one read from r. Every entry must
// name a read-on-start register and a CPU of this node, otherwise nothing
// is replaced.
func (c *Controller) ReadFrom(r io.Reader) (int64, error) {
	hdr := make([]byte, 16)

	n, err := io.ReadFull(r, hdr)
	if err != nil {
		return int64(n), fmt.Errorf("read header: %w", err)
	}

	if string(hdr[0:4]) != fileMagic {
		return int64(n), errBadMagic
	}

	if v := binary.BigEndian.Uint32(hdr[4:8]); v != fileVersion {
		return int64(n), fmt.Errorf("version %d: %w", v, errBadVersion)
	}

	size := binary.BigEndian.Uint64(hdr[8:16])
	if size > maxPayload {
		return int64(n), fmt.Errorf("%d bytes: %w", size, errPayloadSize)
	}

	body := make([]byte, size)

	m, err := io.ReadFull(r, body)
	if err != nil {
		return int64(n + m), fmt.Errorf("read payload: %w", err)
	}

	var payload []fileEntry
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return int64(n + m), fmt.Errorf("decode snapshot: %w", err)
	}

	snap := NewStore()

	for _, fe := range payload {
		if err := c.checkEntry(fe); err != nil {
			return int64(n + m), err
		}

		snap.Put(fe.Name, entryTarget(fe), fe.Value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap = snap
	c.state = Saved

	return int64(n + m), nil
}

func (c *Controller) checkEntry(fe fileEntry) error {
	d, err := c.med.Catalog().Lookup(fe.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", errForeignEntry, err)
	}

	if !d.ReadOnStart || !d.Writable() {
		return fmt.Errorf("%s is not saved on start: %w", fe.Name, errForeignEntry)
	}

	known, err := c.med.Topology().Target(fe.Thread)
	if err != nil {
		return fmt.Errorf("%w: %w", errForeignEntry, err)
	}

	if known != entryTarget(fe) {
		return fmt.Errorf("%s: cpu%d moved to %s: %w", fe.Name, fe.Thread, known, errForeignEntry)
	}

	return nil
}

func entryTarget(fe fileEntry) topology.Target {
	return topology.Target{Thread: fe.Thread, Core: fe.Core, Package: fe.Package}
}

// SaveFile writes the snapshot to path atomically with mode 0600,
// creating its directory if needed.
func (c *Controller) SaveFile(path string) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".vmsr-snapshot-*")
	if err != nil {
		return err
	}

	defer os.Remove(f.Name())

	if _, err := c.WriteTo(f); err != nil {
		f.Close()

		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// LoadFile reads a snapshot written by SaveFile. A missing file leaves the
// controller uninitialized and is not an error.
func (c *Controller) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return err
	}

	defer f.Close()

	if _, err := c.ReadFrom(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return nil
}

// Discard forgets the snapshot and removes path if it is set.
func (c *Controller) Discard(path string) error {
	c.mu.Lock()
	c.snap.Clear()
	c.state = Uninitialized
	c.mu.Unlock()

	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
