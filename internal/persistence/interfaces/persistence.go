package interfaces

// CompressorInterface frames snapshot bytes on disk.
type CompressorInterface interface {
	Compress(val []byte) ([]byte, error)
	Decompress(val []byte) ([]byte, error)
	Close()
}

// SchedulerInterface owns the snapshot file for the lifetime of the process.
// Restore runs before the listener opens and Persist after it drains.
type SchedulerInterface interface {
	Init()
	Stop()
	Restore() error
	Persist() error
}
