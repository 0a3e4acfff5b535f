package models

// SegmentData is a block of bytes the loader wants placed at linear address Addr.
type SegmentData struct {
	Addr, Size uint64
	DataFunc   func() ([]byte, error)
}

func (s *SegmentData) Data() ([]byte, error) {
	return s.DataFunc()
}
