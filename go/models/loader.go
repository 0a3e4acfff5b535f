package models

type Loader interface {
	Arch() string
	OS() string
	Entry() uint64
	Segments() ([]SegmentData, error)
}
