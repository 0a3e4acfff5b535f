package loader

type LoaderBase struct {
	arch  string
	os    string
	entry uint64
}

func (l *LoaderBase) Arch() string {
	return l.arch
}

func (l *LoaderBase) OS() string {
	return l.os
}

func (l *LoaderBase) Entry() uint64 {
	return l.entry
}
