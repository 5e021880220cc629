package overlay

import "fmt"

// Mount defines a single mount wired into the jail.
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
}

func (m Mount) String() string {
	switch m.FsType {
	case "tmpfs":
		return fmt.Sprintf("tmpfs[%s]", m.Target)
	case "proc":
		return "proc[]"
	case "overlay":
		return fmt.Sprintf("overlay[%s]", m.Target)
	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
