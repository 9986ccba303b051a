package pathreg

import "fmt"

// Pid is a unique actor identifier. The zero value denotes a null reference.
type Pid struct {
	Value       uint64
	Incarnation uint32
}

// NullPid is the zero pid, used as a sentinel for "no actor".
var NullPid = Pid{}

func (p Pid) IsNull() bool { return p == NullPid }

func (p Pid) String() string {
	if p.IsNull() {
		return "pid(nil)"
	}
	return fmt.Sprintf("pid(%d#%d)", p.Value, p.Incarnation)
}
