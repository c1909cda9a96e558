package sse

import (
	"bytes"
	"strconv"
)

// Frame is one event on the wire. Every frame carries all three fields.
type Frame struct {
	ID    uint64
	Event string
	Data  []byte
}

// Format renders the frame followed by the blank-line terminator. Data
// containing line breaks is split over several data lines, which a client
// joins back with "\n".
func (f Frame) Format() []byte {
	b := make([]byte, 0, 4+20+1+7+len(f.Event)+1+6+len(f.Data)+2)
	b = append(b, "id: "...)
	b = strconv.AppendUint(b, f.ID, 10)
	b = append(b, '\n')
	b = append(b, "event: "...)
	b = append(b, f.Event...)
	b = append(b, '\n')

	data := bytes.ReplaceAll(f.Data, []byte("\r\n"), []byte("\n"))
	for _, line := range bytes.Split(data, []byte("\n")) {
		b = append(b, "data: "...)
		b = append(b, line...)
		b = append(b, '\n')
	}
	b = append(b, '\n')
	return b
}
